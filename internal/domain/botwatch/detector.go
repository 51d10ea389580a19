package botwatch

import (
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/activity"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// Fixed heuristic thresholds. Each heuristic triggers independently.
const (
	// RapidPublishWindow: a second project published within this window of
	// the previous one raises AlertRapidProjectPublishing.
	RapidPublishWindow = 5 * time.Minute
	RapidPublishScore  = 20

	// IdeaSpamWindow / IdeaSpamLimit: more than IdeaSpamLimit ideas inside
	// the rolling window raises AlertRapidIdeaSubmission.
	IdeaSpamWindow = time.Hour
	IdeaSpamLimit  = 5
	IdeaSpamScore  = 15
)

// History is the slice of an actor's past the detector needs. The pipeline
// assembles it from the ledger before calling Inspect, keeping the detector
// pure.
type History struct {
	// LastProjectPublishedAt is when the actor last published a project,
	// nil if never.
	LastProjectPublishedAt *time.Time

	// IdeasInWindow counts the actor's idea submissions inside the rolling
	// IdeaSpamWindow, including the event under inspection.
	IdeasInWindow int
}

// Detector evaluates events against the heuristics. Stateless; persistence
// of alerts and score accumulation happens in the repository.
type Detector struct{}

// NewDetector creates a Detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Inspect returns the alerts an event raises given the actor's history.
// Award outcome is irrelevant here: a deduplicated event still counts as
// behavior.
func (d *Detector) Inspect(event activity.Event, history History) []*Alert {
	var alerts []*Alert

	switch e := event.(type) {
	case activity.ProjectPublished:
		if alert := d.checkRapidPublishing(e, history); alert != nil {
			alerts = append(alerts, alert)
		}
	case activity.IdeaSubmitted:
		if alert := d.checkIdeaSpam(e, history); alert != nil {
			alerts = append(alerts, alert)
		}
	}

	return alerts
}

// severityFor maps each heuristic to its fixed severity.
func severityFor(t AlertType) shared.Severity {
	switch t {
	case AlertRapidProjectPublishing:
		return shared.SeverityHigh
	case AlertRapidIdeaSubmission:
		return shared.SeverityMedium
	default:
		return shared.SeverityLow
	}
}

func (d *Detector) checkRapidPublishing(e activity.ProjectPublished, history History) *Alert {
	if history.LastProjectPublishedAt == nil {
		return nil
	}
	gap := e.PublishedAt.Sub(*history.LastProjectPublishedAt)
	if gap < 0 || gap >= RapidPublishWindow {
		return nil
	}

	alert, err := NewAlert(e.ActorID, AlertRapidProjectPublishing, severityFor(AlertRapidProjectPublishing), RapidPublishScore, map[string]interface{}{
		"project_id":            e.ProjectID.String(),
		"previous_published_at": history.LastProjectPublishedAt.Format(time.RFC3339),
		"gap_seconds":           int(gap.Seconds()),
		"window_seconds":        int(RapidPublishWindow.Seconds()),
	})
	if err != nil {
		return nil
	}
	return alert
}

func (d *Detector) checkIdeaSpam(e activity.IdeaSubmitted, history History) *Alert {
	if history.IdeasInWindow <= IdeaSpamLimit {
		return nil
	}

	alert, err := NewAlert(e.ActorID, AlertRapidIdeaSubmission, severityFor(AlertRapidIdeaSubmission), IdeaSpamScore, map[string]interface{}{
		"idea_id":         e.IdeaID.String(),
		"ideas_in_window": history.IdeasInWindow,
		"window_seconds":  int(IdeaSpamWindow.Seconds()),
		"limit":           IdeaSpamLimit,
	})
	if err != nil {
		return nil
	}
	return alert
}
