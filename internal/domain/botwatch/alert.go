// Package botwatch contains the abuse heuristics: timing/frequency checks
// over inbound events, the alerts they raise, and the accumulated bot score
// that eventually flags an actor out of the ranking.
package botwatch

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// AlertType names the heuristic that fired.
type AlertType string

const (
	AlertRapidProjectPublishing AlertType = "rapid_project_publishing"
	AlertRapidIdeaSubmission    AlertType = "rapid_idea_submission"
)

// IsValid checks if the alert type is one of the known values.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertRapidProjectPublishing, AlertRapidIdeaSubmission:
		return true
	}
	return false
}

// String returns the string representation.
func (t AlertType) String() string {
	return string(t)
}

// Alert is one persisted detector hit. Every occurrence is a distinct alert;
// there is no dedup across triggering events. The engine creates alerts and
// only the external review workflow mutates IsReviewed / DisputeMessage.
type Alert struct {
	ID             string
	ActorID        shared.ActorID
	AlertType      AlertType
	Severity       shared.Severity
	Evidence       map[string]interface{}
	ScoreIncrease  int
	IsReviewed     bool
	DisputeMessage string
	CreatedAt      time.Time
}

// NewAlert creates a validated alert with a fresh ID.
func NewAlert(actorID shared.ActorID, alertType AlertType, severity shared.Severity, scoreIncrease int, evidence map[string]interface{}) (*Alert, error) {
	if !actorID.IsValid() {
		return nil, shared.ErrInvalidActorID
	}
	if !alertType.IsValid() {
		return nil, shared.NewDomainError("botwatch", "NewAlert", shared.ErrInvalidInput, "unknown alert type")
	}
	if !severity.IsValid() {
		return nil, shared.ErrInvalidSeverity
	}
	if scoreIncrease <= 0 {
		return nil, shared.NewDomainError("botwatch", "NewAlert", shared.ErrValueOutOfRange, "score increase must be positive")
	}
	if evidence == nil {
		evidence = map[string]interface{}{}
	}

	return &Alert{
		ID:            uuid.NewString(),
		ActorID:       actorID,
		AlertType:     alertType,
		Severity:      severity,
		Evidence:      evidence,
		ScoreIncrease: scoreIncrease,
		CreatedAt:     time.Now(),
	}, nil
}

// MarkReviewed records that an administrator looked at the alert.
func (a *Alert) MarkReviewed() {
	a.IsReviewed = true
}

// SubmitDispute attaches the actor's dispute message.
func (a *Alert) SubmitDispute(message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return shared.NewDomainError("botwatch", "SubmitDispute", shared.ErrEmptyValue, "dispute message cannot be empty")
	}
	a.DisputeMessage = message
	return nil
}
