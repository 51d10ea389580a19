package botwatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerhub/reputation-engine/internal/domain/activity"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

const actorID = shared.ActorID("11111111-1111-1111-1111-111111111111")

func TestInspect_RapidPublishing(t *testing.T) {
	detector := NewDetector()
	now := time.Now()
	previous := now.Add(-2 * time.Minute)

	alerts := detector.Inspect(activity.ProjectPublished{
		ActorID:     actorID,
		ProjectID:   "proj-2",
		PublishedAt: now,
	}, History{LastProjectPublishedAt: &previous})

	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, AlertRapidProjectPublishing, alert.AlertType)
	assert.Equal(t, shared.SeverityHigh, alert.Severity)
	assert.Equal(t, RapidPublishScore, alert.ScoreIncrease)
	assert.Equal(t, "proj-2", alert.Evidence["project_id"])
	assert.False(t, alert.IsReviewed)
}

func TestInspect_SlowPublishingIsClean(t *testing.T) {
	detector := NewDetector()
	now := time.Now()
	previous := now.Add(-10 * time.Minute)

	alerts := detector.Inspect(activity.ProjectPublished{
		ActorID:     actorID,
		ProjectID:   "proj-2",
		PublishedAt: now,
	}, History{LastProjectPublishedAt: &previous})

	assert.Empty(t, alerts)
}

func TestInspect_FirstPublishHasNoGap(t *testing.T) {
	detector := NewDetector()

	alerts := detector.Inspect(activity.ProjectPublished{
		ActorID:     actorID,
		ProjectID:   "proj-1",
		PublishedAt: time.Now(),
	}, History{})

	assert.Empty(t, alerts)
}

func TestInspect_OutOfOrderDeliveryIsIgnored(t *testing.T) {
	// A late-delivered publish with a timestamp before the recorded last
	// publish produces a negative gap; that is a delivery artifact, not
	// rapid publishing.
	detector := NewDetector()
	now := time.Now()
	later := now.Add(time.Minute)

	alerts := detector.Inspect(activity.ProjectPublished{
		ActorID:     actorID,
		ProjectID:   "proj-2",
		PublishedAt: now,
	}, History{LastProjectPublishedAt: &later})

	assert.Empty(t, alerts)
}

func TestInspect_IdeaSpam(t *testing.T) {
	detector := NewDetector()

	alerts := detector.Inspect(activity.IdeaSubmitted{
		ActorID:     actorID,
		IdeaID:      "idea-6",
		SubmittedAt: time.Now(),
	}, History{IdeasInWindow: IdeaSpamLimit + 1})

	require.Len(t, alerts, 1)
	alert := alerts[0]
	assert.Equal(t, AlertRapidIdeaSubmission, alert.AlertType)
	assert.Equal(t, shared.SeverityMedium, alert.Severity)
	assert.Equal(t, IdeaSpamScore, alert.ScoreIncrease)
}

func TestInspect_IdeaRateAtLimitIsClean(t *testing.T) {
	detector := NewDetector()

	alerts := detector.Inspect(activity.IdeaSubmitted{
		ActorID:     actorID,
		IdeaID:      "idea-5",
		SubmittedAt: time.Now(),
	}, History{IdeasInWindow: IdeaSpamLimit})

	assert.Empty(t, alerts)
}

func TestInspect_OtherEventTypesAreIgnored(t *testing.T) {
	detector := NewDetector()

	alerts := detector.Inspect(activity.DemoViewed{
		OwnerID:   actorID,
		ProjectID: "proj-1",
		Viewer:    activity.Identity{SessionToken: "tok"},
		ViewedAt:  time.Now(),
	}, History{IdeasInWindow: 100})

	assert.Empty(t, alerts)
}

func TestNewAlert_Validation(t *testing.T) {
	_, err := NewAlert("not-a-uuid", AlertRapidIdeaSubmission, shared.SeverityMedium, 15, nil)
	assert.Error(t, err)

	_, err = NewAlert(actorID, "unknown", shared.SeverityMedium, 15, nil)
	assert.Error(t, err)

	_, err = NewAlert(actorID, AlertRapidIdeaSubmission, shared.SeverityMedium, 0, nil)
	assert.Error(t, err)

	alert, err := NewAlert(actorID, AlertRapidIdeaSubmission, shared.SeverityMedium, 15, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, alert.ID)
	assert.NotNil(t, alert.Evidence)
}

func TestAlert_Dispute(t *testing.T) {
	alert, err := NewAlert(actorID, AlertRapidIdeaSubmission, shared.SeverityMedium, 15, nil)
	require.NoError(t, err)

	assert.Error(t, alert.SubmitDispute("   "))
	require.NoError(t, alert.SubmitDispute("  I was at a hackathon  "))
	assert.Equal(t, "I was at a hackathon", alert.DisputeMessage)

	alert.MarkReviewed()
	assert.True(t, alert.IsReviewed)
}
