package award

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerhub/reputation-engine/internal/domain/activity"
	"github.com/makerhub/reputation-engine/internal/domain/ledger"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

const (
	publisherID = shared.ActorID("11111111-1111-1111-1111-111111111111")
	ownerID     = shared.ActorID("22222222-2222-2222-2222-222222222222")
	authorID    = shared.ActorID("33333333-3333-3333-3333-333333333333")
)

func TestEvaluate_FirstProjectPublished(t *testing.T) {
	event := activity.ProjectPublished{
		ActorID:     publisherID,
		ProjectID:   "proj-1",
		PublishedAt: time.Now(),
	}

	decisions, err := Evaluate(event, Context{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, publisherID, d.Recipient)
	assert.Equal(t, XPFirstProject, d.Amount)
	assert.Equal(t, ledger.ReasonFirstProject, d.Reason)
	assert.Equal(t, FirstProjectKey(publisherID), d.DedupKey)
	assert.False(t, d.IsRevocation())
}

func TestEvaluate_AdditionalProjectPublished(t *testing.T) {
	event := activity.ProjectPublished{
		ActorID:     publisherID,
		ProjectID:   "proj-2",
		PublishedAt: time.Now(),
	}
	ctx := Context{
		FirstProjectConsumed: true,
		FirstProjectTarget:   "proj-1",
	}

	decisions, err := Evaluate(event, ctx)
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, XPAdditionalProject, d.Amount)
	assert.Equal(t, ledger.ReasonAdditionalProject, d.Reason)
	assert.Equal(t, ProjectKey("proj-2"), d.DedupKey)
}

func TestEvaluate_RedeliveredFirstPublishStaysSilent(t *testing.T) {
	// The publish that consumed the first-project key is delivered again.
	// It must not fall through to the +10 per-project path.
	event := activity.ProjectPublished{
		ActorID:     publisherID,
		ProjectID:   "proj-1",
		PublishedAt: time.Now(),
	}
	ctx := Context{
		FirstProjectConsumed: true,
		FirstProjectTarget:   "proj-1",
	}

	decisions, err := Evaluate(event, ctx)
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestEvaluate_DemoViewed(t *testing.T) {
	viewer := activity.Identity{SessionToken: "session-abc"}
	event := activity.DemoViewed{
		OwnerID:   ownerID,
		ProjectID: "proj-1",
		Viewer:    viewer,
		ViewedAt:  time.Now(),
	}

	decisions, err := Evaluate(event, Context{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)

	d := decisions[0]
	assert.Equal(t, ownerID, d.Recipient)
	assert.Equal(t, XPDemoView, d.Amount)
	assert.Equal(t, ledger.ReasonDemoView, d.Reason)
	assert.Equal(t, DemoViewKey("proj-1", viewer), d.DedupKey)
}

func TestDemoViewKey_DistinguishesViewers(t *testing.T) {
	authed := activity.Identity{ActorID: authorID}
	anonA := activity.Identity{SessionToken: "token-a"}
	anonB := activity.Identity{SessionToken: "token-b"}

	keys := map[string]bool{
		DemoViewKey("proj-1", authed): true,
		DemoViewKey("proj-1", anonA):  true,
		DemoViewKey("proj-1", anonB):  true,
		DemoViewKey("proj-2", anonA):  true,
	}
	assert.Len(t, keys, 4, "every (project, viewer) pair gets its own key")

	// Same viewer, same project: same key on redelivery.
	assert.Equal(t, DemoViewKey("proj-1", anonA), DemoViewKey("proj-1", anonA))
}

func TestEvaluate_IdeaSubmitted(t *testing.T) {
	event := activity.IdeaSubmitted{
		ActorID:     publisherID,
		IdeaID:      "idea-1",
		SubmittedAt: time.Now(),
	}

	decisions, err := Evaluate(event, Context{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, XPIdeaSubmitted, decisions[0].Amount)
	assert.Equal(t, IdeaKey("idea-1"), decisions[0].DedupKey)
}

func TestEvaluate_IdeaReactionRewardsOwner(t *testing.T) {
	event := activity.IdeaReactionAdded{
		OwnerID:   ownerID,
		IdeaID:    "idea-1",
		Reactor:   activity.Identity{ActorID: authorID},
		ReactedAt: time.Now(),
	}

	decisions, err := Evaluate(event, Context{})
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, ownerID, decisions[0].Recipient)
	assert.Equal(t, XPIdeaReaction, decisions[0].Amount)
}

func TestEvaluate_ReviewReceivedAuthenticated(t *testing.T) {
	event := activity.ReviewReceived{
		OwnerID:    ownerID,
		ProjectID:  "proj-1",
		ReviewID:   "rev-1",
		AuthorID:   authorID,
		ReceivedAt: time.Now(),
	}

	decisions, err := Evaluate(event, Context{AuthorVisible: false})
	require.NoError(t, err)
	require.Len(t, decisions, 1, "hidden author earns no bonus")
	assert.Equal(t, ownerID, decisions[0].Recipient)
	assert.Equal(t, XPReviewReceived, decisions[0].Amount)
	assert.Equal(t, ReviewKey("rev-1"), decisions[0].DedupKey)
}

func TestEvaluate_ReviewReceivedWithVisibleAuthor(t *testing.T) {
	event := activity.ReviewReceived{
		OwnerID:    ownerID,
		ProjectID:  "proj-1",
		ReviewID:   "rev-1",
		AuthorID:   authorID,
		ReceivedAt: time.Now(),
	}

	decisions, err := Evaluate(event, Context{AuthorVisible: true})
	require.NoError(t, err)
	require.Len(t, decisions, 2)

	assert.Equal(t, ownerID, decisions[0].Recipient)
	assert.Equal(t, authorID, decisions[1].Recipient)
	assert.Equal(t, XPPublicReviewBonus, decisions[1].Amount)
	assert.Equal(t, ReviewBonusGrantKey("rev-1", 0), decisions[1].DedupKey)
}

func TestEvaluate_ReviewBonusNotRegrantedWhileInEffect(t *testing.T) {
	event := activity.ReviewReceived{
		OwnerID:    ownerID,
		ProjectID:  "proj-1",
		ReviewID:   "rev-1",
		AuthorID:   authorID,
		ReceivedAt: time.Now(),
	}
	ctx := Context{
		AuthorVisible: true,
		ReviewBonusStates: map[shared.TargetRef]ledger.GrantState{
			"rev-1": {Grants: 1, Revokes: 0},
		},
	}

	decisions, err := Evaluate(event, ctx)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	assert.Equal(t, ledger.ReasonReviewReceived, decisions[0].Reason)
}

func TestEvaluate_AnonymousReviewAwardsNothing(t *testing.T) {
	event := activity.ReviewReceived{
		OwnerID:    ownerID,
		ProjectID:  "proj-1",
		ReviewID:   "rev-1",
		ReceivedAt: time.Now(),
	}

	decisions, err := Evaluate(event, Context{AuthorVisible: true})
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestEvaluate_VisibilityToggleGrantsAndRevokes(t *testing.T) {
	// Toggle history on -> off -> on must net to [+2, -2, +2] with three
	// distinct dedup keys.
	states := map[shared.TargetRef]ledger.GrantState{"rev-1": {}}

	toggle := func(visible bool) []Decision {
		decisions, err := Evaluate(activity.VisibilityToggled{
			ActorID:           authorID,
			Visible:           visible,
			AuthoredReviewIDs: []shared.TargetRef{"rev-1"},
			ToggledAt:         time.Now(),
		}, Context{ReviewBonusStates: states})
		require.NoError(t, err)
		return decisions
	}

	first := toggle(true)
	require.Len(t, first, 1)
	assert.Equal(t, XPPublicReviewBonus, first[0].Amount)
	assert.Equal(t, ReviewBonusGrantKey("rev-1", 0), first[0].DedupKey)
	states["rev-1"] = ledger.GrantState{Grants: 1}

	second := toggle(false)
	require.Len(t, second, 1)
	assert.Equal(t, -XPPublicReviewBonus, second[0].Amount)
	assert.True(t, second[0].IsRevocation())
	assert.Equal(t, ReviewBonusRevokeKey("rev-1", 0), second[0].DedupKey)
	states["rev-1"] = ledger.GrantState{Grants: 1, Revokes: 1}

	third := toggle(true)
	require.Len(t, third, 1)
	assert.Equal(t, XPPublicReviewBonus, third[0].Amount)
	assert.Equal(t, ReviewBonusGrantKey("rev-1", 1), third[0].DedupKey)

	keys := map[string]bool{
		first[0].DedupKey:  true,
		second[0].DedupKey: true,
		third[0].DedupKey:  true,
	}
	assert.Len(t, keys, 3)
}

func TestEvaluate_VisibilityToggleIsIdempotentPerState(t *testing.T) {
	// Toggling off with no outstanding grant does nothing.
	decisions, err := Evaluate(activity.VisibilityToggled{
		ActorID:           authorID,
		Visible:           false,
		AuthoredReviewIDs: []shared.TargetRef{"rev-1"},
		ToggledAt:         time.Now(),
	}, Context{ReviewBonusStates: map[shared.TargetRef]ledger.GrantState{}})
	require.NoError(t, err)
	assert.Empty(t, decisions)

	// Toggling on with a grant already in effect does nothing.
	decisions, err = Evaluate(activity.VisibilityToggled{
		ActorID:           authorID,
		Visible:           true,
		AuthoredReviewIDs: []shared.TargetRef{"rev-1"},
		ToggledAt:         time.Now(),
	}, Context{ReviewBonusStates: map[shared.TargetRef]ledger.GrantState{
		"rev-1": {Grants: 1},
	}})
	require.NoError(t, err)
	assert.Empty(t, decisions)
}

func TestGrantState_InEffect(t *testing.T) {
	assert.False(t, ledger.GrantState{}.InEffect())
	assert.True(t, ledger.GrantState{Grants: 1}.InEffect())
	assert.False(t, ledger.GrantState{Grants: 1, Revokes: 1}.InEffect())
	assert.True(t, ledger.GrantState{Grants: 2, Revokes: 1}.InEffect())
}
