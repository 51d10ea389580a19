package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

const testActor = shared.ActorID("11111111-1111-1111-1111-111111111111")

func TestNewTransaction(t *testing.T) {
	tx, err := NewTransaction(testActor, 50, ReasonFirstProject, []shared.TargetRef{"proj-1"}, "first-project:actor")
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, testActor, tx.ActorID)
	assert.Equal(t, int64(50), tx.Amount)
	assert.False(t, tx.IsRevocation())
	assert.False(t, tx.CreatedAt.IsZero())
}

func TestNewTransaction_Validation(t *testing.T) {
	_, err := NewTransaction("bogus", 50, ReasonFirstProject, nil, "key")
	assert.ErrorIs(t, err, shared.ErrInvalidActorID)

	_, err = NewTransaction(testActor, 0, ReasonFirstProject, nil, "key")
	assert.ErrorIs(t, err, shared.ErrZeroAmount)

	_, err = NewTransaction(testActor, 50, "made-up", nil, "key")
	assert.ErrorIs(t, err, shared.ErrUnknownReason)

	_, err = NewTransaction(testActor, 50, ReasonFirstProject, nil, "   ")
	assert.ErrorIs(t, err, shared.ErrEmptyDedupKey)

	_, err = NewTransaction(testActor, 50, ReasonFirstProject, []shared.TargetRef{""}, "key")
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestTransaction_Revocation(t *testing.T) {
	tx, err := NewTransaction(testActor, -2, ReasonPublicReviewBonus, []shared.TargetRef{"rev-1"}, "review-bonus:rev-1:grant:0-revoke")
	require.NoError(t, err)
	assert.True(t, tx.IsRevocation())
}

func TestTransaction_HasTarget(t *testing.T) {
	tx, err := NewTransaction(testActor, 5, ReasonReviewReceived, []shared.TargetRef{"proj-1", "rev-1"}, "review:rev-1")
	require.NoError(t, err)

	assert.True(t, tx.HasTarget("rev-1"))
	assert.True(t, tx.HasTarget("proj-1"))
	assert.False(t, tx.HasTarget("rev-2"))
}

func TestTransaction_FreshIDs(t *testing.T) {
	a, err := NewTransaction(testActor, 1, ReasonDemoView, nil, "demo-view:a")
	require.NoError(t, err)
	b, err := NewTransaction(testActor, 1, ReasonDemoView, nil, "demo-view:b")
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestReason_IsValid(t *testing.T) {
	for _, r := range []Reason{
		ReasonFirstProject, ReasonAdditionalProject, ReasonDemoView,
		ReasonIdeaSubmitted, ReasonIdeaReaction, ReasonReviewReceived,
		ReasonPublicReviewBonus,
	} {
		assert.True(t, r.IsValid(), r.String())
	}
	assert.False(t, Reason("refund").IsValid())
	assert.False(t, Reason("").IsValid())
}
