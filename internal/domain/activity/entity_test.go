package activity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

const validActorID = "11111111-1111-1111-1111-111111111111"

func TestDecode_ProjectPublished(t *testing.T) {
	payload := json.RawMessage(`{
		"actor_id": "` + validActorID + `",
		"project_id": "proj-1",
		"published_at": "2026-08-01T10:00:00Z"
	}`)

	event, err := Decode(TypeProjectPublished, payload)
	require.NoError(t, err)

	published, ok := event.(ProjectPublished)
	require.True(t, ok)
	assert.Equal(t, shared.ActorID(validActorID), published.ActorID)
	assert.Equal(t, shared.TargetRef("proj-1"), published.ProjectID)
	assert.Equal(t, shared.ActorID(validActorID), event.Actor())
}

func TestDecode_ZeroTimestampDefaultsToNow(t *testing.T) {
	payload := json.RawMessage(`{
		"actor_id": "` + validActorID + `",
		"idea_id": "idea-1"
	}`)

	event, err := Decode(TypeIdeaSubmitted, payload)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), event.OccurredAt(), 5*time.Second)
}

func TestDecode_MalformedPayload(t *testing.T) {
	_, err := Decode(TypeProjectPublished, json.RawMessage(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode("project.deleted", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDecode_RejectsInvalidActor(t *testing.T) {
	payload := json.RawMessage(`{
		"actor_id": "bogus",
		"project_id": "proj-1"
	}`)

	_, err := Decode(TypeProjectPublished, payload)
	assert.ErrorIs(t, err, ErrInvalidActorID)
}

func TestDecode_RejectsFutureTimestamp(t *testing.T) {
	future := time.Now().Add(time.Hour).Format(time.RFC3339)
	payload := json.RawMessage(`{
		"actor_id": "` + validActorID + `",
		"project_id": "proj-1",
		"published_at": "` + future + `"
	}`)

	_, err := Decode(TypeProjectPublished, payload)
	assert.ErrorIs(t, err, ErrFutureTimestamp)
}

func TestDemoViewed_RequiresViewerIdentity(t *testing.T) {
	event := DemoViewed{
		OwnerID:   shared.ActorID(validActorID),
		ProjectID: "proj-1",
		ViewedAt:  time.Now(),
	}
	assert.ErrorIs(t, event.Validate(), ErrMissingIdentity)

	event.Viewer = Identity{SessionToken: "tok"}
	assert.NoError(t, event.Validate())
}

func TestReviewReceived_AnonymousAuthorIsValid(t *testing.T) {
	event := ReviewReceived{
		OwnerID:    shared.ActorID(validActorID),
		ProjectID:  "proj-1",
		ReviewID:   "rev-1",
		ReceivedAt: time.Now(),
	}
	require.NoError(t, event.Validate())
	assert.False(t, event.HasAuthenticatedAuthor())

	event.AuthorID = "not-a-uuid"
	assert.ErrorIs(t, event.Validate(), ErrInvalidActorID)
}

func TestVisibilityToggled_RejectsEmptyReviewRefs(t *testing.T) {
	event := VisibilityToggled{
		ActorID:           shared.ActorID(validActorID),
		Visible:           true,
		AuthoredReviewIDs: []shared.TargetRef{"rev-1", "  "},
		ToggledAt:         time.Now(),
	}
	assert.ErrorIs(t, event.Validate(), ErrMissingReviewID)
}

func TestIdentity_Fingerprint(t *testing.T) {
	authed := Identity{ActorID: shared.ActorID(validActorID)}
	assert.Equal(t, validActorID, authed.Fingerprint())

	anon := Identity{SessionToken: "secret-token"}
	fp := anon.Fingerprint()
	assert.Contains(t, fp, "anon:")
	assert.NotContains(t, fp, "secret-token", "raw tokens never reach storage")

	// Stable for the same token, distinct across tokens.
	assert.Equal(t, fp, Identity{SessionToken: "secret-token"}.Fingerprint())
	assert.NotEqual(t, fp, Identity{SessionToken: "other-token"}.Fingerprint())
}

func TestIdentity_Classification(t *testing.T) {
	assert.True(t, Identity{ActorID: shared.ActorID(validActorID)}.IsAuthenticated())
	assert.False(t, Identity{SessionToken: "tok"}.IsAuthenticated())
	assert.True(t, Identity{}.IsZero())
	assert.False(t, Identity{SessionToken: "tok"}.IsZero())
}

func TestType_IsValid(t *testing.T) {
	for _, typ := range []Type{
		TypeProjectPublished, TypeDemoViewed, TypeIdeaSubmitted,
		TypeIdeaReactionAdded, TypeReviewReceived, TypeVisibilityToggled,
	} {
		assert.True(t, typ.IsValid(), string(typ))
	}
	assert.False(t, Type("project.archived").IsValid())
	assert.False(t, Type("").IsValid())
}
