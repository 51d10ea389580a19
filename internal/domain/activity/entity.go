// Package activity contains the inbound engagement event model: the typed
// events collaborating services emit when something reputation-worthy happens
// (a project is published, a demo is viewed, a review lands). Every event is
// validated at this boundary before the award pipeline sees it.
package activity

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// Domain errors for activity package.
var (
	ErrInvalidActorID   = errors.New("activity: invalid actor ID")
	ErrUnknownType      = errors.New("activity: unknown event type")
	ErrMissingProjectID = errors.New("activity: project ID is required")
	ErrMissingIdeaID    = errors.New("activity: idea ID is required")
	ErrMissingReviewID  = errors.New("activity: review ID is required")
	ErrMissingIdentity  = errors.New("activity: viewer identity is required")
	ErrFutureTimestamp  = errors.New("activity: timestamp cannot be in the future")
	ErrMalformedPayload = errors.New("activity: malformed event payload")
)

// Type classifies an inbound engagement event.
type Type string

const (
	TypeProjectPublished  Type = "project.published"
	TypeDemoViewed        Type = "demo.viewed"
	TypeIdeaSubmitted     Type = "idea.submitted"
	TypeIdeaReactionAdded Type = "idea.reaction_added"
	TypeReviewReceived    Type = "review.received"
	TypeVisibilityToggled Type = "profile.visibility_toggled"
)

// IsValid checks if the type is one of the known event types.
func (t Type) IsValid() bool {
	switch t {
	case TypeProjectPublished, TypeDemoViewed, TypeIdeaSubmitted,
		TypeIdeaReactionAdded, TypeReviewReceived, TypeVisibilityToggled:
		return true
	}
	return false
}

// String returns the string representation.
func (t Type) String() string {
	return string(t)
}

// Event is the interface every inbound engagement event implements.
// Actor() is the actor the event is attributed to for bot detection and
// unknown-actor rejection; award recipients may differ (a demo view is
// attributed to the viewer's action but rewards the project owner).
type Event interface {
	Type() Type
	Actor() shared.ActorID
	OccurredAt() time.Time
	Validate() error
}

// ═══════════════════════════════════════════════════════════════════════════
// Identity (authenticated actor or anonymous session)
// ═══════════════════════════════════════════════════════════════════════════

// Identity is who performed a view or reaction: either an authenticated actor
// or an anonymous session. Anonymous identities are only as stable as the
// client-supplied session token; the same person on a new session counts as a
// new identity.
type Identity struct {
	ActorID      shared.ActorID `json:"actor_id,omitempty"`
	SessionToken string         `json:"session_token,omitempty"`
}

// IsAuthenticated reports whether the identity is a known actor.
func (i Identity) IsAuthenticated() bool {
	return !i.ActorID.IsEmpty()
}

// IsZero reports whether neither an actor nor a session token is present.
func (i Identity) IsZero() bool {
	return i.ActorID.IsEmpty() && strings.TrimSpace(i.SessionToken) == ""
}

// Fingerprint returns a stable string for dedup keys. Authenticated actors
// use their ID; anonymous sessions use a truncated blake2b digest of the
// token so raw tokens never reach storage.
func (i Identity) Fingerprint() string {
	if i.IsAuthenticated() {
		return i.ActorID.String()
	}
	sum := blake2b.Sum256([]byte(i.SessionToken))
	return "anon:" + hex.EncodeToString(sum[:8])
}

// ═══════════════════════════════════════════════════════════════════════════
// Event variants
// ═══════════════════════════════════════════════════════════════════════════

// ProjectPublished is emitted by the project service when a project
// transitions to the published state.
type ProjectPublished struct {
	ActorID     shared.ActorID   `json:"actor_id"`
	ProjectID   shared.TargetRef `json:"project_id"`
	PublishedAt time.Time        `json:"published_at"`
}

// Type implements Event.
func (e ProjectPublished) Type() Type { return TypeProjectPublished }

// Actor implements Event.
func (e ProjectPublished) Actor() shared.ActorID { return e.ActorID }

// OccurredAt implements Event.
func (e ProjectPublished) OccurredAt() time.Time { return e.PublishedAt }

// Validate implements Event.
func (e ProjectPublished) Validate() error {
	if !e.ActorID.IsValid() {
		return ErrInvalidActorID
	}
	if e.ProjectID.IsEmpty() {
		return ErrMissingProjectID
	}
	return validateTimestamp(e.PublishedAt)
}

// DemoViewed is emitted by the demo-link click handler on the first click
// per (project, viewer) pair it observes. The engine still dedups, since
// delivery is at-least-once.
type DemoViewed struct {
	OwnerID   shared.ActorID   `json:"owner_id"`
	ProjectID shared.TargetRef `json:"project_id"`
	Viewer    Identity         `json:"viewer"`
	ViewedAt  time.Time        `json:"viewed_at"`
}

// Type implements Event.
func (e DemoViewed) Type() Type { return TypeDemoViewed }

// Actor implements Event.
func (e DemoViewed) Actor() shared.ActorID { return e.OwnerID }

// OccurredAt implements Event.
func (e DemoViewed) OccurredAt() time.Time { return e.ViewedAt }

// Validate implements Event.
func (e DemoViewed) Validate() error {
	if !e.OwnerID.IsValid() {
		return ErrInvalidActorID
	}
	if e.ProjectID.IsEmpty() {
		return ErrMissingProjectID
	}
	if e.Viewer.IsZero() {
		return ErrMissingIdentity
	}
	return validateTimestamp(e.ViewedAt)
}

// IdeaSubmitted is emitted by the idea service on idea insert.
type IdeaSubmitted struct {
	ActorID     shared.ActorID   `json:"actor_id"`
	IdeaID      shared.TargetRef `json:"idea_id"`
	SubmittedAt time.Time        `json:"submitted_at"`
}

// Type implements Event.
func (e IdeaSubmitted) Type() Type { return TypeIdeaSubmitted }

// Actor implements Event.
func (e IdeaSubmitted) Actor() shared.ActorID { return e.ActorID }

// OccurredAt implements Event.
func (e IdeaSubmitted) OccurredAt() time.Time { return e.SubmittedAt }

// Validate implements Event.
func (e IdeaSubmitted) Validate() error {
	if !e.ActorID.IsValid() {
		return ErrInvalidActorID
	}
	if e.IdeaID.IsEmpty() {
		return ErrMissingIdeaID
	}
	return validateTimestamp(e.SubmittedAt)
}

// IdeaReactionAdded is emitted by the idea service on reaction insert.
// The reward goes to the idea owner.
type IdeaReactionAdded struct {
	OwnerID   shared.ActorID   `json:"owner_id"`
	IdeaID    shared.TargetRef `json:"idea_id"`
	Reactor   Identity         `json:"reactor"`
	ReactedAt time.Time        `json:"reacted_at"`
}

// Type implements Event.
func (e IdeaReactionAdded) Type() Type { return TypeIdeaReactionAdded }

// Actor implements Event.
func (e IdeaReactionAdded) Actor() shared.ActorID { return e.OwnerID }

// OccurredAt implements Event.
func (e IdeaReactionAdded) OccurredAt() time.Time { return e.ReactedAt }

// Validate implements Event.
func (e IdeaReactionAdded) Validate() error {
	if !e.OwnerID.IsValid() {
		return ErrInvalidActorID
	}
	if e.IdeaID.IsEmpty() {
		return ErrMissingIdeaID
	}
	if e.Reactor.IsZero() {
		return ErrMissingIdentity
	}
	return validateTimestamp(e.ReactedAt)
}

// ReviewReceived is emitted by the review service on review insert.
// AuthorID is empty for anonymous reviews; anonymous reviews award nothing
// to anyone. AuthorVisible is the author's identity-visibility flag at the
// moment the review landed; later flips arrive as VisibilityToggled.
type ReviewReceived struct {
	OwnerID       shared.ActorID   `json:"owner_id"`
	ProjectID     shared.TargetRef `json:"project_id"`
	ReviewID      shared.TargetRef `json:"review_id"`
	AuthorID      shared.ActorID   `json:"author_id,omitempty"`
	AuthorVisible bool             `json:"author_visible"`
	ReceivedAt    time.Time        `json:"received_at"`
}

// Type implements Event.
func (e ReviewReceived) Type() Type { return TypeReviewReceived }

// Actor implements Event.
func (e ReviewReceived) Actor() shared.ActorID { return e.OwnerID }

// OccurredAt implements Event.
func (e ReviewReceived) OccurredAt() time.Time { return e.ReceivedAt }

// HasAuthenticatedAuthor reports whether the review has a known author.
func (e ReviewReceived) HasAuthenticatedAuthor() bool {
	return !e.AuthorID.IsEmpty()
}

// Validate implements Event.
func (e ReviewReceived) Validate() error {
	if !e.OwnerID.IsValid() {
		return ErrInvalidActorID
	}
	if e.ProjectID.IsEmpty() {
		return ErrMissingProjectID
	}
	if e.ReviewID.IsEmpty() {
		return ErrMissingReviewID
	}
	if !e.AuthorID.IsEmpty() && !e.AuthorID.IsValid() {
		return ErrInvalidActorID
	}
	return validateTimestamp(e.ReceivedAt)
}

// VisibilityToggled is emitted by the profile service when an actor flips
// their identity-visibility flag. AuthoredReviewIDs lists the reviews the
// actor has authored, so the public-review bonus can be reconciled.
type VisibilityToggled struct {
	ActorID           shared.ActorID     `json:"actor_id"`
	Visible           bool               `json:"visible"`
	AuthoredReviewIDs []shared.TargetRef `json:"authored_review_ids"`
	ToggledAt         time.Time          `json:"toggled_at"`
}

// Type implements Event.
func (e VisibilityToggled) Type() Type { return TypeVisibilityToggled }

// Actor implements Event.
func (e VisibilityToggled) Actor() shared.ActorID { return e.ActorID }

// OccurredAt implements Event.
func (e VisibilityToggled) OccurredAt() time.Time { return e.ToggledAt }

// Validate implements Event.
func (e VisibilityToggled) Validate() error {
	if !e.ActorID.IsValid() {
		return ErrInvalidActorID
	}
	for _, id := range e.AuthoredReviewIDs {
		if id.IsEmpty() {
			return ErrMissingReviewID
		}
	}
	return validateTimestamp(e.ToggledAt)
}

// validateTimestamp rejects timestamps from the future (1 minute clock-skew
// tolerance). Zero timestamps are filled in by Decode, not rejected here.
func validateTimestamp(t time.Time) error {
	if t.After(time.Now().Add(time.Minute)) {
		return ErrFutureTimestamp
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Boundary decoding
// ═══════════════════════════════════════════════════════════════════════════

// Decode parses an inbound payload into its typed event and validates it.
// A zero timestamp defaults to now, since most collaborators emit at the
// moment the action happens.
func Decode(eventType Type, payload json.RawMessage) (Event, error) {
	if !eventType.IsValid() {
		return nil, ErrUnknownType
	}

	var (
		event Event
		err   error
	)
	switch eventType {
	case TypeProjectPublished:
		var e ProjectPublished
		err = json.Unmarshal(payload, &e)
		if e.PublishedAt.IsZero() {
			e.PublishedAt = time.Now()
		}
		event = e
	case TypeDemoViewed:
		var e DemoViewed
		err = json.Unmarshal(payload, &e)
		if e.ViewedAt.IsZero() {
			e.ViewedAt = time.Now()
		}
		event = e
	case TypeIdeaSubmitted:
		var e IdeaSubmitted
		err = json.Unmarshal(payload, &e)
		if e.SubmittedAt.IsZero() {
			e.SubmittedAt = time.Now()
		}
		event = e
	case TypeIdeaReactionAdded:
		var e IdeaReactionAdded
		err = json.Unmarshal(payload, &e)
		if e.ReactedAt.IsZero() {
			e.ReactedAt = time.Now()
		}
		event = e
	case TypeReviewReceived:
		var e ReviewReceived
		err = json.Unmarshal(payload, &e)
		if e.ReceivedAt.IsZero() {
			e.ReceivedAt = time.Now()
		}
		event = e
	case TypeVisibilityToggled:
		var e VisibilityToggled
		err = json.Unmarshal(payload, &e)
		if e.ToggledAt.IsZero() {
			e.ToggledAt = time.Now()
		}
		event = e
	}
	if err != nil {
		return nil, ErrMalformedPayload
	}
	if err := event.Validate(); err != nil {
		return nil, err
	}
	return event, nil
}
