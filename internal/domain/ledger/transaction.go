// Package ledger contains the append-only XP transaction log, the engine's
// source of truth. Transactions are immutable once written; revocation is a
// new negative transaction, never an update or delete.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// Reason classifies why a transaction was appended. The set is fixed policy,
// not runtime-configurable.
type Reason string

const (
	ReasonFirstProject      Reason = "first-project"
	ReasonAdditionalProject Reason = "additional-project"
	ReasonDemoView          Reason = "demo-view"
	ReasonIdeaSubmitted     Reason = "idea-submitted"
	ReasonIdeaReaction      Reason = "idea-reaction"
	ReasonReviewReceived    Reason = "review-received"
	ReasonPublicReviewBonus Reason = "public-review-bonus"
)

// IsValid checks if the reason is one of the known values.
func (r Reason) IsValid() bool {
	switch r {
	case ReasonFirstProject, ReasonAdditionalProject, ReasonDemoView,
		ReasonIdeaSubmitted, ReasonIdeaReaction, ReasonReviewReceived,
		ReasonPublicReviewBonus:
		return true
	}
	return false
}

// String returns the string representation.
func (r Reason) String() string {
	return string(r)
}

// Transaction is a single immutable ledger entry. Positive amounts are
// awards, negative amounts are revocations.
type Transaction struct {
	ID         string
	ActorID    shared.ActorID
	Amount     int64
	Reason     Reason
	TargetRefs []shared.TargetRef
	DedupKey   string
	CreatedAt  time.Time
}

// NewTransaction creates a validated ledger transaction with a fresh ID.
func NewTransaction(actorID shared.ActorID, amount int64, reason Reason, targetRefs []shared.TargetRef, dedupKey string) (*Transaction, error) {
	if !actorID.IsValid() {
		return nil, shared.ErrInvalidActorID
	}
	if amount == 0 {
		return nil, shared.ErrZeroAmount
	}
	if !reason.IsValid() {
		return nil, shared.ErrUnknownReason
	}
	if strings.TrimSpace(dedupKey) == "" {
		return nil, shared.ErrEmptyDedupKey
	}
	for _, ref := range targetRefs {
		if ref.IsEmpty() {
			return nil, shared.NewDomainError("ledger", "NewTransaction", shared.ErrEmptyValue, "target ref cannot be empty")
		}
	}

	return &Transaction{
		ID:         uuid.NewString(),
		ActorID:    actorID,
		Amount:     amount,
		Reason:     reason,
		TargetRefs: targetRefs,
		DedupKey:   dedupKey,
		CreatedAt:  time.Now(),
	}, nil
}

// IsRevocation reports whether the transaction takes XP away.
func (t *Transaction) IsRevocation() bool {
	return t.Amount < 0
}

// HasTarget reports whether the transaction references the given target.
func (t *Transaction) HasTarget(ref shared.TargetRef) bool {
	for _, r := range t.TargetRefs {
		if r == ref {
			return true
		}
	}
	return false
}
