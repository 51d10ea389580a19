// Package award contains the pure XP rule table: the mapping from an inbound
// engagement event to signed XP decisions with at-most-once dedup keys. The
// package owns no state; the pipeline supplies the slice of history a rule
// needs and persists whatever comes back.
package award

import (
	"fmt"

	"github.com/makerhub/reputation-engine/internal/domain/activity"
	"github.com/makerhub/reputation-engine/internal/domain/ledger"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// Fixed XP amounts per rule. Policy, not configuration.
const (
	XPFirstProject      int64 = 50
	XPAdditionalProject int64 = 10
	XPDemoView          int64 = 1
	XPIdeaSubmitted     int64 = 5
	XPIdeaReaction      int64 = 2
	XPReviewReceived    int64 = 5
	XPPublicReviewBonus int64 = 2
)

// Decision is one prospective ledger append. The pipeline passes each
// decision to the ledger, which enforces the dedup key.
type Decision struct {
	Recipient  shared.ActorID
	Amount     int64
	Reason     ledger.Reason
	TargetRefs []shared.TargetRef
	DedupKey   string
}

// IsRevocation reports whether the decision takes XP away.
func (d Decision) IsRevocation() bool {
	return d.Amount < 0
}

// Context carries the history slice the rules need to stay pure. The
// pipeline assembles it from the ledger and actor store before calling
// Evaluate.
type Context struct {
	// FirstProjectConsumed is true once the publisher has used up the
	// one-time first-project award; FirstProjectTarget names the project
	// that consumed it, so a redelivered first publish is recognized
	// instead of falling through to the per-project award.
	FirstProjectConsumed bool
	FirstProjectTarget   shared.TargetRef

	// AuthorVisible is the review author's identity-visibility flag at
	// evaluation time.
	AuthorVisible bool

	// ReviewBonusStates holds the applied grant/revoke counts for the
	// public-review bonus per review. Consulted instead of blindly
	// re-awarding when visibility flips.
	ReviewBonusStates map[shared.TargetRef]ledger.GrantState
}

// ═══════════════════════════════════════════════════════════════════════════
// Dedup key builders
// ═══════════════════════════════════════════════════════════════════════════

// FirstProjectKey scopes the first-project award to once per publisher.
func FirstProjectKey(actorID shared.ActorID) string {
	return "first-project:" + actorID.String()
}

// ProjectKey scopes the per-project award to once per project.
func ProjectKey(projectID shared.TargetRef) string {
	return "project:" + projectID.String()
}

// DemoViewKey scopes the demo-view award to once per (project, viewer).
func DemoViewKey(projectID shared.TargetRef, viewer activity.Identity) string {
	return "demo-view:" + projectID.String() + ":" + viewer.Fingerprint()
}

// IdeaKey scopes the idea-submission award to once per idea.
func IdeaKey(ideaID shared.TargetRef) string {
	return "idea:" + ideaID.String()
}

// IdeaReactionKey scopes the reaction award to once per (idea, reactor).
// Anonymous reactors are only stable within a session token; cross-session
// duplicates are a known limitation of the upstream token.
func IdeaReactionKey(ideaID shared.TargetRef, reactor activity.Identity) string {
	return "idea-reaction:" + ideaID.String() + ":" + reactor.Fingerprint()
}

// ReviewKey scopes the review-received award to once per review.
func ReviewKey(reviewID shared.TargetRef) string {
	return "review:" + reviewID.String()
}

// ReviewBonusGrantKey scopes one generation of the public-review bonus.
// Each revoke-then-regrant cycle advances the generation, so the toggle
// history on -> off -> on yields three distinct keys.
func ReviewBonusGrantKey(reviewID shared.TargetRef, generation int) string {
	return fmt.Sprintf("review-bonus:%s:grant:%d", reviewID, generation)
}

// ReviewBonusRevokeKey is the matching grant key plus a revoke suffix, so a
// revoke can itself apply only once.
func ReviewBonusRevokeKey(reviewID shared.TargetRef, generation int) string {
	return ReviewBonusGrantKey(reviewID, generation) + "-revoke"
}

// ═══════════════════════════════════════════════════════════════════════════
// Rule evaluation
// ═══════════════════════════════════════════════════════════════════════════

// Evaluate maps an event to zero or more XP decisions.
//
// Rule table (recipient, amount, dedup scope):
//
//	first project published    publisher   +50  once per publisher
//	subsequent project         publisher   +10  once per project
//	demo viewed                owner        +1  once per (project, viewer)
//	idea submitted             submitter    +5  once per idea
//	idea reaction received     idea owner   +2  once per (idea, reactor)
//	review received            owner        +5  once per review, authored only
//	public-review bonus        reviewer     +2  once per review while visible
//
// Anonymous reviews produce no decisions for anyone. Visibility toggles
// reconcile the bonus exactly once in either direction.
func Evaluate(event activity.Event, ctx Context) ([]Decision, error) {
	switch e := event.(type) {
	case activity.ProjectPublished:
		return evaluateProjectPublished(e, ctx), nil
	case activity.DemoViewed:
		return []Decision{{
			Recipient:  e.OwnerID,
			Amount:     XPDemoView,
			Reason:     ledger.ReasonDemoView,
			TargetRefs: []shared.TargetRef{e.ProjectID},
			DedupKey:   DemoViewKey(e.ProjectID, e.Viewer),
		}}, nil
	case activity.IdeaSubmitted:
		return []Decision{{
			Recipient:  e.ActorID,
			Amount:     XPIdeaSubmitted,
			Reason:     ledger.ReasonIdeaSubmitted,
			TargetRefs: []shared.TargetRef{e.IdeaID},
			DedupKey:   IdeaKey(e.IdeaID),
		}}, nil
	case activity.IdeaReactionAdded:
		return []Decision{{
			Recipient:  e.OwnerID,
			Amount:     XPIdeaReaction,
			Reason:     ledger.ReasonIdeaReaction,
			TargetRefs: []shared.TargetRef{e.IdeaID},
			DedupKey:   IdeaReactionKey(e.IdeaID, e.Reactor),
		}}, nil
	case activity.ReviewReceived:
		return evaluateReviewReceived(e, ctx), nil
	case activity.VisibilityToggled:
		return evaluateVisibilityToggled(e, ctx), nil
	default:
		return nil, activity.ErrUnknownType
	}
}

// evaluateProjectPublished picks between the one-time first-project award and
// the per-project award. A redelivery of the publish that consumed the
// first-project key must not fall through to the +10 path.
func evaluateProjectPublished(e activity.ProjectPublished, ctx Context) []Decision {
	if ctx.FirstProjectConsumed && ctx.FirstProjectTarget == e.ProjectID {
		return nil
	}
	if ctx.FirstProjectConsumed {
		return []Decision{{
			Recipient:  e.ActorID,
			Amount:     XPAdditionalProject,
			Reason:     ledger.ReasonAdditionalProject,
			TargetRefs: []shared.TargetRef{e.ProjectID},
			DedupKey:   ProjectKey(e.ProjectID),
		}}
	}
	return []Decision{{
		Recipient:  e.ActorID,
		Amount:     XPFirstProject,
		Reason:     ledger.ReasonFirstProject,
		TargetRefs: []shared.TargetRef{e.ProjectID},
		DedupKey:   FirstProjectKey(e.ActorID),
	}}
}

func evaluateReviewReceived(e activity.ReviewReceived, ctx Context) []Decision {
	if !e.HasAuthenticatedAuthor() {
		// Anonymous reviews award nothing to either party.
		return nil
	}

	decisions := []Decision{{
		Recipient:  e.OwnerID,
		Amount:     XPReviewReceived,
		Reason:     ledger.ReasonReviewReceived,
		TargetRefs: []shared.TargetRef{e.ReviewID, e.ProjectID},
		DedupKey:   ReviewKey(e.ReviewID),
	}}

	if ctx.AuthorVisible {
		state := ctx.ReviewBonusStates[e.ReviewID]
		if !state.InEffect() {
			decisions = append(decisions, Decision{
				Recipient:  e.AuthorID,
				Amount:     XPPublicReviewBonus,
				Reason:     ledger.ReasonPublicReviewBonus,
				TargetRefs: []shared.TargetRef{e.ReviewID},
				DedupKey:   ReviewBonusGrantKey(e.ReviewID, state.Grants),
			})
		}
	}

	return decisions
}

// evaluateVisibilityToggled reconciles the public-review bonus for every
// review the actor has authored: grant where the flag turned on and no grant
// is outstanding, revoke where it turned off and one is.
func evaluateVisibilityToggled(e activity.VisibilityToggled, ctx Context) []Decision {
	var decisions []Decision
	for _, reviewID := range e.AuthoredReviewIDs {
		state := ctx.ReviewBonusStates[reviewID]
		switch {
		case e.Visible && !state.InEffect():
			decisions = append(decisions, Decision{
				Recipient:  e.ActorID,
				Amount:     XPPublicReviewBonus,
				Reason:     ledger.ReasonPublicReviewBonus,
				TargetRefs: []shared.TargetRef{reviewID},
				DedupKey:   ReviewBonusGrantKey(reviewID, state.Grants),
			})
		case !e.Visible && state.InEffect():
			decisions = append(decisions, Decision{
				Recipient:  e.ActorID,
				Amount:     -XPPublicReviewBonus,
				Reason:     ledger.ReasonPublicReviewBonus,
				TargetRefs: []shared.TargetRef{reviewID},
				DedupKey:   ReviewBonusRevokeKey(reviewID, state.Revokes),
			})
		}
	}
	return decisions
}
