package leaderboard

import (
	"time"

	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is the leaderboard as of one completed recompute pass. The
// recompute job diffs the new snapshot against the previous one to publish
// movement events; a failed pass never replaces the previous snapshot.
type Snapshot struct {
	TakenAt time.Time
	Entries []*Standing

	byID map[shared.ActorID]*Standing
}

// NewSnapshot builds a snapshot from ranked standings.
func NewSnapshot(entries []*Standing) *Snapshot {
	byID := make(map[shared.ActorID]*Standing, len(entries))
	for _, entry := range entries {
		byID[entry.ActorID] = entry
	}
	return &Snapshot{
		TakenAt: time.Now().UTC(),
		Entries: entries,
		byID:    byID,
	}
}

// Get returns the standing for an actor, or nil.
func (s *Snapshot) Get(actorID shared.ActorID) *Standing {
	if s == nil || s.byID == nil {
		return nil
	}
	return s.byID[actorID]
}

// Contains reports whether an actor appears in the snapshot.
func (s *Snapshot) Contains(actorID shared.ActorID) bool {
	return s.Get(actorID) != nil
}

// IsEmpty returns true if the snapshot holds no standings.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Entries) == 0
}

// Count returns the number of standings.
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT DIFF
// ══════════════════════════════════════════════════════════════════════════════

// TopChange records an actor crossing the top-100 boundary.
type TopChange struct {
	ActorID shared.ActorID
	OldRank shared.Rank
	NewRank shared.Rank
	Entered bool // true = entered top-100, false = left
}

// Diff captures the movement between two snapshots.
type Diff struct {
	RankChanges map[shared.ActorID]RankChange
	NewEntries  []*Standing
	Removed     []*Standing
	TopChanges  []TopChange
}

// HasChanges returns true if anything moved.
func (d *Diff) HasChanges() bool {
	return len(d.RankChanges) > 0 || len(d.NewEntries) > 0 || len(d.Removed) > 0
}

// CalculateDiff computes movement from old to new. old may be nil (first
// pass); every new entry then counts as new with no movement. Actors present
// before but absent now were flagged out (or removed upstream).
func CalculateDiff(old, new *Snapshot) *Diff {
	diff := &Diff{
		RankChanges: make(map[shared.ActorID]RankChange),
		NewEntries:  make([]*Standing, 0),
		Removed:     make([]*Standing, 0),
		TopChanges:  make([]TopChange, 0),
	}

	if new == nil {
		return diff
	}

	if old.IsEmpty() {
		diff.NewEntries = append(diff.NewEntries, new.Entries...)
		return diff
	}

	for _, entry := range new.Entries {
		prev := old.Get(entry.ActorID)
		if prev == nil {
			entry.RankChange = 0
			diff.NewEntries = append(diff.NewEntries, entry)
			continue
		}

		change := RankChange(int(prev.Rank) - int(entry.Rank))
		entry.RankChange = change
		if change != 0 {
			diff.RankChanges[entry.ActorID] = change
		}

		wasTop := prev.Rank.IsTop(TopBadgeSize)
		isTop := entry.Rank.IsTop(TopBadgeSize)
		if wasTop != isTop {
			diff.TopChanges = append(diff.TopChanges, TopChange{
				ActorID: entry.ActorID,
				OldRank: prev.Rank,
				NewRank: entry.Rank,
				Entered: isTop,
			})
		}
	}

	for _, prev := range old.Entries {
		if !new.Contains(prev.ActorID) {
			diff.Removed = append(diff.Removed, prev)
		}
	}

	return diff
}
