// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"math"
	"regexp"
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// ActorID represents a unique actor (profile) identifier in UUID format.
// Actors are provisioned by the profile service; this engine never mints them.
type ActorID string

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// IsValid checks if the actor ID is a valid UUID.
func (a ActorID) IsValid() bool {
	return uuidRegex.MatchString(string(a))
}

// String returns the string representation.
func (a ActorID) String() string {
	return string(a)
}

// IsEmpty checks if the ID is empty.
func (a ActorID) IsEmpty() bool {
	return a == ""
}

// NewActorID creates a new ActorID with validation.
func NewActorID(id string) (ActorID, error) {
	aid := ActorID(strings.ToLower(strings.TrimSpace(id)))
	if !aid.IsValid() {
		return "", ErrInvalidActorID
	}
	return aid, nil
}

// TargetRef identifies the domain object an award points at
// (a project, idea, or review id). Free-form because the owning
// services control the format; only emptiness is rejected here.
type TargetRef string

// IsEmpty checks if the reference is empty.
func (t TargetRef) IsEmpty() bool {
	return strings.TrimSpace(string(t)) == ""
}

// String returns the string representation.
func (t TargetRef) String() string {
	return string(t)
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Value Object (Experience Points)
// ═══════════════════════════════════════════════════════════════════════════

// XP represents accumulated experience points for an actor.
type XP int64

const (
	// XP boundaries
	MinXP XP = 0
	MaxXP XP = 1000000000 // 1 billion XP cap
)

// IsValid checks if the XP value is within valid range.
func (x XP) IsValid() bool {
	return x >= MinXP && x <= MaxXP
}

// Int64 returns the underlying int64 value.
func (x XP) Int64() int64 {
	return int64(x)
}

// Add applies a signed amount and returns the result, clamped to [MinXP, MaxXP].
// Revocations can never push an actor below zero.
func (x XP) Add(amount int64) XP {
	result := XP(int64(x) + amount)
	if result > MaxXP {
		return MaxXP
	}
	if result < MinXP {
		return MinXP
	}
	return result
}

// Level calculates the level derived from XP:
// level = floor(sqrt(total_xp / 100)) + 1, never below 1.
func (x XP) Level() Level {
	if x <= 0 {
		return MinLevel
	}
	level := Level(math.Floor(math.Sqrt(float64(x)/100.0))) + 1
	if level < MinLevel {
		return MinLevel
	}
	return level
}

// NewXP creates a new XP value with validation.
func NewXP(amount int64) (XP, error) {
	if amount < int64(MinXP) {
		return 0, NewDomainError("shared", "NewXP", ErrNegativeValue, "XP cannot be negative")
	}
	if amount > int64(MaxXP) {
		return MaxXP, nil // Cap at max
	}
	return XP(amount), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Level Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Level represents an actor's derived level.
type Level int

// MinLevel is the floor every actor sits at, XP or not.
const MinLevel Level = 1

// IsValid checks if the level is within valid range.
func (l Level) IsValid() bool {
	return l >= MinLevel
}

// Int returns the underlying int value.
func (l Level) Int() int {
	return int(l)
}

// RequiredXP returns the minimum total XP needed to reach this level.
func (l Level) RequiredXP() int64 {
	if l <= MinLevel {
		return 0
	}
	n := int64(l) - 1
	return n * n * 100
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents an actor's position in the leaderboard.
// Unranked covers both "not yet computed" and "excluded because flagged".
type Rank int

const (
	MinRank  Rank = 1
	Unranked Rank = 0
)

// IsValid checks if the rank is valid.
func (r Rank) IsValid() bool {
	return r >= MinRank
}

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// IsUnranked checks if the actor has no rank.
func (r Rank) IsUnranked() bool {
	return r == Unranked
}

// IsTop returns true if the rank is in the top N.
func (r Rank) IsTop(n int) bool {
	return r.IsValid() && int(r) <= n
}

// IsTop100 checks if in top 100.
func (r Rank) IsTop100() bool {
	return r.IsTop(100)
}

// Compare returns the difference between two ranks.
// Positive value means improvement (moved up), negative means dropped.
func (r Rank) Compare(other Rank) int {
	return int(other) - int(r)
}

// NewRank creates a new Rank with validation.
func NewRank(position int) (Rank, error) {
	if position < 0 {
		return Unranked, NewDomainError("shared", "NewRank", ErrNegativeValue, "rank cannot be negative")
	}
	return Rank(position), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Bot Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// BotScore represents accumulated heuristic suspicion for an actor.
// It only ever grows; clearing a flag is an administrative action outside
// this engine.
type BotScore int

// BotFlagThreshold is the score at which an actor is flagged.
const BotFlagThreshold BotScore = 50

// IsValid checks if the score is non-negative.
func (b BotScore) IsValid() bool {
	return b >= 0
}

// Int returns the underlying int value.
func (b BotScore) Int() int {
	return int(b)
}

// Add accumulates a score increase. Negative increases are ignored to
// keep the score monotonic.
func (b BotScore) Add(increase int) BotScore {
	if increase <= 0 {
		return b
	}
	return b + BotScore(increase)
}

// ReachesThreshold reports whether the score warrants flagging.
func (b BotScore) ReachesThreshold() bool {
	return b >= BotFlagThreshold
}

// ═══════════════════════════════════════════════════════════════════════════
// Severity Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Severity classifies a bot alert.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// IsValid checks if the severity is one of the known values.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

// String returns the string representation.
func (s Severity) String() string {
	return string(s)
}

// NewSeverity creates a new Severity with validation.
func NewSeverity(value string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", ErrInvalidSeverity
	}
	return s, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a time period.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	return !t.From.IsZero() && !t.To.IsZero() && !t.From.After(t.To)
}

// Duration returns the duration of the time range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	return (tm.Equal(t.From) || tm.After(t.From)) && (tm.Equal(t.To) || tm.Before(t.To))
}

// NewTimeRange creates a new TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "'from' must be before 'to'")
	}
	return tr, nil
}

// LastHour returns a TimeRange for the rolling hour ending at the given time.
func LastHour(now time.Time) TimeRange {
	return TimeRange{From: now.Add(-time.Hour), To: now}
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Pagination represents pagination parameters.
type Pagination struct {
	Page     int
	PageSize int
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Offset returns the offset for database queries.
func (p Pagination) Offset() int {
	if p.Page <= 0 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// Limit returns the limit for database queries.
func (p Pagination) Limit() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

// NewPagination creates a new Pagination with defaults.
func NewPagination(page, pageSize int) Pagination {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return Pagination{Page: page, PageSize: pageSize}
}

// DefaultPagination returns default pagination.
func DefaultPagination() Pagination {
	return NewPagination(1, DefaultPageSize)
}
