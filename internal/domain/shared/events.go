// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Ledger events
	EventXPGained  EventType = "ledger.xp_gained"
	EventXPRevoked EventType = "ledger.xp_revoked"

	// Actor events
	EventLevelUp      EventType = "actor.level_up"
	EventActorFlagged EventType = "actor.flagged"

	// Leaderboard events
	EventRankChanged           EventType = "leaderboard.rank_changed"
	EventEnteredTopN           EventType = "leaderboard.entered_top_n"
	EventLeftTopN              EventType = "leaderboard.left_top_n"
	EventLeaderboardRecomputed EventType = "leaderboard.recomputed"

	// Bot watch events
	EventBotAlertRaised EventType = "botwatch.alert_raised"

	// System events
	EventAggregateRepaired EventType = "system.aggregate_repaired"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Ledger Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGainedEvent is emitted when a transaction is applied to an actor's ledger.
// Negative amounts (revocations) are published as EventXPRevoked instead.
type XPGainedEvent struct {
	BaseEvent
	ActorID  string `json:"actor_id"`
	Amount   int64  `json:"amount"`
	NewTotal int64  `json:"new_total"`
	Reason   string `json:"reason"`
	DedupKey string `json:"dedup_key"`
}

// Payload implements Event interface.
func (e XPGainedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id":  e.ActorID,
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"reason":    e.Reason,
		"dedup_key": e.DedupKey,
	}
}

// NewXPGainedEvent creates a new XPGainedEvent.
func NewXPGainedEvent(actorID string, amount, newTotal int64, reason, dedupKey string) XPGainedEvent {
	eventType := EventXPGained
	if amount < 0 {
		eventType = EventXPRevoked
	}
	return XPGainedEvent{
		BaseEvent: NewBaseEvent(eventType, actorID),
		ActorID:   actorID,
		Amount:    amount,
		NewTotal:  newTotal,
		Reason:    reason,
		DedupKey:  dedupKey,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Actor Events
// ═══════════════════════════════════════════════════════════════════════════

// LevelUpEvent is emitted when an actor's derived level increases.
type LevelUpEvent struct {
	BaseEvent
	ActorID  string `json:"actor_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
	TotalXP  int64  `json:"total_xp"`
}

// Payload implements Event interface.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id":  e.ActorID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
		"total_xp":  e.TotalXP,
	}
}

// NewLevelUpEvent creates a new LevelUpEvent.
func NewLevelUpEvent(actorID string, oldLevel, newLevel int, totalXP int64) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, actorID),
		ActorID:   actorID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
		TotalXP:   totalXP,
	}
}

// ActorFlaggedEvent is emitted when an actor's bot score crosses the flag
// threshold. The flag is monotonic; this event fires at most once per actor
// unless an administrator clears the flag externally.
type ActorFlaggedEvent struct {
	BaseEvent
	ActorID   string `json:"actor_id"`
	BotScore  int    `json:"bot_score"`
	AlertType string `json:"alert_type"`
}

// Payload implements Event interface.
func (e ActorFlaggedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id":   e.ActorID,
		"bot_score":  e.BotScore,
		"alert_type": e.AlertType,
	}
}

// NewActorFlaggedEvent creates a new ActorFlaggedEvent.
func NewActorFlaggedEvent(actorID string, botScore int, alertType string) ActorFlaggedEvent {
	return ActorFlaggedEvent{
		BaseEvent: NewBaseEvent(EventActorFlagged, actorID),
		ActorID:   actorID,
		BotScore:  botScore,
		AlertType: alertType,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Leaderboard Events
// ═══════════════════════════════════════════════════════════════════════════

// RankChangedEvent is emitted when a recompute pass moves an actor's rank.
type RankChangedEvent struct {
	BaseEvent
	ActorID    string `json:"actor_id"`
	OldRank    int    `json:"old_rank"`
	NewRank    int    `json:"new_rank"`
	RankChange int    `json:"rank_change"` // Positive = moved up, Negative = moved down
}

// Payload implements Event interface.
func (e RankChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id":    e.ActorID,
		"old_rank":    e.OldRank,
		"new_rank":    e.NewRank,
		"rank_change": e.RankChange,
	}
}

// NewRankChangedEvent creates a new RankChangedEvent.
func NewRankChangedEvent(actorID string, oldRank, newRank int) RankChangedEvent {
	return RankChangedEvent{
		BaseEvent:  NewBaseEvent(EventRankChanged, actorID),
		ActorID:    actorID,
		OldRank:    oldRank,
		NewRank:    newRank,
		RankChange: oldRank - newRank, // Positive means moved up
	}
}

// MovedUp returns true if the actor moved up in rank.
func (e RankChangedEvent) MovedUp() bool {
	return e.RankChange > 0
}

// EnteredTopNEvent is emitted when an actor enters the top N.
type EnteredTopNEvent struct {
	BaseEvent
	ActorID string `json:"actor_id"`
	TopN    int    `json:"top_n"`
	NewRank int    `json:"new_rank"`
}

// Payload implements Event interface.
func (e EnteredTopNEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id": e.ActorID,
		"top_n":    e.TopN,
		"new_rank": e.NewRank,
	}
}

// NewEnteredTopNEvent creates a new EnteredTopNEvent.
func NewEnteredTopNEvent(actorID string, topN, newRank int) EnteredTopNEvent {
	return EnteredTopNEvent{
		BaseEvent: NewBaseEvent(EventEnteredTopN, actorID),
		ActorID:   actorID,
		TopN:      topN,
		NewRank:   newRank,
	}
}

// LeaderboardRecomputedEvent is emitted after a recompute pass commits.
type LeaderboardRecomputedEvent struct {
	BaseEvent
	RankedActors int           `json:"ranked_actors"`
	Excluded     int           `json:"excluded"`
	Duration     time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e LeaderboardRecomputedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"ranked_actors": e.RankedActors,
		"excluded":      e.Excluded,
		"duration":      e.Duration.String(),
	}
}

// NewLeaderboardRecomputedEvent creates a new LeaderboardRecomputedEvent.
func NewLeaderboardRecomputedEvent(rankedActors, excluded int, duration time.Duration) LeaderboardRecomputedEvent {
	return LeaderboardRecomputedEvent{
		BaseEvent:    NewBaseEvent(EventLeaderboardRecomputed, "leaderboard"),
		RankedActors: rankedActors,
		Excluded:     excluded,
		Duration:     duration,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bot Watch Events
// ═══════════════════════════════════════════════════════════════════════════

// BotAlertRaisedEvent is emitted when the detector persists a new alert.
type BotAlertRaisedEvent struct {
	BaseEvent
	ActorID       string `json:"actor_id"`
	AlertType     string `json:"alert_type"`
	Severity      string `json:"severity"`
	ScoreIncrease int    `json:"score_increase"`
	NewScore      int    `json:"new_score"`
}

// Payload implements Event interface.
func (e BotAlertRaisedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id":       e.ActorID,
		"alert_type":     e.AlertType,
		"severity":       e.Severity,
		"score_increase": e.ScoreIncrease,
		"new_score":      e.NewScore,
	}
}

// NewBotAlertRaisedEvent creates a new BotAlertRaisedEvent.
func NewBotAlertRaisedEvent(actorID, alertType, severity string, scoreIncrease, newScore int) BotAlertRaisedEvent {
	return BotAlertRaisedEvent{
		BaseEvent:     NewBaseEvent(EventBotAlertRaised, actorID),
		ActorID:       actorID,
		AlertType:     alertType,
		Severity:      severity,
		ScoreIncrease: scoreIncrease,
		NewScore:      newScore,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// AggregateRepairedEvent is emitted when the verification pass finds an actor
// whose cached total diverged from the ledger sum and rewrites it.
type AggregateRepairedEvent struct {
	BaseEvent
	ActorID   string `json:"actor_id"`
	OldTotal  int64  `json:"old_total"`
	NewTotal  int64  `json:"new_total"`
	LedgerSum int64  `json:"ledger_sum"`
}

// Payload implements Event interface.
func (e AggregateRepairedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"actor_id":   e.ActorID,
		"old_total":  e.OldTotal,
		"new_total":  e.NewTotal,
		"ledger_sum": e.LedgerSum,
	}
}

// NewAggregateRepairedEvent creates a new AggregateRepairedEvent.
func NewAggregateRepairedEvent(actorID string, oldTotal, newTotal, ledgerSum int64) AggregateRepairedEvent {
	return AggregateRepairedEvent{
		BaseEvent: NewBaseEvent(EventAggregateRepaired, actorID),
		ActorID:   actorID,
		OldTotal:  oldTotal,
		NewTotal:  newTotal,
		LedgerSum: ledgerSum,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
