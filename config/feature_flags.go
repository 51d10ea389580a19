package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollouts. Award rule
// amounts never live here; flags only gate whole subsystems so a bad
// deploy can be turned off without touching the ledger.
type FeatureFlags struct {
	mu sync.RWMutex

	// Core features
	features map[string]*Feature

	// Override rules (for testing/debugging)
	actorOverrides map[string]map[string]bool // actorID -> feature -> enabled
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100)
	// Actors are assigned based on hash of their ID
	RolloutPercent int

	// Time-based activation
	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext provides context for feature flag evaluation.
type FeatureContext struct {
	ActorID string
}

// Predefined feature flag names.
const (
	// === Award Features ===
	FeatureAwardDemoViews         = "award.demo_views"          // +1 per unique demo view
	FeatureAwardPublicReviewBonus = "award.public_review_bonus" // visibility-gated +2
	FeatureAwardIdeaReactions     = "award.idea_reactions"      // +2 per reaction

	// === Bot Watch Features ===
	FeatureBotwatchRapidPublish = "botwatch.rapid_publish" // publish-gap heuristic
	FeatureBotwatchIdeaSpam     = "botwatch.idea_spam"     // ideas-per-hour heuristic

	// === Leaderboard Features ===
	FeatureLeaderboardCache        = "leaderboard.cache"        // Redis board cache
	FeatureLeaderboardRankEvents   = "leaderboard.rank_events"  // publish rank movements
	FeatureLeaderboardTopNEvents   = "leaderboard.top_n_events" // publish top-100 entries
	FeatureLeaderboardStandingDTOs = "leaderboard.standing_dto" // per-actor DTO cache

	// === Infrastructure Features ===
	FeatureEventsRedisBus  = "events.redis_bus"   // cross-instance event fan-out
	FeatureJobsVerifyLedger = "jobs.verify_ledger" // background aggregate repair
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:       make(map[string]*Feature),
		actorOverrides: make(map[string]map[string]bool),
	}

	// Initialize all features with defaults
	ff.initializeDefaults()

	// Load overrides from environment
	ff.loadFromEnvironment()

	return ff
}

// initializeDefaults sets up all features with default values.
func (ff *FeatureFlags) initializeDefaults() {
	// Award features - on by default, dedup keys make toggling safe
	ff.features[FeatureAwardDemoViews] = &Feature{
		Name:           FeatureAwardDemoViews,
		Description:    "Award +1 XP per unique demo view",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAwardPublicReviewBonus] = &Feature{
		Name:           FeatureAwardPublicReviewBonus,
		Description:    "Visibility-gated public review bonus",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureAwardIdeaReactions] = &Feature{
		Name:           FeatureAwardIdeaReactions,
		Description:    "Award XP for idea reactions",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Bot watch features
	ff.features[FeatureBotwatchRapidPublish] = &Feature{
		Name:           FeatureBotwatchRapidPublish,
		Description:    "Flag rapid successive project publishes",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureBotwatchIdeaSpam] = &Feature{
		Name:           FeatureBotwatchIdeaSpam,
		Description:    "Flag high idea submission rates",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Leaderboard features
	ff.features[FeatureLeaderboardCache] = &Feature{
		Name:           FeatureLeaderboardCache,
		Description:    "Serve leaderboard pages from Redis",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardRankEvents] = &Feature{
		Name:           FeatureLeaderboardRankEvents,
		Description:    "Publish rank movement events",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardTopNEvents] = &Feature{
		Name:           FeatureLeaderboardTopNEvents,
		Description:    "Publish top-100 entry events",
		Enabled:        true,
		RolloutPercent: 100,
	}

	ff.features[FeatureLeaderboardStandingDTOs] = &Feature{
		Name:           FeatureLeaderboardStandingDTOs,
		Description:    "Cache per-actor standing DTOs",
		Enabled:        true,
		RolloutPercent: 100,
	}

	// Infrastructure features - off until the deployment needs them
	ff.features[FeatureEventsRedisBus] = &Feature{
		Name:           FeatureEventsRedisBus,
		Description:    "Fan events out across instances via Redis",
		Enabled:        false,
		RolloutPercent: 0,
	}

	ff.features[FeatureJobsVerifyLedger] = &Feature{
		Name:           FeatureJobsVerifyLedger,
		Description:    "Background aggregate-vs-ledger repair",
		Enabled:        true,
		RolloutPercent: 100,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Format: FEATURE_<NAME>=true|false|<percent>
// Example: FEATURE_AWARD_DEMO_VIEWS=true
// Example: FEATURE_LEADERBOARD_STANDING_DTO=50 (50% rollout)
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		envKey := featureNameToEnvKey(name)
		if val := os.Getenv(envKey); val != "" {
			// Try parsing as boolean
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
				if b {
					feature.RolloutPercent = 100
				} else {
					feature.RolloutPercent = 0
				}
				continue
			}

			// Try parsing as percentage
			if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
				feature.Enabled = p > 0
				feature.RolloutPercent = p
			}
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "award.demo_views" -> "FEATURE_AWARD_DEMO_VIEWS"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled checks if a feature is enabled for the given context.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	// Check actor overrides first
	if ctx != nil && ctx.ActorID != "" {
		if overrides, ok := ff.actorOverrides[ctx.ActorID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}

	// Check if feature is enabled at all
	if !feature.Enabled {
		return false
	}

	// Check time-based activation
	now := time.Now()
	if feature.EnabledFrom != nil && now.Before(*feature.EnabledFrom) {
		return false
	}
	if feature.EnabledUntil != nil && now.After(*feature.EnabledUntil) {
		return false
	}

	// Check rollout percentage
	if feature.RolloutPercent < 100 && ctx != nil && ctx.ActorID != "" {
		return ff.isInRollout(ctx.ActorID, featureName, feature.RolloutPercent)
	}

	return feature.RolloutPercent > 0
}

// isInRollout determines if an actor is in the rollout percentage.
// Uses consistent hashing so actors stay in their bucket.
func (ff *FeatureFlags) isInRollout(actorID string, featureName string, percent int) bool {
	// Create a consistent hash for this actor+feature combination
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(actorID))
	hash := h.Sum32()

	// Map to 0-99 range
	bucket := int(hash % 100)

	return bucket < percent
}

// SetActorOverride sets a feature override for a specific actor.
// Useful for testing and debugging.
func (ff *FeatureFlags) SetActorOverride(actorID string, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.actorOverrides[actorID]; !ok {
		ff.actorOverrides[actorID] = make(map[string]bool)
	}
	ff.actorOverrides[actorID][featureName] = enabled
}

// ClearActorOverrides removes all overrides for an actor.
func (ff *FeatureFlags) ClearActorOverrides(actorID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.actorOverrides, actorID)
}

// SetRolloutPercent updates the rollout percentage for a feature.
// Thread-safe for live updates.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}

	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	feature.RolloutPercent = percent
	feature.Enabled = percent > 0

	return nil
}

// EnableFeature enables a feature at 100% rollout.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature disables a feature completely.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a copy of all feature configurations.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make(map[string]*Feature, len(ff.features))
	for k, v := range ff.features {
		// Return a copy
		featureCopy := *v
		result[k] = &featureCopy
	}
	return result
}

// --- Errors ---

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
