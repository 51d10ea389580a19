// Package redis implements the Redis read-side for the reputation engine.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Key patterns for leaderboard cache.
const (
	// keyLeaderboardRanks is the sorted set mapping actorID -> rank.
	keyLeaderboardRanks = "leaderboard:ranks"

	// keyLeaderboardEntries is the hash mapping actorID -> standing JSON.
	keyLeaderboardEntries = "leaderboard:entries"
)

// cachedStanding is the JSON shape of one standing in the entries hash.
type cachedStanding struct {
	ActorID    string    `json:"actor_id"`
	TotalXP    int64     `json:"total_xp"`
	Level      int       `json:"level"`
	JoinedAt   time.Time `json:"joined_at"`
	Rank       int       `json:"rank"`
	IsTop100   bool      `json:"is_top_100"`
	RankChange int       `json:"rank_change"`
}

// LeaderboardCache implements leaderboard.Cache on Redis sorted sets.
//
// Architecture:
//   - Sorted set "leaderboard:ranks" stores actorID scored by rank, so the
//     top-N read is one ZRANGE.
//   - Hash "leaderboard:entries" stores actorID -> standing JSON.
//
// The rebuild after each recompute pass swaps both structures inside a
// transactional pipeline so readers never see a half-built board.
type LeaderboardCache struct {
	cache *Cache
}

// NewLeaderboardCache creates a new LeaderboardCache.
func NewLeaderboardCache(cache *Cache) *LeaderboardCache {
	return &LeaderboardCache{cache: cache}
}

// RebuildFromSnapshot atomically replaces the cached leaderboard.
func (lc *LeaderboardCache) RebuildFromSnapshot(ctx context.Context, entries []*leaderboard.Standing, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}

	members := make([]redis.Z, 0, len(entries))
	fields := make(map[string]interface{}, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(toCachedStanding(entry))
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCacheSerialization, err)
		}
		members = append(members, redis.Z{
			Score:  float64(entry.Rank.Int()),
			Member: entry.ActorID.String(),
		})
		fields[entry.ActorID.String()] = data
	}

	pipe := lc.cache.Client().TxPipeline()
	pipe.Del(ctx, keyLeaderboardRanks, keyLeaderboardEntries)
	if len(members) > 0 {
		pipe.ZAdd(ctx, keyLeaderboardRanks, members...)
		pipe.HSet(ctx, keyLeaderboardEntries, fields)
		pipe.Expire(ctx, keyLeaderboardRanks, ttl)
		pipe.Expire(ctx, keyLeaderboardEntries, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to rebuild leaderboard cache: %w", err)
	}

	return nil
}

// GetTop returns the cached top-N, or an empty slice on cache miss.
func (lc *LeaderboardCache) GetTop(ctx context.Context, limit int) ([]*leaderboard.Standing, error) {
	if limit <= 0 {
		return []*leaderboard.Standing{}, nil
	}

	ids, err := lc.cache.Client().ZRange(ctx, keyLeaderboardRanks, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard ranks: %w", err)
	}
	if len(ids) == 0 {
		return []*leaderboard.Standing{}, nil
	}

	values, err := lc.cache.Client().HMGet(ctx, keyLeaderboardEntries, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard entries: %w", err)
	}

	standings := make([]*leaderboard.Standing, 0, len(values))
	for _, val := range values {
		raw, ok := val.(string)
		if !ok {
			continue
		}
		standing, err := fromCachedJSON([]byte(raw))
		if err != nil {
			continue
		}
		standings = append(standings, standing)
	}

	return standings, nil
}

// GetRank returns an actor's cached standing, or nil on cache miss.
func (lc *LeaderboardCache) GetRank(ctx context.Context, actorID shared.ActorID) (*leaderboard.Standing, error) {
	data, err := lc.cache.Client().HGet(ctx, keyLeaderboardEntries, actorID.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached standing: %w", err)
	}

	return fromCachedJSON(data)
}

// Size returns the number of cached standings, 0 on cache miss.
func (lc *LeaderboardCache) Size(ctx context.Context) (int, error) {
	count, err := lc.cache.Client().ZCard(ctx, keyLeaderboardRanks).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read leaderboard size: %w", err)
	}
	return int(count), nil
}

// RemoveActor evicts one actor from the cached board.
func (lc *LeaderboardCache) RemoveActor(ctx context.Context, actorID shared.ActorID) error {
	pipe := lc.cache.Client().TxPipeline()
	pipe.ZRem(ctx, keyLeaderboardRanks, actorID.String())
	pipe.HDel(ctx, keyLeaderboardEntries, actorID.String())

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to evict actor from leaderboard cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached leaderboard entirely.
func (lc *LeaderboardCache) Invalidate(ctx context.Context) error {
	return lc.cache.Delete(ctx, keyLeaderboardRanks, keyLeaderboardEntries)
}

// ─────────────────────────────────────────────────────────────────────────────
// Conversion helpers
// ─────────────────────────────────────────────────────────────────────────────

func toCachedStanding(s *leaderboard.Standing) cachedStanding {
	return cachedStanding{
		ActorID:    s.ActorID.String(),
		TotalXP:    s.TotalXP.Int64(),
		Level:      s.Level.Int(),
		JoinedAt:   s.JoinedAt,
		Rank:       s.Rank.Int(),
		IsTop100:   s.IsTop100,
		RankChange: int(s.RankChange),
	}
}

func fromCachedJSON(data []byte) (*leaderboard.Standing, error) {
	var cached cachedStanding
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheSerialization, err)
	}

	return &leaderboard.Standing{
		ActorID:    shared.ActorID(cached.ActorID),
		TotalXP:    shared.XP(cached.TotalXP),
		Level:      shared.Level(cached.Level),
		JoinedAt:   cached.JoinedAt,
		Rank:       shared.Rank(cached.Rank),
		IsTop100:   cached.IsTop100,
		RankChange: leaderboard.RankChange(cached.RankChange),
	}, nil
}
