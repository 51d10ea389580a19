package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/makerhub/reputation-engine/internal/domain/leaderboard"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// firstCohortMilestone keys the one-time first-100 bootstrap in engine_bootstrap.
const firstCohortMilestone = "first_100_cohort"

// LeaderboardRepository implements leaderboard.Repository for PostgreSQL.
//
// WriteRanks replaces the persisted ranking in one transaction, so a recompute
// pass that fails mid-write rolls back to the previous snapshot rather than
// leaving a half-ranked table.
type LeaderboardRepository struct {
	conn *Connection
}

// NewLeaderboardRepository creates a new LeaderboardRepository.
func NewLeaderboardRepository(conn *Connection) *LeaderboardRepository {
	return &LeaderboardRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Recompute reads and writes
// ─────────────────────────────────────────────────────────────────────────────

// ListRankable returns all non-flagged actors for rank assignment. A single
// statement reads under one MVCC snapshot, which is the consistent view the
// recompute pass needs.
func (r *LeaderboardRepository) ListRankable(ctx context.Context) ([]*leaderboard.Standing, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, total_xp, xp_level, joined_at
		FROM actors
		WHERE is_flagged_bot = FALSE
		ORDER BY total_xp DESC, joined_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rankable actors: %w", err)
	}
	defer rows.Close()

	return scanStandings(rows, false)
}

// CurrentStandings returns the persisted ranks from the last completed pass.
func (r *LeaderboardRepository) CurrentStandings(ctx context.Context) ([]*leaderboard.Standing, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, total_xp, xp_level, joined_at, current_rank, is_top_100
		FROM actors
		WHERE current_rank IS NOT NULL
		ORDER BY current_rank ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load current standings: %w", err)
	}
	defer rows.Close()

	return scanStandings(rows, true)
}

// WriteRanks persists a completed ranking in one transaction: new ranks and
// top-100 flags for ranked actors, null rank for everyone else.
func (r *LeaderboardRepository) WriteRanks(ctx context.Context, ranking *leaderboard.Ranking) error {
	entries := ranking.All()

	ids := make([]string, len(entries))
	ranks := make([]int, len(entries))
	topFlags := make([]bool, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ActorID.String()
		ranks[i] = entry.Rank.Int()
		topFlags[i] = entry.IsTop100
	}

	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			"UPDATE actors SET current_rank = NULL, is_top_100 = FALSE WHERE current_rank IS NOT NULL OR is_top_100 = TRUE",
		)
		if err != nil {
			return fmt.Errorf("failed to clear previous ranks: %w", err)
		}

		if len(entries) == 0 {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE actors a
			SET current_rank = v.rank, is_top_100 = v.is_top
			FROM (
				SELECT UNNEST($1::uuid[]) AS id,
				       UNNEST($2::int[]) AS rank,
				       UNNEST($3::bool[]) AS is_top
			) v
			WHERE a.id = v.id
		`, ids, ranks, topFlags)
		if err != nil {
			return fmt.Errorf("failed to write ranks: %w", err)
		}

		return nil
	})
}

// MarkFirstCohort sets is_first_100 for the earliest cohortSize joiners. The
// engine_bootstrap insert is the one-time guard: a second call conflicts and
// returns 0 without touching any actor.
func (r *LeaderboardRepository) MarkFirstCohort(ctx context.Context, cohortSize int) (int, error) {
	marked := 0

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO engine_bootstrap (milestone) VALUES ($1)
			ON CONFLICT (milestone) DO NOTHING
		`, firstCohortMilestone)
		if err != nil {
			return fmt.Errorf("failed to claim bootstrap milestone: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		tag, err = tx.Exec(ctx, `
			UPDATE actors SET is_first_100 = TRUE
			WHERE id IN (
				SELECT id FROM actors
				ORDER BY joined_at ASC, created_at ASC
				LIMIT $1
			)
		`, cohortSize)
		if err != nil {
			return fmt.Errorf("failed to mark first cohort: %w", err)
		}
		marked = int(tag.RowsAffected())

		_, err = tx.Exec(ctx,
			"UPDATE engine_bootstrap SET affected_rows = $2 WHERE milestone = $1",
			firstCohortMilestone, marked,
		)
		return err
	})
	if err != nil {
		return 0, err
	}

	return marked, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Read surface
// ─────────────────────────────────────────────────────────────────────────────

// GetPage returns a page of current standings plus the total ranked count.
func (r *LeaderboardRepository) GetPage(ctx context.Context, page shared.Pagination) ([]*leaderboard.Standing, int, error) {
	var total int
	err := r.conn.QueryRow(ctx,
		"SELECT COUNT(*) FROM actors WHERE current_rank IS NOT NULL",
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count ranked actors: %w", err)
	}

	rows, err := r.conn.Query(ctx, `
		SELECT id, total_xp, xp_level, joined_at, current_rank, is_top_100
		FROM actors
		WHERE current_rank IS NOT NULL
		ORDER BY current_rank ASC
		LIMIT $1 OFFSET $2
	`, page.Limit(), page.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to load leaderboard page: %w", err)
	}
	defer rows.Close()

	standings, err := scanStandings(rows, true)
	if err != nil {
		return nil, 0, err
	}

	return standings, total, nil
}

// GetActorStanding returns one actor's current standing. Flagged or
// not-yet-ranked actors come back with Rank == Unranked.
func (r *LeaderboardRepository) GetActorStanding(ctx context.Context, actorID shared.ActorID) (*leaderboard.Standing, error) {
	var s leaderboard.Standing
	var id string
	var totalXP int64
	var level int
	var rank *int

	err := r.conn.QueryRow(ctx, `
		SELECT id, total_xp, xp_level, joined_at, current_rank, is_top_100
		FROM actors
		WHERE id = $1
	`, actorID.String()).Scan(&id, &totalXP, &level, &s.JoinedAt, &rank, &s.IsTop100)

	if IsNoRows(err) {
		return nil, shared.ErrActorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load actor standing: %w", err)
	}

	s.ActorID = shared.ActorID(id)
	s.TotalXP = shared.XP(totalXP)
	s.Level = shared.Level(level)
	if rank != nil {
		s.Rank = shared.Rank(*rank)
	} else {
		s.Rank = shared.Unranked
	}

	return &s, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// scanStandings scans standings from rows. withRank expects the wider column
// set that includes current_rank and is_top_100.
func scanStandings(rows pgx.Rows, withRank bool) ([]*leaderboard.Standing, error) {
	var standings []*leaderboard.Standing

	for rows.Next() {
		var s leaderboard.Standing
		var id string
		var totalXP int64
		var level int

		if withRank {
			var rank *int
			err := rows.Scan(&id, &totalXP, &level, &s.JoinedAt, &rank, &s.IsTop100)
			if err != nil {
				return nil, fmt.Errorf("failed to scan standing: %w", err)
			}
			if rank != nil {
				s.Rank = shared.Rank(*rank)
			}
		} else {
			err := rows.Scan(&id, &totalXP, &level, &s.JoinedAt)
			if err != nil {
				return nil, fmt.Errorf("failed to scan standing: %w", err)
			}
		}

		s.ActorID = shared.ActorID(id)
		s.TotalXP = shared.XP(totalXP)
		s.Level = shared.Level(level)
		standings = append(standings, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return standings, nil
}
