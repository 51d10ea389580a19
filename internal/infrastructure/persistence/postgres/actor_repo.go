package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/makerhub/reputation-engine/internal/domain/actor"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTOR REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const actorColumns = `id, total_xp, xp_level, current_rank, is_top_100, is_first_100,
	   bot_score, is_flagged_bot, bot_alert_count, last_award_at,
	   joined_at, created_at, updated_at`

// ActorRepository implements actor.Repository for PostgreSQL.
type ActorRepository struct {
	conn *Connection
}

// NewActorRepository creates a new ActorRepository.
func NewActorRepository(conn *Connection) *ActorRepository {
	return &ActorRepository{conn: conn}
}

// Create provisions a new actor row.
func (r *ActorRepository) Create(ctx context.Context, a *actor.Actor) error {
	query := `
		INSERT INTO actors (
			id, total_xp, xp_level, current_rank, is_top_100, is_first_100,
			bot_score, is_flagged_bot, bot_alert_count, last_award_at,
			joined_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	var rank *int
	if a.Rank.IsValid() {
		v := a.Rank.Int()
		rank = &v
	}

	_, err := r.conn.Exec(ctx, query,
		a.ID.String(),
		a.TotalXP.Int64(),
		a.Level.Int(),
		rank,
		a.IsTop100,
		a.IsFirst100,
		a.BotScore.Int(),
		a.IsFlaggedBot,
		a.BotAlertCount,
		a.LastAwardAt,
		a.JoinedAt,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrActorAlreadyExists
		}
		return fmt.Errorf("failed to create actor: %w", err)
	}

	return nil
}

// GetByID returns an actor by ID.
func (r *ActorRepository) GetByID(ctx context.Context, id shared.ActorID) (*actor.Actor, error) {
	query := fmt.Sprintf("SELECT %s FROM actors WHERE id = $1", actorColumns)
	row := r.conn.QueryRow(ctx, query, id.String())
	return scanActor(row)
}

// GetByIDs returns actors for the given IDs; missing IDs are skipped.
func (r *ActorRepository) GetByIDs(ctx context.Context, ids []shared.ActorID) ([]*actor.Actor, error) {
	if len(ids) == 0 {
		return []*actor.Actor{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id.String()
	}

	query := fmt.Sprintf(
		"SELECT %s FROM actors WHERE id IN (%s)",
		actorColumns, strings.Join(placeholders, ", "),
	)

	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query actors by ids: %w", err)
	}
	defer rows.Close()

	return scanActors(rows)
}

// Exists checks actor existence without loading the row.
func (r *ActorRepository) Exists(ctx context.Context, id shared.ActorID) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM actors WHERE id = $1)",
		id.String(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check actor existence: %w", err)
	}
	return exists, nil
}

// List returns actors with pagination, ordered by joined_at ascending.
func (r *ActorRepository) List(ctx context.Context, page shared.Pagination) ([]*actor.Actor, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM actors
		ORDER BY joined_at ASC, created_at ASC
		LIMIT $1 OFFSET $2
	`, actorColumns)

	rows, err := r.conn.Query(ctx, query, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list actors: %w", err)
	}
	defer rows.Close()

	return scanActors(rows)
}

// Count returns the total number of actors.
func (r *ActorRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, "SELECT COUNT(*) FROM actors").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count actors: %w", err)
	}
	return count, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// scanActor scans a single actor from a row.
func scanActor(row pgx.Row) (*actor.Actor, error) {
	var a actor.Actor
	var id string
	var totalXP int64
	var level, botScore int
	var rank *int
	var lastAwardAt *time.Time

	err := row.Scan(
		&id,
		&totalXP,
		&level,
		&rank,
		&a.IsTop100,
		&a.IsFirst100,
		&botScore,
		&a.IsFlaggedBot,
		&a.BotAlertCount,
		&lastAwardAt,
		&a.JoinedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	if IsNoRows(err) {
		return nil, shared.ErrActorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan actor: %w", err)
	}

	a.ID = shared.ActorID(id)
	a.TotalXP = shared.XP(totalXP)
	a.Level = shared.Level(level)
	a.BotScore = shared.BotScore(botScore)
	if rank != nil {
		a.Rank = shared.Rank(*rank)
	} else {
		a.Rank = shared.Unranked
	}
	a.LastAwardAt = lastAwardAt

	return &a, nil
}

// scanActors scans multiple actors from rows.
func scanActors(rows pgx.Rows) ([]*actor.Actor, error) {
	var actors []*actor.Actor

	for rows.Next() {
		a, err := scanActor(rows)
		if err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return actors, nil
}
