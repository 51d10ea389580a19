package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/makerhub/reputation-engine/internal/domain/botwatch"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT ALERT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const alertColumns = `id, actor_id, alert_type, severity, evidence, score_increase,
	   is_reviewed, COALESCE(dispute_message, ''), created_at`

// AlertRepository implements botwatch.Repository for PostgreSQL.
//
// SaveAlert performs the alert insert, the bot_score increase, the alert
// counter bump, and the flag flip at the threshold in one transaction. The
// flag never flips back here; clearing it is an administrative action outside
// the engine.
type AlertRepository struct {
	conn *Connection
}

// NewAlertRepository creates a new AlertRepository.
func NewAlertRepository(conn *Connection) *AlertRepository {
	return &AlertRepository{conn: conn}
}

// SaveAlert persists an alert and applies its score increase to the actor.
func (r *AlertRepository) SaveAlert(ctx context.Context, alert *botwatch.Alert) (botwatch.SaveResult, error) {
	var result botwatch.SaveResult

	evidenceJSON, err := json.Marshal(alert.Evidence)
	if err != nil {
		return result, fmt.Errorf("failed to marshal evidence: %w", err)
	}

	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var wasFlagged bool
		err := tx.QueryRow(ctx,
			"SELECT is_flagged_bot FROM actors WHERE id = $1 FOR UPDATE",
			alert.ActorID.String(),
		).Scan(&wasFlagged)
		if IsNoRows(err) {
			return shared.ErrActorNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock actor row: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bot_alerts (id, actor_id, alert_type, severity, evidence, score_increase, is_reviewed, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			alert.ID,
			alert.ActorID.String(),
			alert.AlertType.String(),
			alert.Severity.String(),
			evidenceJSON,
			alert.ScoreIncrease,
			alert.IsReviewed,
			alert.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert alert: %w", err)
		}

		var newScore int
		var nowFlagged bool
		err = tx.QueryRow(ctx, `
			UPDATE actors
			SET bot_score = bot_score + $2,
			    bot_alert_count = bot_alert_count + 1,
			    is_flagged_bot = is_flagged_bot OR (bot_score + $2 >= $3)
			WHERE id = $1
			RETURNING bot_score, is_flagged_bot
		`, alert.ActorID.String(), alert.ScoreIncrease, shared.BotFlagThreshold.Int()).Scan(&newScore, &nowFlagged)
		if err != nil {
			return fmt.Errorf("failed to update bot score: %w", err)
		}

		result.NewScore = shared.BotScore(newScore)
		result.NewlyFlagged = nowFlagged && !wasFlagged
		return nil
	})
	if err != nil {
		return botwatch.SaveResult{}, err
	}

	return result, nil
}

// GetByID returns an alert by ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*botwatch.Alert, error) {
	query := fmt.Sprintf("SELECT %s FROM bot_alerts WHERE id = $1", alertColumns)
	row := r.conn.QueryRow(ctx, query, id)
	return scanAlert(row)
}

// ListByActor returns an actor's alerts, newest first.
func (r *AlertRepository) ListByActor(ctx context.Context, actorID shared.ActorID, page shared.Pagination) ([]*botwatch.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bot_alerts
		WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, alertColumns)

	rows, err := r.conn.Query(ctx, query, actorID.String(), page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// ListUnreviewed returns unreviewed alerts across all actors.
func (r *AlertRepository) ListUnreviewed(ctx context.Context, page shared.Pagination) ([]*botwatch.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM bot_alerts
		WHERE is_reviewed = FALSE
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`, alertColumns)

	rows, err := r.conn.Query(ctx, query, page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list unreviewed alerts: %w", err)
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// MarkReviewed flags an alert as seen by an administrator.
func (r *AlertRepository) MarkReviewed(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx,
		"UPDATE bot_alerts SET is_reviewed = TRUE WHERE id = $1",
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark alert reviewed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlertNotFound
	}
	return nil
}

// SaveDispute stores the actor's dispute message on an alert.
func (r *AlertRepository) SaveDispute(ctx context.Context, id string, message string) error {
	tag, err := r.conn.Exec(ctx,
		"UPDATE bot_alerts SET dispute_message = $2 WHERE id = $1",
		id, message,
	)
	if err != nil {
		return fmt.Errorf("failed to save dispute: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrAlertNotFound
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// scanAlert scans a single alert from a row.
func scanAlert(row pgx.Row) (*botwatch.Alert, error) {
	var a botwatch.Alert
	var actorID, alertType, severity string
	var evidenceJSON []byte

	err := row.Scan(
		&a.ID,
		&actorID,
		&alertType,
		&severity,
		&evidenceJSON,
		&a.ScoreIncrease,
		&a.IsReviewed,
		&a.DisputeMessage,
		&a.CreatedAt,
	)

	if IsNoRows(err) {
		return nil, shared.ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	a.ActorID = shared.ActorID(actorID)
	a.AlertType = botwatch.AlertType(alertType)
	a.Severity = shared.Severity(severity)
	a.Evidence = map[string]interface{}{}
	if len(evidenceJSON) > 0 {
		_ = json.Unmarshal(evidenceJSON, &a.Evidence)
	}

	return &a, nil
}

// scanAlerts scans multiple alerts from rows.
func scanAlerts(rows pgx.Rows) ([]*botwatch.Alert, error) {
	var alerts []*botwatch.Alert

	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return alerts, nil
}
