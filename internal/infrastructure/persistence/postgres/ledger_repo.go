package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/makerhub/reputation-engine/internal/domain/ledger"
	"github.com/makerhub/reputation-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const transactionColumns = `id, actor_id, amount, reason, target_refs, dedup_key, created_at`

// LedgerRepository implements ledger.Repository for PostgreSQL.
//
// Append serializes per actor by locking the aggregate row FOR UPDATE before
// touching the log: two awards for the same actor queue up behind each other
// while awards for different actors proceed in parallel. Idempotency rides on
// the UNIQUE constraint over dedup_key.
type LedgerRepository struct {
	conn *Connection
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(conn *Connection) *LedgerRepository {
	return &LedgerRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Append
// ─────────────────────────────────────────────────────────────────────────────

// Append writes a transaction and updates the actor aggregate atomically.
// A duplicate dedup key leaves the ledger untouched and returns (false, nil).
func (r *LedgerRepository) Append(ctx context.Context, t *ledger.Transaction) (bool, error) {
	applied := false

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		// Lock the aggregate row first. This is the per-actor serialization
		// point; it also confirms the actor exists before anything is written.
		var actorID string
		err := tx.QueryRow(ctx,
			"SELECT id FROM actors WHERE id = $1 FOR UPDATE",
			t.ActorID.String(),
		).Scan(&actorID)
		if IsNoRows(err) {
			return shared.ErrActorNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock actor row: %w", err)
		}

		refs := make([]string, len(t.TargetRefs))
		for i, ref := range t.TargetRefs {
			refs[i] = ref.String()
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO xp_transactions (id, actor_id, amount, reason, target_refs, dedup_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (dedup_key) DO NOTHING
		`,
			t.ID,
			t.ActorID.String(),
			t.Amount,
			t.Reason.String(),
			refs,
			t.DedupKey,
			t.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append transaction: %w", err)
		}

		// Duplicate dedup key: no insert, no aggregate change.
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true

		var newTotal int64
		err = tx.QueryRow(ctx, `
			UPDATE actors
			SET total_xp = GREATEST(0, total_xp + $2),
			    last_award_at = $3
			WHERE id = $1
			RETURNING total_xp
		`, t.ActorID.String(), t.Amount, t.CreatedAt).Scan(&newTotal)
		if err != nil {
			return fmt.Errorf("failed to update actor aggregate: %w", err)
		}

		newLevel := shared.XP(newTotal).Level()
		_, err = tx.Exec(ctx,
			"UPDATE actors SET xp_level = $2 WHERE id = $1",
			t.ActorID.String(), newLevel.Int(),
		)
		if err != nil {
			return fmt.Errorf("failed to update actor level: %w", err)
		}

		return nil
	})
	if err != nil {
		return false, err
	}

	return applied, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Dedup lookups
// ─────────────────────────────────────────────────────────────────────────────

// GetByDedupKey returns the transaction holding the given dedup key.
func (r *LedgerRepository) GetByDedupKey(ctx context.Context, dedupKey string) (*ledger.Transaction, error) {
	query := fmt.Sprintf("SELECT %s FROM xp_transactions WHERE dedup_key = $1", transactionColumns)
	row := r.conn.QueryRow(ctx, query, dedupKey)
	return scanTransaction(row)
}

// ExistsDedupKey checks whether a dedup key has been applied.
func (r *LedgerRepository) ExistsDedupKey(ctx context.Context, dedupKey string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM xp_transactions WHERE dedup_key = $1)",
		dedupKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check dedup key: %w", err)
	}
	return exists, nil
}

// GrantStateFor counts applied grants and revokes for a (reason, target) pair.
func (r *LedgerRepository) GrantStateFor(ctx context.Context, reason ledger.Reason, target shared.TargetRef) (ledger.GrantState, error) {
	var state ledger.GrantState
	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*) FILTER (WHERE amount > 0),
		       COUNT(*) FILTER (WHERE amount < 0)
		FROM xp_transactions
		WHERE reason = $1 AND $2 = ANY(target_refs)
	`, reason.String(), target.String()).Scan(&state.Grants, &state.Revokes)
	if err != nil {
		return ledger.GrantState{}, fmt.Errorf("failed to count grant state: %w", err)
	}
	return state, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// History reads
// ─────────────────────────────────────────────────────────────────────────────

// SumByActor returns the signed sum of all transactions for an actor.
func (r *LedgerRepository) SumByActor(ctx context.Context, actorID shared.ActorID) (int64, error) {
	var sum int64
	err := r.conn.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount), 0) FROM xp_transactions WHERE actor_id = $1",
		actorID.String(),
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions: %w", err)
	}
	return sum, nil
}

// ListByActor returns an actor's transactions, newest first.
func (r *LedgerRepository) ListByActor(ctx context.Context, actorID shared.ActorID, page shared.Pagination) ([]*ledger.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM xp_transactions
		WHERE actor_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, transactionColumns)

	rows, err := r.conn.Query(ctx, query, actorID.String(), page.Limit(), page.Offset())
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// CountByActorReasonSince counts an actor's applied transactions with the
// given reason created at or after the cutoff.
func (r *LedgerRepository) CountByActorReasonSince(ctx context.Context, actorID shared.ActorID, reason ledger.Reason, since time.Time) (int, error) {
	var count int
	err := r.conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM xp_transactions
		WHERE actor_id = $1 AND reason = $2 AND created_at >= $3
	`, actorID.String(), reason.String(), since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// LastByActorReason returns the most recent transaction for an (actor, reason)
// pair, skipping transactions that reference any excluded target.
func (r *LedgerRepository) LastByActorReason(ctx context.Context, actorID shared.ActorID, reason ledger.Reason, excluding ...shared.TargetRef) (*ledger.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM xp_transactions
		WHERE actor_id = $1 AND reason = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, transactionColumns)
	args := []any{actorID.String(), reason.String()}

	if len(excluding) > 0 {
		excluded := make([]string, len(excluding))
		for i, ref := range excluding {
			excluded[i] = ref.String()
		}
		query = fmt.Sprintf(`
			SELECT %s FROM xp_transactions
			WHERE actor_id = $1 AND reason = $2 AND NOT (target_refs && $3)
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		`, transactionColumns)
		args = append(args, excluded)
	}

	row := r.conn.QueryRow(ctx, query, args...)
	return scanTransaction(row)
}

// ─────────────────────────────────────────────────────────────────────────────
// Repair
// ─────────────────────────────────────────────────────────────────────────────

// FindDivergentAggregates returns actors whose cached total_xp does not equal
// the clamped ledger sum.
func (r *LedgerRepository) FindDivergentAggregates(ctx context.Context, limit int) ([]ledger.Divergence, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT a.id, a.total_xp, GREATEST(0, COALESCE(s.ledger_sum, 0))
		FROM actors a
		LEFT JOIN (
			SELECT actor_id, SUM(amount) AS ledger_sum
			FROM xp_transactions
			GROUP BY actor_id
		) s ON s.actor_id = a.id
		WHERE a.total_xp != GREATEST(0, COALESCE(s.ledger_sum, 0))
		ORDER BY a.id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to find divergent aggregates: %w", err)
	}
	defer rows.Close()

	var divergences []ledger.Divergence
	for rows.Next() {
		var d ledger.Divergence
		var id string
		if err := rows.Scan(&id, &d.CachedTotal, &d.LedgerSum); err != nil {
			return nil, fmt.Errorf("failed to scan divergence: %w", err)
		}
		d.ActorID = shared.ActorID(id)
		divergences = append(divergences, d)
	}

	return divergences, rows.Err()
}

// RepairAggregate rewrites an actor's total_xp and xp_level from the ledger
// sum and returns the corrected total.
func (r *LedgerRepository) RepairAggregate(ctx context.Context, actorID shared.ActorID) (int64, error) {
	var corrected int64

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		var id string
		err := tx.QueryRow(ctx,
			"SELECT id FROM actors WHERE id = $1 FOR UPDATE",
			actorID.String(),
		).Scan(&id)
		if IsNoRows(err) {
			return shared.ErrActorNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to lock actor row: %w", err)
		}

		var sum int64
		err = tx.QueryRow(ctx,
			"SELECT COALESCE(SUM(amount), 0) FROM xp_transactions WHERE actor_id = $1",
			actorID.String(),
		).Scan(&sum)
		if err != nil {
			return fmt.Errorf("failed to sum ledger: %w", err)
		}

		if sum < 0 {
			sum = 0
		}
		corrected = sum
		level := shared.XP(sum).Level()

		_, err = tx.Exec(ctx,
			"UPDATE actors SET total_xp = $2, xp_level = $3 WHERE id = $1",
			actorID.String(), sum, level.Int(),
		)
		if err != nil {
			return fmt.Errorf("failed to repair aggregate: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return corrected, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scan helpers
// ─────────────────────────────────────────────────────────────────────────────

// scanTransaction scans a single transaction from a row.
func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var t ledger.Transaction
	var actorID, reason string
	var refs []string

	err := row.Scan(
		&t.ID,
		&actorID,
		&t.Amount,
		&reason,
		&refs,
		&t.DedupKey,
		&t.CreatedAt,
	)

	if IsNoRows(err) {
		return nil, shared.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	t.ActorID = shared.ActorID(actorID)
	t.Reason = ledger.Reason(reason)
	t.TargetRefs = make([]shared.TargetRef, len(refs))
	for i, ref := range refs {
		t.TargetRefs[i] = shared.TargetRef(ref)
	}

	return &t, nil
}

// scanTransactions scans multiple transactions from rows.
func scanTransactions(rows pgx.Rows) ([]*ledger.Transaction, error) {
	var transactions []*ledger.Transaction

	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return transactions, nil
}
