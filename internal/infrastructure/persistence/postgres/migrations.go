// Package postgres implements the PostgreSQL persistence layer for the
// reputation engine.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE ACTORS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create actors table
-- Version: 001

-- Actor aggregates. total_xp and xp_level are caches of the ledger sum,
-- written only inside the same transaction as a ledger append or a repair
-- pass. Rank fields are written only by the recompute job.
CREATE TABLE IF NOT EXISTS actors (
    id UUID PRIMARY KEY,
    total_xp BIGINT NOT NULL DEFAULT 0,
    xp_level INTEGER NOT NULL DEFAULT 1,
    current_rank INTEGER,
    is_top_100 BOOLEAN NOT NULL DEFAULT FALSE,
    is_first_100 BOOLEAN NOT NULL DEFAULT FALSE,
    bot_score INTEGER NOT NULL DEFAULT 0,
    is_flagged_bot BOOLEAN NOT NULL DEFAULT FALSE,
    bot_alert_count INTEGER NOT NULL DEFAULT 0,
    last_award_at TIMESTAMP WITH TIME ZONE,
    joined_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total_xp CHECK (total_xp >= 0),
    CONSTRAINT valid_xp_level CHECK (xp_level >= 1),
    CONSTRAINT valid_rank CHECK (current_rank IS NULL OR current_rank >= 1),
    CONSTRAINT valid_bot_score CHECK (bot_score >= 0)
);

-- Ranking reads: non-flagged actors ordered by XP then join date.
CREATE INDEX IF NOT EXISTS idx_actors_rankable
    ON actors(total_xp DESC, joined_at ASC) WHERE is_flagged_bot = FALSE;
CREATE INDEX IF NOT EXISTS idx_actors_current_rank
    ON actors(current_rank) WHERE current_rank IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_actors_joined_at ON actors(joined_at ASC);
CREATE INDEX IF NOT EXISTS idx_actors_flagged ON actors(is_flagged_bot) WHERE is_flagged_bot = TRUE;

-- Updated_at trigger function for automatic timestamp updates
CREATE OR REPLACE FUNCTION update_updated_at_column()
RETURNS TRIGGER AS $$
BEGIN
    NEW.updated_at = NOW();
    RETURN NEW;
END;
$$ language 'plpgsql';

DROP TRIGGER IF EXISTS update_actors_updated_at ON actors;
CREATE TRIGGER update_actors_updated_at
    BEFORE UPDATE ON actors
    FOR EACH ROW
    EXECUTE FUNCTION update_updated_at_column();
`

const migration001Down = `
DROP TRIGGER IF EXISTS update_actors_updated_at ON actors;
DROP FUNCTION IF EXISTS update_updated_at_column();
DROP TABLE IF EXISTS actors;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE LEDGER
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create XP ledger
-- Version: 002

-- Append-only transaction log, the source of truth for every XP total.
-- The UNIQUE constraint on dedup_key is what makes event processing
-- idempotent: a replayed award hits the constraint and becomes a no-op.
CREATE TABLE IF NOT EXISTS xp_transactions (
    id UUID PRIMARY KEY,
    actor_id UUID NOT NULL REFERENCES actors(id),
    amount BIGINT NOT NULL,
    reason VARCHAR(40) NOT NULL,
    target_refs TEXT[] NOT NULL DEFAULT '{}',
    dedup_key TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT nonzero_amount CHECK (amount != 0),
    CONSTRAINT valid_reason CHECK (reason IN (
        'first-project', 'additional-project', 'demo-view',
        'idea-submitted', 'idea-reaction', 'review-received',
        'public-review-bonus'
    ))
);

CREATE INDEX IF NOT EXISTS idx_xp_transactions_actor ON xp_transactions(actor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_xp_transactions_actor_reason
    ON xp_transactions(actor_id, reason, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_xp_transactions_reason_targets
    ON xp_transactions USING GIN (target_refs);
`

const migration002Down = `
DROP TABLE IF EXISTS xp_transactions;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE BOTWATCH AND BOOTSTRAP
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create bot alerts and bootstrap markers
-- Version: 003

-- One row per detector hit. Never deduplicated: every triggering event
-- produces its own alert.
CREATE TABLE IF NOT EXISTS bot_alerts (
    id UUID PRIMARY KEY,
    actor_id UUID NOT NULL REFERENCES actors(id),
    alert_type VARCHAR(40) NOT NULL,
    severity VARCHAR(10) NOT NULL,
    evidence JSONB NOT NULL DEFAULT '{}'::jsonb,
    score_increase INTEGER NOT NULL,
    is_reviewed BOOLEAN NOT NULL DEFAULT FALSE,
    dispute_message TEXT,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_alert_type CHECK (alert_type IN (
        'rapid_project_publishing', 'rapid_idea_submission'
    )),
    CONSTRAINT valid_severity CHECK (severity IN ('low', 'medium', 'high')),
    CONSTRAINT positive_score_increase CHECK (score_increase > 0)
);

CREATE INDEX IF NOT EXISTS idx_bot_alerts_actor ON bot_alerts(actor_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_bot_alerts_unreviewed
    ON bot_alerts(created_at DESC) WHERE is_reviewed = FALSE;

-- One-time engine milestones (first-100 cohort marking). The primary key
-- makes each milestone run at most once.
CREATE TABLE IF NOT EXISTS engine_bootstrap (
    milestone VARCHAR(50) PRIMARY KEY,
    completed_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    affected_rows INTEGER NOT NULL DEFAULT 0
);
`

const migration003Down = `
DROP TABLE IF EXISTS engine_bootstrap;
DROP TABLE IF EXISTS bot_alerts;
`
