package storage

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS alerts (
        id              UUID PRIMARY KEY,
        recipient_name  TEXT NOT NULL DEFAULT '',
        recipient_email TEXT NOT NULL,
        base_currency   TEXT NOT NULL,
        quote_currency  TEXT NOT NULL,
        threshold       NUMERIC,
        evolution_rate  NUMERIC,
        period_seconds  BIGINT,
        starting_value  NUMERIC NOT NULL,
        period_start    TIMESTAMPTZ NOT NULL,
        is_active       BOOLEAN NOT NULL DEFAULT TRUE,
        created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
        CHECK (base_currency <> quote_currency),
        CHECK ((threshold IS NULL) <> (evolution_rate IS NULL)),
        CHECK ((evolution_rate IS NULL) = (period_seconds IS NULL))
    );`,
	`CREATE INDEX IF NOT EXISTS idx_alerts_active ON alerts(is_active) WHERE is_active;`,
	`CREATE TABLE IF NOT EXISTS notifications (
        id           BIGSERIAL PRIMARY KEY,
        alert_id     UUID NOT NULL REFERENCES alerts(id) ON DELETE CASCADE,
        recipient    TEXT NOT NULL,
        subject      TEXT NOT NULL,
        attempts     INTEGER NOT NULL DEFAULT 1,
        delivered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );`,
	`CREATE TABLE IF NOT EXISTS rate_samples (
        observed_at    TIMESTAMPTZ NOT NULL,
        base_currency  TEXT NOT NULL,
        quote_currency TEXT NOT NULL,
        rate           NUMERIC NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_rate_samples_pair
        ON rate_samples(base_currency, quote_currency, observed_at);`,
}

// EnsureSchema creates the tables used by the engine when they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
