package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // Import postgres driver
)

func Connect(dsn string, timeout time.Duration, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	// Журнал уведомлений - единственная таблица, большой пул не нужен.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database handle after ping error", slog.Any("error", closeErr))
		}
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS gateway_events (
	id                 BIGSERIAL PRIMARY KEY,
	transaction_id     TEXT        NOT NULL,
	status             TEXT        NOT NULL CHECK (status IN ('approved', 'failed')),
	payment_id         TEXT        NOT NULL,
	participant_id     TEXT        NOT NULL,
	tournament_id      TEXT        NOT NULL,
	phase_id           TEXT        NOT NULL,
	vote_count         BIGINT      NOT NULL CHECK (vote_count > 0),
	amount             BIGINT      NOT NULL DEFAULT 0,
	merchant_reference TEXT        NOT NULL DEFAULT '',
	state              TEXT        NOT NULL DEFAULT 'claimed',
	attempts           INTEGER     NOT NULL DEFAULT 1,
	archive_key        TEXT,
	claimed_at         TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	applied_at         TIMESTAMPTZ,
	UNIQUE (transaction_id, status)
);
CREATE INDEX IF NOT EXISTS gateway_events_payment_id_idx ON gateway_events (payment_id);
`

// EnsureSchema creates the reconciliation ledger if it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply ledger schema: %w", err)
	}
	return nil
}
