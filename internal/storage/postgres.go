package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS items (
	id                 BIGSERIAL PRIMARY KEY,
	platform           TEXT NOT NULL,
	external_id        TEXT NOT NULL,
	title              TEXT NOT NULL,
	url                TEXT,
	current_price      NUMERIC(12,2),
	old_price          NUMERIC(12,2),
	discount           DOUBLE PRECISION,
	stock              INTEGER,
	rating             DOUBLE PRECISION,
	stable_parse_count INTEGER NOT NULL DEFAULT 0,
	baseline_set_at    TIMESTAMPTZ,
	last_checked_at    TIMESTAMPTZ,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_items_platform_external UNIQUE (platform, external_id)
);

CREATE TABLE IF NOT EXISTS history (
	id         BIGSERIAL PRIMARY KEY,
	item_id    BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
	price      NUMERIC(12,2),
	old_price  NUMERIC(12,2),
	discount   DOUBLE PRECISION,
	stock      INTEGER,
	rating     DOUBLE PRECISION,
	checked_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_item_checked ON history (item_id, checked_at);

CREATE TABLE IF NOT EXISTS settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Open connects to Postgres and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// Migrate creates the schema if it does not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
