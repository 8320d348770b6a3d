// Package migrations applies the engine's database schema. Statements are
// idempotent and run in order on every startup.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

var statements = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id           TEXT PRIMARY KEY,
		username     TEXT NOT NULL,
		display_name TEXT NOT NULL DEFAULT '',
		photo_url    TEXT NOT NULL DEFAULT '',
		coins        BIGINT NOT NULL DEFAULT 0 CHECK (coins >= 0),
		joined_date  TIMESTAMPTZ NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS themes (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS catalog_items (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		media_url   TEXT NOT NULL,
		theme_id    TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		tags        TEXT[] NOT NULL DEFAULT '{}',
		created_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_items_created_at
		ON catalog_items (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS withdrawal_requests (
		id              TEXT PRIMARY KEY,
		profile_id      TEXT NOT NULL,
		username        TEXT NOT NULL,
		amount_idr      BIGINT NOT NULL,
		method          TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'pending',
		balance_cleared BOOLEAN NOT NULL DEFAULT FALSE,
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawal_requests_uncleared
		ON withdrawal_requests (created_at) WHERE NOT balance_cleared`,
}

// Apply executes every migration statement in order.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
