package database

import (
	"database/sql"
	"fmt"
)

// migrations are applied in order on startup. Statements are idempotent so
// restarting the service against an existing database is safe.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS table_sessions (
		id         BIGSERIAL PRIMARY KEY,
		table_id   BIGINT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		ended_at   TIMESTAMPTZ,
		is_active  BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	// At most one active session per physical table.
	`CREATE UNIQUE INDEX IF NOT EXISTS table_sessions_one_active
		ON table_sessions (table_id) WHERE is_active`,
	`CREATE TABLE IF NOT EXISTS participants (
		id           BIGSERIAL PRIMARY KEY,
		session_id   BIGINT NOT NULL REFERENCES table_sessions(id),
		user_id      BIGINT,
		fantasy_name TEXT NOT NULL,
		joined_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		left_at      TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS participants_session_idx ON participants (session_id)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id                   BIGSERIAL PRIMARY KEY,
		session_id           BIGINT NOT NULL REFERENCES table_sessions(id),
		owner_participant_id BIGINT NOT NULL REFERENCES participants(id),
		status               TEXT NOT NULL DEFAULT 'pending',
		subtotal             BIGINT NOT NULL DEFAULT 0,
		tax_amount           BIGINT NOT NULL DEFAULT 0,
		total_amount         BIGINT NOT NULL DEFAULT 0,
		notes                TEXT NOT NULL DEFAULT '',
		cancel_reason        TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_session_idx ON orders (session_id)`,
	`CREATE INDEX IF NOT EXISTS orders_owner_idx ON orders (owner_participant_id)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id             BIGSERIAL PRIMARY KEY,
		order_id       BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		menu_item_id   BIGINT NOT NULL,
		quantity       INT NOT NULL,
		unit_price     BIGINT NOT NULL,
		customizations JSONB NOT NULL DEFAULT '[]',
		notes          TEXT NOT NULL DEFAULT '',
		total_price    BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS split_sessions (
		id               BIGSERIAL PRIMARY KEY,
		table_session_id BIGINT NOT NULL REFERENCES table_sessions(id),
		strategy         TEXT NOT NULL,
		base_amount      BIGINT NOT NULL,
		tip_amount       BIGINT NOT NULL DEFAULT 0,
		tip_strategy     TEXT NOT NULL DEFAULT 'none',
		status           TEXT NOT NULL DEFAULT 'open',
		cancel_reason    TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS split_sessions_session_idx ON split_sessions (table_session_id)`,
	`CREATE TABLE IF NOT EXISTS contributions (
		id                     BIGSERIAL PRIMARY KEY,
		split_session_id       BIGINT NOT NULL REFERENCES split_sessions(id) ON DELETE CASCADE,
		participant_id         BIGINT NOT NULL REFERENCES participants(id),
		amount_due             BIGINT NOT NULL,
		amount_paid            BIGINT NOT NULL DEFAULT 0,
		payment_ref            TEXT,
		status                 TEXT NOT NULL DEFAULT 'pending',
		paid_by_participant_id BIGINT REFERENCES participants(id),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (split_session_id, participant_id)
	)`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}
	return nil
}
