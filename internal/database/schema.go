package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS order_history (
	id              SERIAL PRIMARY KEY,
	order_id        TEXT NOT NULL UNIQUE,
	purchase_number TEXT NOT NULL,
	user_id         TEXT NOT NULL DEFAULT '',
	showtime_ids    TEXT[] NOT NULL DEFAULT '{}',
	seat_codes      TEXT[] NOT NULL DEFAULT '{}',
	grand_total     NUMERIC(12, 2) NOT NULL,
	confirmed_at    TIMESTAMPTZ NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_order_history_user ON order_history (user_id, confirmed_at DESC);
`

// EnsureSchema creates the order history table when it does not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
