package persist

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	order_type       TEXT NOT NULL,
	amount           REAL NOT NULL,
	price            REAL,
	status           TEXT NOT NULL,
	source           TEXT NOT NULL,
	created_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	order_id         TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	price            REAL NOT NULL,
	quantity         REAL NOT NULL,
	source           TEXT NOT NULL,
	executed_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fills_order_id ON fills(order_id);

CREATE TABLE IF NOT EXISTS trades (
	id               TEXT PRIMARY KEY,
	order_id         TEXT NOT NULL,
	symbol           TEXT NOT NULL,
	side             TEXT NOT NULL,
	amount           REAL NOT NULL,
	price            REAL NOT NULL,
	source           TEXT NOT NULL,
	executed_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_trades_executed_at ON trades(executed_at DESC);

CREATE TABLE IF NOT EXISTS positions (
	symbol           TEXT PRIMARY KEY,
	quantity         REAL NOT NULL
);
`

// EnsureSchema creates every table this package needs, idempotently.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
