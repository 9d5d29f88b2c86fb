// Package persist is the durable record of Orders, Fills, Trades, and
// aggregate Positions, backed by an embedded, cgo-free SQLite database
// reached through sqlx.
package persist

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store wraps the embedded database connection. A single process owns
// one Store; sqlite serializes writers internally, so no additional
// locking is layered on top here beyond what individual operations need
// for atomicity (see SetPositions).
type Store struct {
	db *sqlx.DB
}

// NewStore opens (and creates, if absent) the embedded database at dsn —
// typically a filesystem path, or ":memory:" for tests — and ensures its
// schema exists.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("persist: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: ping: %w", err)
	}
	// A single connection avoids SQLITE_BUSY under concurrent writers;
	// reads are cheap enough at this scale to share it too.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("persist: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying sqlx.DB, needed by callers that run their
// own queries (see archive/retention).
func (s *Store) DB() *sqlx.DB { return s.db }

// Migrate creates the schema if it does not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	return EnsureSchema(ctx, s.db)
}
