// Package postgres implements history.Store on a PostgreSQL turn_entries
// table via pgx. Use it when transcripts must survive process restarts.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxgate/voxgate/pkg/history"
)

// Store is a PostgreSQL-backed history store. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ history.Store = (*Store)(nil)

const schema = `
	CREATE TABLE IF NOT EXISTS turn_entries (
	    id         BIGSERIAL PRIMARY KEY,
	    session_id TEXT        NOT NULL,
	    role       TEXT        NOT NULL,
	    content    TEXT        NOT NULL,
	    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS turn_entries_session_idx
	    ON turn_entries (session_id, id);`

// New connects to PostgreSQL with dsn and ensures the turn_entries table
// exists. The caller must call Close when done.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("history postgres: connect: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: ensure schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Append implements history.Store.
func (s *Store) Append(ctx context.Context, sessionID string, entry history.Entry) error {
	ts := entry.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	const q = `
		INSERT INTO turn_entries (session_id, role, content, created_at)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.pool.Exec(ctx, q, sessionID, entry.Role, entry.Content, ts); err != nil {
		return fmt.Errorf("history postgres: append: %w", err)
	}
	return nil
}

// Recent implements history.Store. Entries come back oldest first.
func (s *Store) Recent(ctx context.Context, sessionID string, limit int) ([]history.Entry, error) {
	if limit <= 0 {
		return []history.Entry{}, nil
	}

	const q = `
		SELECT role, content, created_at
		FROM  (SELECT id, role, content, created_at
		       FROM   turn_entries
		       WHERE  session_id = $1
		       ORDER  BY id DESC
		       LIMIT  $2) latest
		ORDER BY id`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("history postgres: recent: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.Entry, error) {
		var e history.Entry
		if err := row.Scan(&e.Role, &e.Content, &e.Timestamp); err != nil {
			return history.Entry{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("history postgres: scan rows: %w", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return entries, nil
}
