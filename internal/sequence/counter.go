// Package sequence allocates the human readable document numbers.
package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Querier is satisfied by pgxpool.Pool and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Counter increments named counters stored in Postgres.
type Counter struct {
	db Querier
}

// NewCounter constructs a Counter.
func NewCounter(db Querier) *Counter {
	return &Counter{db: db}
}

const nextSQL = `INSERT INTO counters (key, seq) VALUES ($1, 1)
ON CONFLICT (key) DO UPDATE SET seq = counters.seq + 1
RETURNING seq`

// Next atomically increments key and returns the new value. The first call
// for a key returns 1.
func (c *Counter) Next(ctx context.Context, key string) (int64, error) {
	var seq int64
	if err := c.db.QueryRow(ctx, nextSQL, key).Scan(&seq); err != nil {
		return 0, fmt.Errorf("sequence: next %s: %w", key, err)
	}
	return seq, nil
}

// Peek returns the value the next call to Next would return, without
// consuming it.
func (c *Counter) Peek(ctx context.Context, key string) (int64, error) {
	var seq int64
	err := c.db.QueryRow(ctx, `SELECT seq FROM counters WHERE key = $1`, key).Scan(&seq)
	if errors.Is(err, pgx.ErrNoRows) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sequence: peek %s: %w", key, err)
	}
	return seq + 1, nil
}
