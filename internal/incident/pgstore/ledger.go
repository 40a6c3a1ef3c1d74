package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/linnemanlabs/roadwatch/internal/postgres"
)

// Ledger is a dedup ledger backed by the dedup_keys table, so processed
// feed records stay known across restarts.
type Ledger struct {
	store *Store
}

// Ledger returns the dedup ledger sharing this store's pool.
func (s *Store) Ledger() *Ledger {
	return &Ledger{store: s}
}

// Seen reports whether key has been marked.
func (l *Ledger) Seen(ctx context.Context, key string) (bool, error) {
	ctx, span := startSpan(postgres.WithDedupKey(ctx, key), "pgstore.Ledger.Seen", "SELECT")
	defer span.End()

	var exists bool
	err := l.store.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM dedup_keys WHERE key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fail(span, fmt.Errorf("query dedup key: %w", err))
	}
	return exists, nil
}

// Mark records key, refreshing its timestamp if it exists.
func (l *Ledger) Mark(ctx context.Context, key string) error {
	ctx, span := startSpan(postgres.WithDedupKey(ctx, key), "pgstore.Ledger.Mark", "UPSERT")
	defer span.End()

	_, err := l.store.pool.Exec(ctx,
		`INSERT INTO dedup_keys (key, marked_at) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET marked_at = EXCLUDED.marked_at`,
		key, l.store.now().UTC())
	if err != nil {
		return fail(span, fmt.Errorf("mark dedup key: %w", err))
	}
	return nil
}

// Claim inserts key and reports whether this call inserted it.
func (l *Ledger) Claim(ctx context.Context, key string) (bool, error) {
	ctx, span := startSpan(postgres.WithDedupKey(ctx, key), "pgstore.Ledger.Claim", "INSERT")
	defer span.End()

	tag, err := l.store.pool.Exec(ctx,
		`INSERT INTO dedup_keys (key, marked_at) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`,
		key, l.store.now().UTC())
	if err != nil {
		return false, fail(span, fmt.Errorf("claim dedup key: %w", err))
	}
	return tag.RowsAffected() == 1, nil
}

// Release deletes key. Deleting a missing key is not an error.
func (l *Ledger) Release(ctx context.Context, key string) error {
	ctx, span := startSpan(postgres.WithDedupKey(ctx, key), "pgstore.Ledger.Release", "DELETE")
	defer span.End()

	if _, err := l.store.pool.Exec(ctx, `DELETE FROM dedup_keys WHERE key = $1`, key); err != nil {
		return fail(span, fmt.Errorf("release dedup key: %w", err))
	}
	return nil
}

// Compact deletes keys marked before cutoff.
func (l *Ledger) Compact(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := startSpan(ctx, "pgstore.Ledger.Compact", "DELETE")
	defer span.End()

	tag, err := l.store.pool.Exec(ctx, `DELETE FROM dedup_keys WHERE marked_at < $1`, cutoff.UTC())
	if err != nil {
		return 0, fail(span, fmt.Errorf("compact dedup keys: %w", err))
	}
	return int(tag.RowsAffected()), nil
}
