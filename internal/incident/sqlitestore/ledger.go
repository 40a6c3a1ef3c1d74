package sqlitestore

import (
	"context"
	"fmt"
	"time"
)

// Ledger is a dedup ledger stored in the dedup_keys table.
type Ledger struct {
	store *Store
}

// Ledger returns the dedup ledger sharing this store's database.
func (s *Store) Ledger() *Ledger {
	return &Ledger{store: s}
}

// Seen reports whether key has been marked.
func (l *Ledger) Seen(ctx context.Context, key string) (bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Ledger.Seen", "SELECT")
	defer span.End()

	var n int
	if err := l.store.db.GetContext(ctx, &n, `SELECT count(*) FROM dedup_keys WHERE key = ?`, key); err != nil {
		return false, fail(span, fmt.Errorf("query dedup key: %w", err))
	}
	return n > 0, nil
}

// Mark records key, refreshing its timestamp if it exists.
func (l *Ledger) Mark(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, "sqlitestore.Ledger.Mark", "UPSERT")
	defer span.End()

	_, err := l.store.db.ExecContext(ctx,
		`INSERT INTO dedup_keys (key, marked_at) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET marked_at = excluded.marked_at`,
		key, l.store.now().UnixMilli())
	if err != nil {
		return fail(span, fmt.Errorf("mark dedup key: %w", err))
	}
	return nil
}

// Claim inserts key and reports whether this call inserted it.
func (l *Ledger) Claim(ctx context.Context, key string) (bool, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Ledger.Claim", "INSERT")
	defer span.End()

	res, err := l.store.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO dedup_keys (key, marked_at) VALUES (?, ?)`,
		key, l.store.now().UnixMilli())
	if err != nil {
		return false, fail(span, fmt.Errorf("claim dedup key: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fail(span, fmt.Errorf("rows affected: %w", err))
	}
	return n == 1, nil
}

// Release deletes key. Deleting a missing key is not an error.
func (l *Ledger) Release(ctx context.Context, key string) error {
	ctx, span := startSpan(ctx, "sqlitestore.Ledger.Release", "DELETE")
	defer span.End()

	if _, err := l.store.db.ExecContext(ctx, `DELETE FROM dedup_keys WHERE key = ?`, key); err != nil {
		return fail(span, fmt.Errorf("release dedup key: %w", err))
	}
	return nil
}

// Compact deletes keys marked before cutoff.
func (l *Ledger) Compact(ctx context.Context, cutoff time.Time) (int, error) {
	ctx, span := startSpan(ctx, "sqlitestore.Ledger.Compact", "DELETE")
	defer span.End()

	res, err := l.store.db.ExecContext(ctx, `DELETE FROM dedup_keys WHERE marked_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, fail(span, fmt.Errorf("compact dedup keys: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fail(span, fmt.Errorf("rows affected: %w", err))
	}
	return int(n), nil
}
