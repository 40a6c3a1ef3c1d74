// Package dedup remembers which feed records were already ingested.
//
// Keys are claimed before a record is enriched, so a record that fails
// later in the pipeline is not retried on the next run. The store keeps a
// second guard on (message, location).
package dedup

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

// Ledger records processed dedup keys.
type Ledger interface {
	// Seen reports whether key was marked and has not expired.
	Seen(ctx context.Context, key string) (bool, error)
	// Mark records key as processed.
	Mark(ctx context.Context, key string) error
	// Claim marks key and reports whether this call did so, i.e. whether
	// the key was not seen before. Check and mark are one atomic step.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a later run reconsiders the record. It is
	// used for records that were claimed but never reached the store.
	Release(ctx context.Context, key string) error
}

// Compacter is a ledger that can forget old keys.
type Compacter interface {
	// Compact drops keys marked before cutoff and returns how many were removed.
	Compact(ctx context.Context, cutoff time.Time) (int, error)
}

// RunCompactor calls c.Compact every interval with a cutoff of retention
// ago, until ctx is cancelled.
func RunCompactor(ctx context.Context, c Compacter, interval, retention time.Duration, logger log.Logger) {
	if interval <= 0 || retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Compact(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Error(ctx, err, "dedup ledger compaction failed")
				continue
			}
			if n > 0 {
				logger.Info(ctx, "dedup ledger compacted", "removed", n)
			}
		}
	}
}
