package dedup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/linnemanlabs/go-core/log"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestMemory(maxKeys int, ttl time.Duration) (*Memory, *clock) {
	c := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemory(maxKeys, ttl)
	m.now = c.now
	return m, c
}

func TestMemory_SeenMark(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemory(10, time.Hour)
	ctx := context.Background()

	if ok, _ := m.Seen(ctx, "a"); ok {
		t.Fatal("unmarked key reported seen")
	}
	if err := m.Mark(ctx, "a"); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if ok, _ := m.Seen(ctx, "a"); !ok {
		t.Fatal("marked key not seen")
	}
}

func TestMemory_Claim(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemory(10, time.Hour)
	ctx := context.Background()

	if ok, _ := m.Claim(ctx, "k"); !ok {
		t.Fatal("first claim should succeed")
	}
	if ok, _ := m.Claim(ctx, "k"); ok {
		t.Fatal("second claim should fail")
	}
}

func TestMemory_TTL(t *testing.T) {
	t.Parallel()

	m, c := newTestMemory(10, time.Hour)
	ctx := context.Background()

	_ = m.Mark(ctx, "k")
	c.advance(59 * time.Minute)
	if ok, _ := m.Seen(ctx, "k"); !ok {
		t.Fatal("key expired early")
	}
	c.advance(time.Minute)
	if ok, _ := m.Seen(ctx, "k"); ok {
		t.Fatal("key should have expired")
	}
	if m.Len() != 0 {
		t.Errorf("Len = %d, want expired key dropped", m.Len())
	}
	if ok, _ := m.Claim(ctx, "k"); !ok {
		t.Error("expired key should be claimable again")
	}
}

func TestMemory_Capacity(t *testing.T) {
	t.Parallel()

	m, c := newTestMemory(3, time.Hour)
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		_ = m.Mark(ctx, k)
		c.advance(time.Second)
	}
	// re-marking a moves it to the front
	_ = m.Mark(ctx, "a")
	_ = m.Mark(ctx, "d")

	if m.Len() != 3 {
		t.Fatalf("Len = %d, want 3", m.Len())
	}
	if ok, _ := m.Seen(ctx, "b"); ok {
		t.Error("oldest key b should be evicted")
	}
	for _, k := range []string{"a", "c", "d"} {
		if ok, _ := m.Seen(ctx, k); !ok {
			t.Errorf("key %s evicted", k)
		}
	}
}

func TestMemory_Compact(t *testing.T) {
	t.Parallel()

	m, c := newTestMemory(10, 24*time.Hour)
	ctx := context.Background()

	_ = m.Mark(ctx, "old")
	c.advance(2 * time.Hour)
	_ = m.Mark(ctx, "new")

	n, err := m.Compact(ctx, c.now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if n != 1 {
		t.Errorf("removed = %d, want 1", n)
	}
	if ok, _ := m.Seen(ctx, "old"); ok {
		t.Error("old key survived compaction")
	}
	if ok, _ := m.Seen(ctx, "new"); !ok {
		t.Error("new key removed")
	}
}

func TestMemory_ConcurrentClaim(t *testing.T) {
	t.Parallel()

	m := NewMemory(1000, time.Hour)
	ctx := context.Background()
	const workers = 32

	var wins atomic.Int32
	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for i := range 10 {
				if ok, _ := m.Claim(ctx, fmt.Sprintf("k-%d", i)); ok {
					wins.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 10 {
		t.Errorf("successful claims = %d, want 10", wins.Load())
	}
}

type countingCompacter struct {
	calls atomic.Int32
}

func (c *countingCompacter) Compact(context.Context, time.Time) (int, error) {
	c.calls.Add(1)
	return 1, nil
}

func TestRunCompactor(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	c := &countingCompacter{}
	done := make(chan struct{})
	go func() {
		RunCompactor(ctx, c, 5*time.Millisecond, time.Hour, log.Nop())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for c.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatal("compactor did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestMemory_Release(t *testing.T) {
	t.Parallel()

	m, _ := newTestMemory(10, time.Hour)
	ctx := context.Background()

	if ok, _ := m.Claim(ctx, "k"); !ok {
		t.Fatal("first claim should succeed")
	}
	if err := m.Release(ctx, "k"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if ok, _ := m.Seen(ctx, "k"); ok {
		t.Error("released key still seen")
	}
	if ok, _ := m.Claim(ctx, "k"); !ok {
		t.Error("released key should be claimable again")
	}
	if err := m.Release(ctx, "missing"); err != nil {
		t.Errorf("Release(missing) = %v, want nil", err)
	}
}
