package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Memory is a TTL-bound LRU of dedup keys. It is lost on restart.
type Memory struct {
	// mu makes Claim's check and mark one step; the cache locks only
	// single calls
	mu   sync.Mutex
	keys *expirable.LRU[string, time.Time] // key -> marked at
	ttl  time.Duration
	now  func() time.Time
}

// NewMemory returns a ledger holding at most maxKeys keys for ttl each.
func NewMemory(maxKeys int, ttl time.Duration) *Memory {
	if maxKeys <= 0 {
		maxKeys = 10000
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Memory{
		keys: expirable.NewLRU[string, time.Time](maxKeys, nil, ttl),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Seen implements Ledger.
func (m *Memory) Seen(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen(key, m.now()), nil
}

// Mark implements Ledger.
func (m *Memory) Mark(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys.Add(key, m.now())
	return nil
}

// Claim implements Ledger.
func (m *Memory) Claim(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if m.seen(key, now) {
		return false, nil
	}
	m.keys.Add(key, now)
	return true, nil
}

// Release implements Ledger.
func (m *Memory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys.Remove(key)
	return nil
}

// Compact implements Compacter. Expired keys are removed as well.
func (m *Memory) Compact(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if exp := m.now().Add(-m.ttl); exp.After(cutoff) {
		cutoff = exp
	}

	n := 0
	for _, key := range m.keys.Keys() {
		marked, ok := m.keys.Peek(key)
		if ok && !marked.Before(cutoff) {
			continue
		}
		if m.keys.Remove(key) {
			n++
		}
	}
	return n, nil
}

// Len returns the number of keys held, expired ones included.
func (m *Memory) Len() int {
	return m.keys.Len()
}

// seen reports whether key is held and younger than ttl by m.now, which
// tests move independently of the cache's own expiry.
func (m *Memory) seen(key string, now time.Time) bool {
	marked, ok := m.keys.Peek(key)
	if !ok {
		return false
	}
	if now.Before(marked.Add(m.ttl)) {
		return true
	}
	m.keys.Remove(key)
	return false
}
