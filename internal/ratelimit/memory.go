package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter is the in-process fallback: a per-identity sorted list
// of recent timestamps, guarded by a single mutex. It is explicitly not
// consistent across processes — that's the documented tradeoff of the
// fallback path.
type MemoryLimiter struct {
	mu       sync.Mutex
	limit    int
	counters map[string][]time.Time
}

// NewMemoryLimiter builds the fallback limiter for the given per-window limit.
func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, counters: make(map[string][]time.Time)}
}

func (m *MemoryLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	now := time.Now()
	cutoff := now.Add(-Window)

	m.mu.Lock()
	defer m.mu.Unlock()

	timestamps := m.counters[identity]
	trimmed := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			trimmed = append(trimmed, ts)
		}
	}
	trimmed = append(trimmed, now)
	m.counters[identity] = trimmed

	return len(trimmed) <= m.limit, nil
}
