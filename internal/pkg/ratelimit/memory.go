package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

const defaultShards = 32

type clocker interface {
	Now() time.Time
}

type fixedWindow struct {
	resetAt time.Time
	count   int
}

type memoryShard struct {
	mu      sync.Mutex
	windows map[string]*fixedWindow
}

// Memory is an in-process Limiter sharded by key hash.
type Memory struct {
	clock  clocker
	shards []*memoryShard
}

// NewMemory builds a Memory limiter with n shards (defaults to 32 when n < 1).
func NewMemory(clock clocker, n int) *Memory {
	if n < 1 {
		n = defaultShards
	}

	shards := make([]*memoryShard, n)
	for i := range shards {
		shards[i] = &memoryShard{windows: make(map[string]*fixedWindow)}
	}

	return &Memory{clock: clock, shards: shards}
}

func (m *Memory) shard(key string) *memoryShard {
	return m.shards[xxhash.Sum64String(key)%uint64(len(m.shards))]
}

// Allow implements Limiter.
func (m *Memory) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}
	if err := validPolicy(limit, window); err != nil {
		return Decision{}, err
	}

	now := m.clock.Now()
	s := m.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &fixedWindow{resetAt: now.Add(window)}
		s.windows[key] = w
	}

	retryAfter := w.resetAt.Sub(now)
	if w.count >= limit {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
	}

	w.count++
	return Decision{Allowed: true, Remaining: limit - w.count, RetryAfter: retryAfter}, nil
}

// Sweep drops windows that have elapsed at now and returns how many were removed.
func (m *Memory) Sweep(now time.Time) int {
	removed := 0
	for _, s := range m.shards {
		s.mu.Lock()
		for key, w := range s.windows {
			if !now.Before(w.resetAt) {
				delete(s.windows, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}
