// Package memory keeps challenges in process memory.
//
// Identities are spread over shards by xxhash; every operation on one identity
// holds that shard's mutex, so same-identity calls are linearizable while
// unrelated identities mostly proceed in parallel.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shandysiswandi/otpgate/internal/phoneauth/entity"
	"github.com/shandysiswandi/otpgate/internal/pkg/instrument"
	"go.opentelemetry.io/otel/trace"
)

const defaultShards = 64

type shard struct {
	mu    sync.Mutex
	items map[string]entity.Challenge
}

type Store struct {
	shards []*shard
	ins    instrument.Instrumentation
}

func NewStore(shards int, ins instrument.Instrumentation) *Store {
	if shards <= 0 {
		shards = defaultShards
	}

	s := &Store{shards: make([]*shard, shards), ins: ins}
	for i := range s.shards {
		s.shards[i] = &shard{items: make(map[string]entity.Challenge)}
	}

	return s
}

func (s *Store) shardFor(identity string) *shard {
	return s.shards[xxhash.Sum64String(identity)%uint64(len(s.shards))]
}

func (s *Store) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("phoneauth.outbound.memory").Start(ctx, name)
}

// Put replaces any challenge for the same identity.
func (s *Store) Put(ctx context.Context, c entity.Challenge) error {
	_, span := s.startSpan(ctx, "Put")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	sh := s.shardFor(c.Identity)
	sh.mu.Lock()
	sh.items[c.Identity] = c
	sh.mu.Unlock()

	return nil
}

// Consume checks codeHash against the live challenge and deletes it on match or expiry.
func (s *Store) Consume(ctx context.Context, identity, codeHash string, now time.Time) (entity.ConsumeResult, error) {
	_, span := s.startSpan(ctx, "Consume")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return entity.ConsumeNotFound, err
	}

	sh := s.shardFor(identity)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	c, ok := sh.items[identity]
	if !ok {
		return entity.ConsumeNotFound, nil
	}

	if c.Expired(now) {
		delete(sh.items, identity)
		return entity.ConsumeExpired, nil
	}

	if !c.Matches(codeHash) {
		c.Attempts++
		if c.Exhausted(c.Attempts) {
			delete(sh.items, identity)
		} else {
			sh.items[identity] = c
		}
		return entity.ConsumeMismatch, nil
	}

	delete(sh.items, identity)
	return entity.ConsumeMatched, nil
}

// Discard removes the challenge only if it still carries id.
func (s *Store) Discard(ctx context.Context, identity string, id int64) error {
	_, span := s.startSpan(ctx, "Discard")
	defer span.End()

	sh := s.shardFor(identity)
	sh.mu.Lock()
	if c, ok := sh.items[identity]; ok && c.ID == id {
		delete(sh.items, identity)
	}
	sh.mu.Unlock()

	return nil
}

// Sweep drops every challenge expired at now and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k, c := range sh.items {
			if c.Expired(now) {
				delete(sh.items, k)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	return removed
}

// Len returns the number of stored challenges, expired or not.
func (s *Store) Len() int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		n += len(sh.items)
		sh.mu.Unlock()
	}
	return n
}
