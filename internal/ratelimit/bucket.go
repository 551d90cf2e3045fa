// Package ratelimit implements refilling token buckets keyed by caller identity (client IP,
// normalised email, pending OTP id). State is process local.
package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/jonboulle/clockwork"
)

// ErrInvalidConfig is returned when a limiter is constructed with a non-positive capacity or interval.
var ErrInvalidConfig = errors.New("ratelimit: invalid configuration")

const shardCount = 32

type bucket struct {
	count      float64
	refilledAt time.Time
}

type shard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option customises a TokenBucket.
type Option func(*TokenBucket)

// WithClock injects the time source used for refill arithmetic.
func WithClock(clock clockwork.Clock) Option {
	return func(b *TokenBucket) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// WithName labels the limiter for logs and metrics.
func WithName(name string) Option {
	return func(b *TokenBucket) {
		b.name = name
	}
}

// TokenBucket refills one token every refill interval up to capacity. Keys are spread over
// a fixed set of shards so unrelated callers never wait on each other.
type TokenBucket struct {
	name     string
	capacity int
	refill   time.Duration
	clock    clockwork.Clock
	shards   [shardCount]shard
}

// NewTokenBucket constructs a limiter allowing capacity tokens, refilling one per interval.
func NewTokenBucket(capacity int, refillInterval time.Duration, opts ...Option) (*TokenBucket, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive (got %d)", ErrInvalidConfig, capacity)
	}
	if refillInterval <= 0 {
		return nil, fmt.Errorf("%w: refill interval must be positive (got %s)", ErrInvalidConfig, refillInterval)
	}

	b := &TokenBucket{
		capacity: capacity,
		refill:   refillInterval,
		clock:    clockwork.NewRealClock(),
	}
	for i := range b.shards {
		b.shards[i].buckets = make(map[string]*bucket)
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Name returns the limiter label.
func (b *TokenBucket) Name() string { return b.name }

// Capacity returns the maximum number of tokens per key.
func (b *TokenBucket) Capacity() int { return b.capacity }

// RefillInterval returns the time needed to regain a single token.
func (b *TokenBucket) RefillInterval() time.Duration { return b.refill }

// Check reports whether cost tokens are available for key without consuming them. A cost
// of zero or less is always available.
func (b *TokenBucket) Check(key string, cost int) bool {
	if cost <= 0 {
		return true
	}
	now := b.clock.Now()

	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	bk, ok := s.buckets[key]
	if !ok {
		return cost <= b.capacity
	}
	return b.available(bk, now) >= float64(cost)
}

// Consume takes cost tokens for key when they are available. On failure the bucket is left
// untouched. A cost of zero or less succeeds without touching any state.
func (b *TokenBucket) Consume(key string, cost int) bool {
	if cost <= 0 {
		return true
	}
	now := b.clock.Now()

	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	bk, ok := s.buckets[key]
	if !ok {
		if cost > b.capacity {
			return false
		}
		s.buckets[key] = &bucket{count: float64(b.capacity - cost), refilledAt: now}
		return true
	}

	current := b.available(bk, now)
	if current < float64(cost) {
		return false
	}
	bk.count = current - float64(cost)
	bk.refilledAt = now
	return true
}

// RetryAfter estimates how long key must wait before cost tokens become available.
func (b *TokenBucket) RetryAfter(key string, cost int) time.Duration {
	if cost <= 0 {
		return 0
	}
	now := b.clock.Now()

	s := b.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	bk, ok := s.buckets[key]
	if !ok {
		return 0
	}
	missing := float64(cost) - b.available(bk, now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing * float64(b.refill)))
}

// Cleanup drops buckets that have refilled to capacity; such entries are indistinguishable
// from a fresh bucket. Partially consumed buckets are always kept. It returns the number removed.
func (b *TokenBucket) Cleanup() int {
	now := b.clock.Now()
	removed := 0

	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		for key, bk := range s.buckets {
			if b.available(bk, now) >= float64(b.capacity) {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of keys currently tracked.
func (b *TokenBucket) Len() int {
	total := 0
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		total += len(s.buckets)
		s.mu.Unlock()
	}
	return total
}

func (b *TokenBucket) available(bk *bucket, now time.Time) float64 {
	elapsed := now.Sub(bk.refilledAt)
	if elapsed < 0 {
		elapsed = 0
	}
	refilled := bk.count + float64(elapsed)/float64(b.refill)
	return math.Min(float64(b.capacity), refilled)
}

func (b *TokenBucket) shardFor(key string) *shard {
	return &b.shards[xxhash.Sum64String(key)%shardCount]
}
