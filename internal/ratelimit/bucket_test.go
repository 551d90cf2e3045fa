package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

func newTestBucket(t *testing.T, capacity int, refill time.Duration) (*TokenBucket, clockwork.FakeClock) {
	t.Helper()

	clock := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	tb, err := NewTokenBucket(capacity, refill, WithClock(clock), WithName("test"))
	require.NoError(t, err)
	return tb, clock
}

func TestNewTokenBucketRejectsInvalidConfig(t *testing.T) {
	_, err := NewTokenBucket(0, time.Second)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewTokenBucket(3, 0)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConsumeAllowsCapacityThenRefillsOne(t *testing.T) {
	for _, tc := range []struct {
		capacity int
		refill   time.Duration
	}{
		{1, time.Second},
		{5, 10 * time.Second},
		{20, time.Minute},
	} {
		t.Run(fmt.Sprintf("capacity=%d", tc.capacity), func(t *testing.T) {
			tb, clock := newTestBucket(t, tc.capacity, tc.refill)

			for i := 0; i < tc.capacity; i++ {
				require.True(t, tb.Consume("10.0.0.1", 1), "consume %d", i)
			}
			require.False(t, tb.Consume("10.0.0.1", 1))

			clock.Advance(tc.refill / 2)
			require.False(t, tb.Consume("10.0.0.1", 1), "half an interval must not refill a token")

			clock.Advance(tc.refill / 2)
			require.True(t, tb.Consume("10.0.0.1", 1))
			require.False(t, tb.Consume("10.0.0.1", 1))
		})
	}
}

func TestRefillNeverExceedsCapacity(t *testing.T) {
	tb, clock := newTestBucket(t, 3, time.Second)

	require.True(t, tb.Consume("k", 1))
	clock.Advance(time.Hour)

	for i := 0; i < 3; i++ {
		require.True(t, tb.Consume("k", 1))
	}
	require.False(t, tb.Consume("k", 1))
}

func TestCheckDoesNotConsume(t *testing.T) {
	tb, _ := newTestBucket(t, 2, time.Minute)

	require.True(t, tb.Check("member@example.com", 1))
	require.Equal(t, 0, tb.Len(), "check must not create a bucket")

	require.True(t, tb.Consume("member@example.com", 1))
	for i := 0; i < 5; i++ {
		require.True(t, tb.Check("member@example.com", 1))
	}
	require.False(t, tb.Check("member@example.com", 2))
	require.True(t, tb.Consume("member@example.com", 1))
	require.False(t, tb.Check("member@example.com", 1))
}

func TestCheckAppliesRefillWithoutPersisting(t *testing.T) {
	tb, clock := newTestBucket(t, 2, time.Minute)

	require.True(t, tb.Consume("k", 2))
	require.False(t, tb.Check("k", 1))

	clock.Advance(time.Minute)
	require.True(t, tb.Check("k", 1))
	require.False(t, tb.Check("k", 2))

	clock.Advance(time.Minute)
	require.True(t, tb.Check("k", 2))
	require.True(t, tb.Consume("k", 2))
}

func TestConsumeWithCostLeavesStateOnFailure(t *testing.T) {
	tb, _ := newTestBucket(t, 5, time.Minute)

	require.False(t, tb.Consume("k", 6), "cost above capacity is never satisfiable")
	require.Equal(t, 0, tb.Len())

	require.True(t, tb.Consume("k", 3))
	require.False(t, tb.Consume("k", 3))
	require.True(t, tb.Consume("k", 2), "failed consume must not have subtracted tokens")
	require.False(t, tb.Consume("k", 1))
}

func TestZeroCostIsAlwaysAvailableAndFree(t *testing.T) {
	tb, _ := newTestBucket(t, 2, time.Minute)

	require.True(t, tb.Check("fresh", 0))
	require.True(t, tb.Consume("fresh", 0))
	require.Equal(t, 0, tb.Len(), "zero cost must not create a bucket")

	require.True(t, tb.Consume("k", 2))
	require.False(t, tb.Check("k", 1))
	require.True(t, tb.Check("k", 0))
	require.True(t, tb.Consume("k", -1))
	require.Zero(t, tb.RetryAfter("k", 0))
	require.False(t, tb.Consume("k", 1), "negative cost must not add tokens")
}

func TestKeysAreIndependent(t *testing.T) {
	tb, _ := newTestBucket(t, 1, time.Minute)

	require.True(t, tb.Consume("a", 1))
	require.False(t, tb.Consume("a", 1))
	require.True(t, tb.Consume("b", 1))
}

func TestRetryAfter(t *testing.T) {
	tb, clock := newTestBucket(t, 2, 10*time.Second)

	require.Zero(t, tb.RetryAfter("k", 1))
	require.True(t, tb.Consume("k", 2))
	require.Equal(t, 10*time.Second, tb.RetryAfter("k", 1))

	clock.Advance(4 * time.Second)
	require.Equal(t, 6*time.Second, tb.RetryAfter("k", 1))
	require.Equal(t, 16*time.Second, tb.RetryAfter("k", 2))
}

func TestConcurrentConsumeNeverOverspends(t *testing.T) {
	const (
		capacity = 5
		workers  = 64
	)
	tb, _ := newTestBucket(t, capacity, time.Hour)

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
		start   = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if tb.Consume("203.0.113.9", 1) {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, int64(capacity), granted.Load())
}

func TestConcurrentConsumeRacingForLastToken(t *testing.T) {
	tb, _ := newTestBucket(t, 3, time.Hour)
	require.True(t, tb.Consume("k", 2))

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tb.Consume("k", 1) {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), granted.Load())
}

func TestCleanupKeepsPartiallyConsumedBuckets(t *testing.T) {
	tb, clock := newTestBucket(t, 3, time.Minute)

	require.True(t, tb.Consume("partial", 1))
	require.True(t, tb.Consume("drained", 3))
	require.Equal(t, 2, tb.Len())

	require.Zero(t, tb.Cleanup())
	require.Equal(t, 2, tb.Len())

	clock.Advance(time.Minute)
	require.Equal(t, 1, tb.Cleanup(), "the bucket missing one token is now full")
	require.Equal(t, 1, tb.Len())
	require.False(t, tb.Check("drained", 2), "drained bucket state must survive cleanup")

	clock.Advance(2 * time.Minute)
	require.Equal(t, 1, tb.Cleanup())
	require.Zero(t, tb.Len())
	require.True(t, tb.Check("drained", 3))
}
