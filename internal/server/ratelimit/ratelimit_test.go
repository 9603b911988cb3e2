package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestLimiter(t *testing.T, cfg Config) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	l := NewLimiter(cfg)
	l.now = clock.now
	t.Cleanup(l.Stop)
	return l, clock
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 6, Window: time.Hour, Burst: 2})

	for i := 0; i < 2; i++ {
		allowed, info := l.Allow("10.0.0.1")
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 6, info.Limit)
	}

	allowed, info := l.Allow("10.0.0.1")
	assert.False(t, allowed)
	assert.Equal(t, 0, info.Remaining)
	assert.InDelta(t, (10 * time.Minute).Seconds(), info.RetryAfter.Seconds(), 0.01, "6 per hour refills one token every 10 minutes")
}

func TestLimiter_Refill(t *testing.T) {
	l, clock := newTestLimiter(t, Config{Limit: 6, Window: time.Hour, Burst: 1})

	allowed, _ := l.Allow("a")
	require.True(t, allowed)
	allowed, _ = l.Allow("a")
	require.False(t, allowed)

	clock.advance(11 * time.Minute)
	allowed, _ = l.Allow("a")
	assert.True(t, allowed)
}

func TestLimiter_ClientsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 1, Window: time.Minute})

	allowed, _ := l.Allow("a")
	assert.True(t, allowed)
	allowed, _ = l.Allow("b")
	assert.True(t, allowed)
	allowed, _ = l.Allow("a")
	assert.False(t, allowed)
}

func TestLimiter_Disabled(t *testing.T) {
	l, _ := newTestLimiter(t, Config{})
	for i := 0; i < 100; i++ {
		allowed, _ := l.Allow("a")
		require.True(t, allowed)
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	l, clock := newTestLimiter(t, Config{Limit: 1, Window: time.Minute, Idle: time.Hour})

	l.Allow("a")
	clock.advance(30 * time.Minute)
	l.Allow("b")
	clock.advance(45 * time.Minute)

	l.cleanup(time.Hour)

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "a")
	assert.Contains(t, l.buckets, "b")
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	l, _ := newTestLimiter(t, Config{Limit: 50, Window: time.Hour})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow("shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}

func TestLimiter_StopTwice(t *testing.T) {
	l := NewLimiter(Config{Limit: 1, Window: time.Second})
	l.Stop()
	assert.NotPanics(t, l.Stop)
}
