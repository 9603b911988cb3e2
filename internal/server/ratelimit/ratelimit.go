// Package ratelimit limits how often a client may start runs, using a token
// bucket per client.
package ratelimit

import (
	"sync"
	"time"
)

// tokenBucket allows capacity requests at once and refills at refillRate tokens per second.
type tokenBucket struct {
	capacity   int
	refillRate float64
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

func newTokenBucket(capacity int, refillRate float64, now time.Time) *tokenBucket {
	return &tokenBucket{
		capacity:   capacity,
		refillRate: refillRate,
		tokens:     float64(capacity), // Start with full bucket
		lastRefill: now,
		lastAccess: now,
	}
}

func (tb *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed.Seconds()*tb.refillRate)
	tb.lastRefill = now
}

// take consumes one token if available.
func (tb *tokenBucket) take(now time.Time) bool {
	tb.refill(now)
	tb.lastAccess = now
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// nextToken returns when the next token becomes available.
func (tb *tokenBucket) nextToken(now time.Time) time.Time {
	if tb.tokens >= 1.0 {
		return now
	}
	missing := 1.0 - tb.tokens
	return now.Add(time.Duration(missing / tb.refillRate * float64(time.Second)))
}

// Info contains information about rate limit status.
type Info struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetTime  time.Time
	RetryAfter time.Duration
}

// Config holds rate limiting configuration.
type Config struct {
	Limit  int           // requests per window
	Window time.Duration // refill window
	Burst  int           // bucket capacity; Limit when zero
	Idle   time.Duration // buckets unused for this long are dropped
}

// Limiter manages one token bucket per client.
type Limiter struct {
	cfg     Config
	now     func() time.Time
	mu      sync.Mutex
	buckets map[string]*tokenBucket

	stopOnce sync.Once
	stop     chan struct{}
}

// NewLimiter creates a Limiter and starts its cleanup loop. Call Stop to end it.
func NewLimiter(cfg Config) *Limiter {
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Limit
	}
	if cfg.Idle <= 0 {
		cfg.Idle = time.Hour
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
		stop:    make(chan struct{}),
	}
	go l.cleanupLoop(cfg.Idle)
	return l
}

// Allow consumes a token of clientID. A Limit of zero or less disables limiting.
func (l *Limiter) Allow(clientID string) (bool, Info) {
	if l.cfg.Limit <= 0 || l.cfg.Window <= 0 {
		return true, Info{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	bucket, ok := l.buckets[clientID]
	if !ok {
		bucket = newTokenBucket(l.cfg.Burst, float64(l.cfg.Limit)/l.cfg.Window.Seconds(), now)
		l.buckets[clientID] = bucket
	}

	allowed := bucket.take(now)
	reset := bucket.nextToken(now)
	info := Info{
		Allowed:   allowed,
		Limit:     l.cfg.Limit,
		Remaining: int(bucket.tokens),
		ResetTime: reset,
	}
	if !allowed {
		info.RetryAfter = reset.Sub(now)
	}
	return allowed, info
}

func (l *Limiter) cleanupLoop(idle time.Duration) {
	ticker := time.NewTicker(idle)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.cleanup(idle)
		case <-l.stop:
			return
		}
	}
}

// cleanup removes buckets that have not been used for idle.
func (l *Limiter) cleanup(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-idle)
	for key, b := range l.buckets {
		if b.lastAccess.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Stop ends the cleanup loop. It is safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.stop) })
}
