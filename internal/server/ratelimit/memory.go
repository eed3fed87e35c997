package ratelimit

import (
	"sync"
	"time"
)

// memoryLimiter is an in-memory token bucket limiter. Each key stores a
// token count and a timestamp, so space and time per operation are O(1)
// regardless of request rate.
type memoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]*tokenBucket
	config  Config

	cleanupT *time.Ticker
	stopCh   chan struct{}
}

// tokenBucket tracks the available tokens for one key. Tokens refill at
// a constant rate of Requests per Window.
type tokenBucket struct {
	tokens     float64
	lastUpdate time.Time
}

// NewMemoryLimiter creates a new in-memory token bucket limiter.
func NewMemoryLimiter(cfg Config) Limiter {
	l := &memoryLimiter{
		buckets: make(map[string]*tokenBucket),
		config:  cfg,
		stopCh:  make(chan struct{}),
	}

	// Idle buckets are dropped periodically so unique keys cannot grow
	// the map without bound.
	l.cleanupT = time.NewTicker(cfg.Window * 2)
	go l.cleanup()

	return l
}

// Allow checks if a request from the given key should be allowed.
func (l *memoryLimiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	capacity := float64(l.config.Requests)
	fillRate := capacity / l.config.Window.Seconds() // tokens per second

	b, exists := l.buckets[key]
	if !exists {
		// A fresh bucket starts full; this request consumes one token.
		l.buckets[key] = &tokenBucket{
			tokens:     capacity - 1,
			lastUpdate: now,
		}
		return true
	}

	elapsed := now.Sub(b.lastUpdate).Seconds()
	b.tokens = min(capacity, b.tokens+elapsed*fillRate)
	b.lastUpdate = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Reset clears the rate limit counter for the given key.
func (l *memoryLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

func (l *memoryLimiter) cleanup() {
	for {
		select {
		case <-l.cleanupT.C:
			l.cleanupStale()
		case <-l.stopCh:
			l.cleanupT.Stop()
			return
		}
	}
}

// cleanupStale removes buckets with no requests for two full windows.
// Such buckets are back at capacity, so dropping them loses nothing.
func (l *memoryLimiter) cleanupStale() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	staleThreshold := l.config.Window * 2

	for key, b := range l.buckets {
		if now.Sub(b.lastUpdate) > staleThreshold {
			delete(l.buckets, key)
		}
	}
}

// Stop stops the cleanup goroutine.
func (l *memoryLimiter) Stop() {
	close(l.stopCh)
}

var _ Stoppable = (*memoryLimiter)(nil)
