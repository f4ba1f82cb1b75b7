// Package ratelimit provides per-key token bucket limiting for the local
// stand-in site.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config defines the rate limiting configuration.
type Config struct {
	RPS         float64       // Sustained requests per second per key
	Burst       int           // Burst size per key
	IdleTimeout time.Duration // Limiters unused this long are dropped
}

// DefaultConfig allows far more clicks than a replay makes, while stopping
// a runaway client loop.
var DefaultConfig = Config{
	RPS:         20,
	Burst:       40,
	IdleTimeout: 10 * time.Minute,
}

type entry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// RateLimiter manages one limiter per key. Idle limiters are swept on
// access, so no background goroutine is needed.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*entry
	config    Config
	lastSweep time.Time
	now       func() time.Time
}

// New creates a rate limiter with the given configuration.
func New(config Config) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*entry),
		config:   config,
		now:      time.Now,
	}
}

// Allow reports whether a request for key is within its limit.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.Limiter(key).Allow()
}

// Limiter returns the limiter for key, creating one if necessary.
func (rl *RateLimiter) Limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if rl.config.IdleTimeout > 0 && now.Sub(rl.lastSweep) >= rl.config.IdleTimeout {
		rl.sweepLocked(now)
	}

	e, ok := rl.limiters[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst)}
		rl.limiters[key] = e
	}
	e.lastUsed = now
	return e.limiter
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	cutoff := now.Add(-rl.config.IdleTimeout)
	for key, e := range rl.limiters {
		if e.lastUsed.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}
	rl.lastSweep = now
}

// Len returns the number of live limiters.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
