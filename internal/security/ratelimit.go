package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds configurable in-process request limits.
// These protect the gateway itself; per-tool hourly limits are enforced
// separately against the persisted invocation history.
type RateLimitConfig struct {
	MessagesPerMin     int `yaml:"messages_per_min"`
	AuthAttemptsPerMin int `yaml:"auth_attempts_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		MessagesPerMin:     120,
		AuthAttemptsPerMin: 30,
	}
}

// RateLimiter implements sliding-window rate limiting for request kinds.
// Each bucket tracks timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
// Zero-value fields are replaced with defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.MessagesPerMin <= 0 {
		cfg.MessagesPerMin = defaults.MessagesPerMin
	}
	if cfg.AuthAttemptsPerMin <= 0 {
		cfg.AuthAttemptsPerMin = defaults.AuthAttemptsPerMin
	}

	return &RateLimiter{
		now: time.Now,
		buckets: map[string]*bucket{
			"message": {window: time.Minute, limit: cfg.MessagesPerMin},
			"auth":    {window: time.Minute, limit: cfg.AuthAttemptsPerMin},
		},
	}
}

// Allow checks whether an event of the given kind is allowed.
// Returns nil if allowed, ErrRateLimited if the limit is exceeded.
// kind must be one of: "message", "auth".
func (rl *RateLimiter) Allow(kind string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		// Unknown kind = no limit configured.
		return nil
	}

	now := rl.now()
	b.evict(now)

	if len(b.events) >= b.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// evict removes events outside the sliding window.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
