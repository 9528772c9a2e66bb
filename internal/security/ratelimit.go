package security

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// Rate limit kinds.
const (
	// KindQuery limits suggestion queries per session.
	KindQuery = "query"

	// KindSession limits session starts across all clients.
	KindSession = "session"

	// KindAuth limits admin authentication attempts per client address.
	KindAuth = "auth"
)

// RateLimitConfig holds configurable rate limits. Zero values take the
// defaults; negative values disable the limit.
type RateLimitConfig struct {
	QueriesPerMin  int `yaml:"queries_per_min"`
	SessionsPerMin int `yaml:"sessions_per_min"`
	AuthPerMin     int `yaml:"auth_per_min"`

	// MaxSessions caps the number of registered sessions. Zero means no cap.
	MaxSessions int `yaml:"max_sessions"`
}

// rateLimitConfigDefaults returns a config with sensible defaults.
func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		QueriesPerMin:  60,
		SessionsPerMin: 120,
		AuthPerMin:     30,
	}
}

// ServiceRateLimiter is the AppContext service holding the shared
// *RateLimiter.
const ServiceRateLimiter = "security.ratelimiter"

// RateLimiter enforces per-key token buckets. Each (kind, key) pair gets
// its own golang.org/x/time/rate limiter whose burst equals the
// per-minute limit.
type RateLimiter struct {
	mu       sync.Mutex
	config   RateLimitConfig
	perMin   map[string]int
	limiters map[string]*limiterEntry
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	if cfg.QueriesPerMin == 0 {
		cfg.QueriesPerMin = defaults.QueriesPerMin
	}
	if cfg.SessionsPerMin == 0 {
		cfg.SessionsPerMin = defaults.SessionsPerMin
	}
	if cfg.AuthPerMin == 0 {
		cfg.AuthPerMin = defaults.AuthPerMin
	}

	return &RateLimiter{
		config: cfg,
		perMin: map[string]int{
			KindQuery:   cfg.QueriesPerMin,
			KindSession: cfg.SessionsPerMin,
			KindAuth:    cfg.AuthPerMin,
		},
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow records one event of kind for key. It returns ErrRateLimited when
// the bucket is empty. Unknown or disabled kinds are always allowed.
func (rl *RateLimiter) Allow(kind, key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	n, ok := rl.perMin[kind]
	if !ok || n < 0 {
		return nil
	}

	now := rl.now()
	id := kind + "\x00" + key
	e, ok := rl.limiters[id]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)}
		rl.limiters[id] = e
	}
	e.lastSeen = now

	if !e.limiter.AllowN(now, 1) {
		return ErrRateLimited
	}
	return nil
}

// MaxSessions returns the configured cap on registered sessions, 0 when
// unlimited.
func (rl *RateLimiter) MaxSessions() int {
	return rl.config.MaxSessions
}

// Sweep drops limiters unused for longer than idle and returns how many
// were removed. A dropped limiter restarts with a full bucket.
func (rl *RateLimiter) Sweep(idle time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-idle)
	removed := 0
	for id, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked limiters.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}
