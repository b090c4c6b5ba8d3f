package security

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of a quota check. RetryAfter is zero when the
// request was allowed.
type Decision struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type quotaWindow struct {
	count   int
	resetAt time.Time
}

// QuotaLimiter gates all calls to the tax authority with a fixed window per
// caller identity. Counters live in process memory only; a background sweep
// drops expired windows so the map stays bounded.
type QuotaLimiter struct {
	mu      sync.Mutex
	windows map[string]*quotaWindow
	window  time.Duration
	quota   int
	stop    chan struct{}
}

func CreateQuotaLimiter(window time.Duration, quota int) *QuotaLimiter {
	l := &QuotaLimiter{
		windows: make(map[string]*quotaWindow),
		window:  window,
		quota:   quota,
		stop:    make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Check counts one request against the identifier's current window. A new
// window is created lazily on first use after expiry.
func (l *QuotaLimiter) Check(identifier string) Decision {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[identifier]
	if !ok || !now.Before(w.resetAt) {
		w = &quotaWindow{resetAt: now.Add(l.window)}
		l.windows[identifier] = w
	}

	if w.count >= l.quota {
		return Decision{
			Allowed:    false,
			Remaining:  0,
			ResetAt:    w.resetAt,
			RetryAfter: w.resetAt.Sub(now),
		}
	}

	w.count++
	return Decision{
		Allowed:   true,
		Remaining: l.quota - w.count,
		ResetAt:   w.resetAt,
	}
}

func (l *QuotaLimiter) sweep() {
	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now()
			l.mu.Lock()
			for id, w := range l.windows {
				if !now.Before(w.resetAt) {
					delete(l.windows, id)
				}
			}
			l.mu.Unlock()
		case <-l.stop:
			return
		}
	}
}

func (l *QuotaLimiter) Close() {
	close(l.stop)
}

// RateLimiter and TieredRateLimiter throttle the platform's own API surface
// per caller; the upstream quota gate above is a separate concern.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	cleanup  *time.Timer
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

func CreateRateLimiter() *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
	}
	rl.startCleanup()
	return rl
}

func (rl *RateLimiter) Allow(key string, config RateLimitConfig) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
		rl.limiters[key] = limiter
	}

	return limiter.Allow()
}

func (rl *RateLimiter) Wait(ctx context.Context, key string, config RateLimitConfig) error {
	rl.mu.Lock()
	limiter, exists := rl.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
		rl.limiters[key] = limiter
	}
	rl.mu.Unlock()

	return limiter.Wait(ctx)
}

func (rl *RateLimiter) startCleanup() {
	rl.cleanup = time.AfterFunc(5*time.Minute, func() {
		rl.mu.Lock()
		defer rl.mu.Unlock()

		now := time.Now()
		for key, limiter := range rl.limiters {
			if limiter.TokensAt(now) == float64(limiter.Limit()) {
				delete(rl.limiters, key)
			}
		}

		rl.startCleanup()
	})
}

func (rl *RateLimiter) Close() {
	if rl.cleanup != nil {
		rl.cleanup.Stop()
	}
}

type TieredRateLimiter struct {
	tiers map[string]RateLimitConfig
	rl    *RateLimiter
}

func CreateTieredRateLimiter(tiers map[string]RateLimitConfig) *TieredRateLimiter {
	return &TieredRateLimiter{
		tiers: tiers,
		rl:    CreateRateLimiter(),
	}
}

func (trl *TieredRateLimiter) Allow(key, tier string) bool {
	config, exists := trl.tiers[tier]
	if !exists {
		config = trl.tiers["default"]
	}

	return trl.rl.Allow(key, config)
}

func (trl *TieredRateLimiter) Close() {
	trl.rl.Close()
}
