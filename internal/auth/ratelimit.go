package auth

import (
	"sync"
	"time"
)

// RateLimiter counts failed sign-in attempts per client IP and login name.
// It complements the per-account lockout in Service, which cannot tell
// a guessing client apart from the account owner.
type RateLimiter struct {
	mu          sync.Mutex
	attempts    map[string]*attemptRecord
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
	stop        chan struct{}
	stopOnce    sync.Once
}

type attemptRecord struct {
	count       int
	windowStart time.Time
	lockedUntil time.Time
}

type RateLimitConfig struct {
	MaxAttempts     int
	WindowDuration  time.Duration
	LockoutDuration time.Duration
	CleanupInterval time.Duration
}

func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.WindowDuration <= 0 {
		cfg.WindowDuration = 15 * time.Minute
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = 30 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}

	rl := &RateLimiter{
		attempts:    make(map[string]*attemptRecord),
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.WindowDuration,
		lockout:     cfg.LockoutDuration,
		now:         time.Now,
		stop:        make(chan struct{}),
	}
	go rl.cleanupLoop(cfg.CleanupInterval)
	return rl
}

func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func limiterKey(ip, login string) string {
	return ip + "|" + login
}

// Allow reports whether another attempt may be made and, if not, how long
// the caller has to wait.
func (rl *RateLimiter) Allow(ip, login string) (bool, time.Duration) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[limiterKey(ip, login)]
	if !ok {
		return true, 0
	}
	if now.Before(rec.lockedUntil) {
		return false, rec.lockedUntil.Sub(now)
	}
	if now.Sub(rec.windowStart) > rl.window || rec.count < rl.maxAttempts {
		return true, 0
	}
	return false, rl.lockout
}

// RecordFailure counts a failed attempt and reports whether the pair is
// now locked out.
func (rl *RateLimiter) RecordFailure(ip, login string) (bool, time.Duration) {
	now := rl.now()
	key := limiterKey(ip, login)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rec, ok := rl.attempts[key]
	if !ok || now.Sub(rec.windowStart) > rl.window {
		rec = &attemptRecord{windowStart: now}
		rl.attempts[key] = rec
	}
	rec.count++
	if rec.count >= rl.maxAttempts {
		rec.lockedUntil = now.Add(rl.lockout)
		return true, rl.lockout
	}
	return false, 0
}

func (rl *RateLimiter) RecordSuccess(ip, login string) {
	rl.mu.Lock()
	delete(rl.attempts, limiterKey(ip, login))
	rl.mu.Unlock()
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

func (rl *RateLimiter) cleanup() {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, rec := range rl.attempts {
		if now.Sub(rec.windowStart) > rl.window && !now.Before(rec.lockedUntil) {
			delete(rl.attempts, key)
		}
	}
}
