// Package ratelimit implements a fixed-window request limiter keyed by client.
package ratelimit

import (
	"sync"
	"time"
)

const (
	defaultLimit  = 60
	defaultWindow = 60 * time.Second
	cleanupEvery  = 10 * time.Second
)

type entry struct {
	count   int
	resetAt time.Time
}

type RateLimit struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	buckets map[string]*entry
	now     func() time.Time

	stopCh  chan struct{}
	started bool
	stopped bool
}

type Option func(*RateLimit)

func WithClock(now func() time.Time) Option {
	return func(rl *RateLimit) {
		rl.now = now
	}
}

// New allows limit requests per key in every window. Non-positive values fall back to 60 per minute.
func New(limit int, window time.Duration, opts ...Option) *RateLimit {
	if limit < 1 {
		limit = defaultLimit
	}

	if window <= 0 {
		window = defaultWindow
	}

	rl := &RateLimit{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*entry),
		now:     time.Now,
		stopCh:  make(chan struct{}),
	}

	for _, opt := range opts {
		opt(rl)
	}

	return rl
}

func (rl *RateLimit) Start() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.started || rl.stopped {
		return nil
	}

	rl.started = true

	go func() {
		ticker := time.NewTicker(cleanupEvery)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				rl.cleanup()
			case <-rl.stopCh:
				return
			}
		}
	}()

	return nil
}

func (rl *RateLimit) Stop() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.stopped {
		return nil
	}

	close(rl.stopCh)
	rl.stopped = true

	return nil
}

// Decision is the outcome of a single Take.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns how long a rejected caller should wait, rounded up to whole seconds.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return 0
	}

	if rounded := wait.Truncate(time.Second); rounded < wait {
		return rounded + time.Second
	}

	return wait
}

// Take counts one request against key and reports whether it fits in the current window.
func (rl *RateLimit) Take(key string) Decision {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	ent, ok := rl.buckets[key]
	if !ok || !now.Before(ent.resetAt) {
		ent = &entry{resetAt: now.Add(rl.window)}
		rl.buckets[key] = ent
	}

	d := Decision{
		Limit:   rl.limit,
		ResetAt: ent.resetAt,
	}

	if ent.count < rl.limit {
		ent.count++
		d.Allowed = true
	}

	d.Remaining = rl.limit - ent.count

	return d
}

func (rl *RateLimit) Allow(key string) bool {
	return rl.Take(key).Allowed
}

// Now exposes the limiter clock so callers can compute waits consistently.
func (rl *RateLimit) Now() time.Time {
	return rl.now()
}

func (rl *RateLimit) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	for key, ent := range rl.buckets {
		if !now.Before(ent.resetAt) {
			delete(rl.buckets, key)
		}
	}
}
