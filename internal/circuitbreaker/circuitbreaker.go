package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreaker counts consecutive failures. Reaching the threshold opens it for
// resetTimeout, after which a single trial call decides between closing and reopening.
type CircuitBreaker struct {
	mu            sync.Mutex
	state         State
	failures      int
	lastFailureAt time.Time

	threshold     int
	resetTimeout  time.Duration
	halfOpenTrial bool

	now           func() time.Time
	onStateChange func(from, to State)
}

type Option func(*CircuitBreaker)

func WithClock(now func() time.Time) Option {
	return func(b *CircuitBreaker) {
		b.now = now
	}
}

// WithOnStateChange registers fn to be called after every transition.
// fn runs outside the breaker lock.
func WithOnStateChange(fn func(from, to State)) Option {
	return func(b *CircuitBreaker) {
		b.onStateChange = fn
	}
}

func New(threshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}

	b := &CircuitBreaker{
		state:         Closed,
		failures:      0,
		threshold:     threshold,
		resetTimeout:  resetTimeout,
		halfOpenTrial: false,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Allow reports whether a call may proceed. A true result in the half-open
// state reserves the single trial; the caller must report its outcome.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()

	from := b.state
	allowed := false

	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailureAt) >= b.resetTimeout {
			b.state = HalfOpen
			b.halfOpenTrial = true
			allowed = true
		}
	case HalfOpen:
		if !b.halfOpenTrial {
			b.halfOpenTrial = true
			allowed = true
		}
	default:
		allowed = true
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from, to)

	return allowed
}

func (b *CircuitBreaker) OnFailure() {
	b.mu.Lock()

	from := b.state
	b.lastFailureAt = b.now()

	switch b.state {
	case HalfOpen:
		b.state = Open
		b.failures = b.threshold
		b.halfOpenTrial = false
	case Closed:
		b.failures++

		if b.failures >= b.threshold {
			b.state = Open
		}
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *CircuitBreaker) OnSuccess() {
	b.mu.Lock()

	from := b.state

	switch b.state {
	case HalfOpen:
		b.state = Closed
		b.failures = 0
		b.halfOpenTrial = false
	case Closed:
		b.failures = 0
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

// OnCancel reports a call abandoned by its caller. It does not count as an
// outcome; a half-open trial slot is handed back for the next caller.
func (b *CircuitBreaker) OnCancel() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == HalfOpen {
		b.halfOpenTrial = false
	}
}

func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

func (b *CircuitBreaker) notify(from, to State) {
	if from != to && b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
