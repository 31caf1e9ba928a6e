// Package backoff computes retry delays: base * 2^retry plus a bounded random jitter.
package backoff

import (
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const (
	maxShift    = 62
	maxDuration = time.Duration(math.MaxInt64)
)

type Policy struct {
	Base      time.Duration
	MaxJitter time.Duration
	Max       time.Duration // Zero means uncapped.

	jitter func(n int64) int64
}

func New(base, maxJitter, maxDelay time.Duration) Policy {
	return Policy{
		Base:      base,
		MaxJitter: maxJitter,
		Max:       maxDelay,
	}
}

// Delay returns the wait before the given retry, counted from 1.
func (p Policy) Delay(retry int) time.Duration {
	shift := retry
	if shift < 0 {
		shift = 0
	}

	if shift > maxShift {
		shift = maxShift
	}

	delay := maxDuration
	if p.Base <= maxDuration>>shift {
		delay = p.Base << shift
	}

	if p.MaxJitter > 0 && delay < maxDuration-p.MaxJitter {
		delay += time.Duration(p.randInt64N(int64(p.MaxJitter)))
	}

	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}

	return delay
}

// WithRetryAfter raises delay to the server-requested wait, still bounded by Max.
func (p Policy) WithRetryAfter(delay, retryAfter time.Duration) time.Duration {
	if retryAfter > delay {
		delay = retryAfter
	}

	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}

	return delay
}

func (p Policy) randInt64N(n int64) int64 {
	if p.jitter != nil {
		return p.jitter(n)
	}

	return rand.Int64N(n)
}

// ParseRetryAfter reads a Retry-After header given either in seconds or as an HTTP date.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0, false
		}

		return time.Duration(secs) * time.Second, true
	}

	at, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}

	d := at.Sub(now)
	if d < 0 {
		d = 0
	}

	return d, true
}
