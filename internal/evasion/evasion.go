// Package evasion owns the outbound client identity and rotates it when the
// upstream signals rate limiting.
package evasion

import (
	"math/rand/v2"
	"strings"
	"sync/atomic"
)

// DefaultUserAgents is the built-in identity pool.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4_1) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.2478.51",
}

// Strategy holds the current user agent. Rotations may race; any pool member is
// an acceptable outcome since identities are interchangeable.
type Strategy struct {
	pool    []string
	current atomic.Pointer[string]
	pick    func(n int) int
}

type Option func(*Strategy)

// WithPicker replaces the random index source, for tests.
func WithPicker(pick func(n int) int) Option {
	return func(s *Strategy) {
		s.pick = pick
	}
}

// New builds a strategy over pool, trimming entries and dropping blank and duplicate ones.
// An empty pool falls back to DefaultUserAgents.
func New(pool []string, opts ...Option) *Strategy {
	s := &Strategy{
		pool: dedupe(pool),
		pick: rand.IntN,
	}

	if len(s.pool) == 0 {
		s.pool = dedupe(DefaultUserAgents)
	}

	for _, opt := range opts {
		opt(s)
	}

	first := s.pool[s.pick(len(s.pool))]
	s.current.Store(&first)

	return s
}

// Current returns the identity to send on the next request.
func (s *Strategy) Current() string {
	return *s.current.Load()
}

// Rotate switches to a pool member different from the current one and returns it.
// With a single-member pool the identity cannot change.
func (s *Strategy) Rotate() string {
	cur := s.Current()

	if len(s.pool) == 1 {
		return cur
	}

	candidates := make([]string, 0, len(s.pool)-1)
	for _, ua := range s.pool {
		if ua != cur {
			candidates = append(candidates, ua)
		}
	}

	next := candidates[s.pick(len(candidates))]
	s.current.Store(&next)

	return next
}

func dedupe(pool []string) []string {
	seen := make(map[string]struct{}, len(pool))
	out := make([]string, 0, len(pool))

	for _, ua := range pool {
		ua = strings.TrimSpace(ua)
		if ua == "" {
			continue
		}

		if _, ok := seen[ua]; ok {
			continue
		}

		seen[ua] = struct{}{}
		out = append(out, ua)
	}

	return out
}
