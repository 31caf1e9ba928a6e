package cache

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.now = f.now.Add(d)
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)}
}

func TestCache_HitBeforeExpiry(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))

	c.Put("chart:AAPL", "payload", 10*time.Minute)
	clock.Advance(10*time.Minute - time.Nanosecond)

	v, ok := c.Get("chart:AAPL")
	require.True(t, ok)
	assert.Equal(t, "payload", v)
}

func TestCache_MissAtAndAfterExpiry(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))

	c.Put("quote:AAPL", 1, time.Second)
	clock.Advance(time.Second)

	_, ok := c.Get("quote:AAPL")
	assert.False(t, ok, "lookup at expiresAt must miss")
	assert.Equal(t, 0, c.Len(), "expired entry must be evicted lazily")
}

func TestCache_PutOverwrites(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))

	c.Put("k", "old", time.Second)
	c.Put("k", "new", time.Minute)
	clock.Advance(2 * time.Second)

	v, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestCache_NonPositiveTTLIsIgnored(t *testing.T) {
	c := New()

	c.Put("k", "v", 0)
	c.Put("k2", "v", -time.Second)

	assert.Equal(t, 0, c.Len())
}

func TestCache_MaxEntriesEvictsClosestToExpiry(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now), WithMaxEntries(2))

	c.Put("short", 1, time.Second)
	c.Put("long", 2, time.Hour)
	c.Put("third", 3, time.Minute)

	assert.Equal(t, 2, c.Len())

	_, ok := c.Get("short")
	assert.False(t, ok)

	_, ok = c.Get("long")
	assert.True(t, ok)

	_, ok = c.Get("third")
	assert.True(t, ok)
}

func TestCache_MaxEntriesPrefersExpired(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now), WithMaxEntries(2))

	c.Put("a", 1, time.Second)
	c.Put("b", 2, 2*time.Second)
	clock.Advance(3 * time.Second)
	c.Put("c", 3, time.Second)

	assert.Equal(t, 1, c.Len())
}

func TestCache_CleanupSweepsExpired(t *testing.T) {
	clock := newClock()
	c := New(WithClock(clock.Now))

	c.Put("a", 1, time.Second)
	c.Put("b", 2, time.Hour)
	clock.Advance(time.Minute)

	c.cleanup()

	assert.Equal(t, 1, c.Len())
}

func TestCache_JanitorStartStop(t *testing.T) {
	c := New(WithCleanupInterval(5 * time.Millisecond))

	require.NoError(t, c.Start())
	require.NoError(t, c.Start())

	c.Put("a", 1, time.Millisecond)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New()

	var wg sync.WaitGroup

	for i := range 16 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for j := range 200 {
				key := fmt.Sprintf("k%d", j%8)
				c.Put(key, [2]int{i, j}, time.Minute)

				if v, ok := c.Get(key); ok {
					_, isPair := v.([2]int)
					assert.True(t, isPair)
				}
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 8, c.Len())
}
