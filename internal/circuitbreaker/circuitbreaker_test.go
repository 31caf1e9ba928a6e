package circuitbreaker_test

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/starwalkn/quotron/internal/circuitbreaker"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

var _ = Describe("CircuitBreaker", func() {
	const (
		threshold     = 3
		breakDuration = 30 * time.Second
	)

	var (
		clk         *clock
		cb          *circuitbreaker.CircuitBreaker
		transitions []string
	)

	BeforeEach(func() {
		clk = &clock{now: time.Unix(1_700_000_000, 0)}
		transitions = nil

		cb = circuitbreaker.New(threshold, breakDuration,
			circuitbreaker.WithClock(clk.Now),
			circuitbreaker.WithOnStateChange(func(from, to circuitbreaker.State) {
				transitions = append(transitions, from.String()+"->"+to.String())
			}),
		)
	})

	failTimes := func(n int) {
		for range n {
			Expect(cb.Allow()).To(BeTrue())
			cb.OnFailure()
		}
	}

	It("starts closed", func() {
		Expect(cb.State()).To(Equal(circuitbreaker.Closed))
		Expect(cb.Allow()).To(BeTrue())
	})

	It("opens after the threshold of consecutive failures", func() {
		failTimes(threshold)

		Expect(cb.State()).To(Equal(circuitbreaker.Open))
		Expect(cb.Allow()).To(BeFalse())
		Expect(transitions).To(Equal([]string{"closed->open"}))
	})

	It("resets the failure count on success", func() {
		failTimes(threshold - 1)
		cb.OnSuccess()
		failTimes(threshold - 1)

		Expect(cb.State()).To(Equal(circuitbreaker.Closed))
	})

	It("stays open for the break duration", func() {
		failTimes(threshold)

		clk.Advance(breakDuration - time.Millisecond)
		Expect(cb.Allow()).To(BeFalse())
	})

	It("lets exactly one trial through once the break elapses", func() {
		failTimes(threshold)
		clk.Advance(breakDuration)

		var allowed atomic.Int32

		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)

			go func() {
				defer wg.Done()

				if cb.Allow() {
					allowed.Add(1)
				}
			}()
		}

		wg.Wait()

		Expect(allowed.Load()).To(Equal(int32(1)))
		Expect(cb.State()).To(Equal(circuitbreaker.HalfOpen))
	})

	It("closes when the trial succeeds", func() {
		failTimes(threshold)
		clk.Advance(breakDuration)

		Expect(cb.Allow()).To(BeTrue())
		cb.OnSuccess()

		Expect(cb.State()).To(Equal(circuitbreaker.Closed))
		Expect(transitions).To(Equal([]string{"closed->open", "open->half_open", "half_open->closed"}))

		// Counters were reset: a full threshold is needed to reopen.
		failTimes(threshold - 1)
		Expect(cb.State()).To(Equal(circuitbreaker.Closed))
	})

	It("reopens and restarts the timer when the trial fails", func() {
		failTimes(threshold)
		clk.Advance(breakDuration)

		Expect(cb.Allow()).To(BeTrue())
		cb.OnFailure()

		Expect(cb.State()).To(Equal(circuitbreaker.Open))

		clk.Advance(breakDuration / 2)
		Expect(cb.Allow()).To(BeFalse())

		clk.Advance(breakDuration / 2)
		Expect(cb.Allow()).To(BeTrue())
	})

	It("hands the trial back when the trial call is canceled", func() {
		failTimes(threshold)
		clk.Advance(breakDuration)

		Expect(cb.Allow()).To(BeTrue())
		Expect(cb.Allow()).To(BeFalse())

		cb.OnCancel()

		Expect(cb.State()).To(Equal(circuitbreaker.HalfOpen))
		Expect(cb.Allow()).To(BeTrue())
	})

	It("does not count cancellations while closed", func() {
		for range threshold * 2 {
			Expect(cb.Allow()).To(BeTrue())
			cb.OnCancel()
		}

		Expect(cb.State()).To(Equal(circuitbreaker.Closed))
	})
})
