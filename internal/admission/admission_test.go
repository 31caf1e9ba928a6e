package admission_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/starwalkn/quotron/internal/admission"
)

var _ = Describe("Controller", func() {
	It("falls back to the default limit", func() {
		Expect(admission.New(0).Limit()).To(Equal(int64(50)))
	})

	It("never admits more than the limit", func() {
		const (
			limit   = 3
			callers = 20
		)

		c := admission.New(limit)

		var (
			active  atomic.Int64
			maxSeen atomic.Int64
			wg      sync.WaitGroup
		)

		for range callers {
			wg.Add(1)

			go func() {
				defer GinkgoRecover()
				defer wg.Done()

				tok, err := c.Acquire(context.Background())
				Expect(err).NotTo(HaveOccurred())
				defer tok.Release()

				n := active.Add(1)
				for {
					seen := maxSeen.Load()
					if n <= seen || maxSeen.CompareAndSwap(seen, n) {
						break
					}
				}

				time.Sleep(5 * time.Millisecond)
				active.Add(-1)
			}()
		}

		wg.Wait()

		Expect(maxSeen.Load()).To(BeNumerically("<=", limit))
		Expect(maxSeen.Load()).To(BeNumerically(">", 0))
		Expect(c.InFlight()).To(BeZero())
	})

	It("unblocks a waiting caller on cancellation without handing it a token", func() {
		c := admission.New(1)

		held, err := c.Acquire(context.Background())
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()

			tok, err := c.Acquire(ctx)
			Expect(tok).To(BeNil())
			done <- err
		}()

		Consistently(done, 20*time.Millisecond).ShouldNot(Receive())
		cancel()

		var acquireErr error
		Eventually(done).Should(Receive(&acquireErr))
		Expect(errors.Is(acquireErr, context.Canceled)).To(BeTrue())

		held.Release()
		Expect(c.InFlight()).To(BeZero())

		again, err := c.Acquire(context.Background())
		Expect(err).NotTo(HaveOccurred())
		again.Release()
	})

	It("tolerates repeated releases", func() {
		c := admission.New(1)

		tok, err := c.Acquire(context.Background())
		Expect(err).NotTo(HaveOccurred())

		tok.Release()
		tok.Release()

		Expect(c.InFlight()).To(BeZero())

		// A double release must not have freed a second slot.
		first, err := c.Acquire(context.Background())
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = c.Acquire(ctx)
		Expect(err).To(HaveOccurred())

		first.Release()
	})
})
