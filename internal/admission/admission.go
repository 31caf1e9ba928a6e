// Package admission bounds the number of upstream calls in flight.
package admission

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

const defaultMaxConcurrent = 50

type Controller struct {
	sem      *semaphore.Weighted
	limit    int64
	inFlight atomic.Int64
}

func New(maxConcurrent int64) *Controller {
	if maxConcurrent < 1 {
		maxConcurrent = defaultMaxConcurrent
	}

	return &Controller{
		sem:   semaphore.NewWeighted(maxConcurrent),
		limit: maxConcurrent,
	}
}

// Acquire blocks until a slot is free or ctx is done. On cancellation no
// slot is held and ctx.Err() is returned.
func (c *Controller) Acquire(ctx context.Context) (*Token, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	c.inFlight.Add(1)

	return &Token{controller: c}, nil
}

func (c *Controller) Limit() int64 {
	return c.limit
}

// InFlight returns the number of tokens currently held.
func (c *Controller) InFlight() int64 {
	return c.inFlight.Load()
}

// Token is one admitted upstream call. Release may be called any number of times.
type Token struct {
	controller *Controller
	once       sync.Once
}

func (t *Token) Release() {
	if t == nil {
		return
	}

	t.once.Do(func() {
		t.controller.inFlight.Add(-1)
		t.controller.sem.Release(1)
	})
}
