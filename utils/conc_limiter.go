package utils

import (
	"sync"

	"golang.org/x/net/context"
)

// ConcLimiter bounds the number of goroutines doing work at once.
type ConcLimiter struct {
	*sync.WaitGroup
	Pool chan struct{}
}

// IncreaseContext blocks until a slot is free or ctx is done.
func (c *ConcLimiter) IncreaseContext(ctx context.Context) error {
	select {
	case c.Pool <- struct{}{}:
		c.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *ConcLimiter) Decrease() {
	select {
	case <-c.Pool:
		c.Done()
	default:
	}
}

func NewConcLimiter(cLevel int) *ConcLimiter {
	if cLevel < 1 {
		cLevel = 1
	}
	var wg sync.WaitGroup
	return &ConcLimiter{&wg, make(chan struct{}, cLevel)}
}
