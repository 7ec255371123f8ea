package clock

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many callers may hold a resource concurrently. The
// Cards Farmer uses a one-slot Gate to serialize its Start preamble;
// its 32-app-id multi-play cap is a slice bound in complex.go, not a
// Gate.
type Gate struct {
	sem *semaphore.Weighted
	cap int64
}

// NewGate returns a gate that admits at most n concurrent holders.
func NewGate(n int) *Gate {
	if n < 1 {
		n = 1
	}
	return &Gate{sem: semaphore.NewWeighted(int64(n)), cap: int64(n)}
}

// Cap returns the configured concurrency limit.
func (g *Gate) Cap() int { return int(g.cap) }

// Acquire blocks until a slot is free or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	return g.sem.Acquire(ctx, 1)
}

// Release frees a previously acquired slot.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// TryAcquire acquires a slot without blocking, reporting whether it
// succeeded.
func (g *Gate) TryAcquire() bool {
	return g.sem.TryAcquire(1)
}
