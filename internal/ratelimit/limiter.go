// Package ratelimit implements the process-wide gates used to throttle
// login attempts and gift-accept calls across every bot (spec §4.1).
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Gate serves strictly one caller at a time with a configurable
// post-release delay: Acquire blocks while the gate is held by another
// caller; once granted, the caller performs its sensitive operation and
// calls Release, which is held internally until exactly delay has
// elapsed since the acquire succeeded (not since Release was called) —
// so a caller that does fast work still pays the full cooldown before
// the next one is admitted.
//
// A Gate cannot fail; it can only make a caller wait, including a
// cancellable wait via ctx.
type Gate struct {
	delay time.Duration
	mu    sync.Mutex
}

// NewGate returns a gate with the given post-release delay.
func NewGate(delay time.Duration) *Gate {
	return &Gate{delay: delay}
}

// Acquire blocks until the gate is free or ctx is cancelled. On success
// it returns a release function that the caller must invoke exactly
// once. Cancellation of a waiting Acquire leaves the gate untouched.
func (g *Gate) Acquire(ctx context.Context) (release func(), err error) {
	acquired := make(chan struct{})
	go func() {
		g.mu.Lock()
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-ctx.Done():
		// The goroutine above may still be blocked on g.mu.Lock and
		// will acquire it later; drain it asynchronously so this Gate
		// is not left permanently held by an abandoned waiter.
		go func() {
			<-acquired
			g.mu.Unlock()
		}()
		return nil, ctx.Err()
	}

	grantedAt := time.Now()
	var once sync.Once
	release = func() {
		once.Do(func() {
			remaining := g.delay - time.Since(grantedAt)
			if remaining > 0 {
				time.Sleep(remaining)
			}
			g.mu.Unlock()
		})
	}
	return release, nil
}
