package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_SerializesCallers(t *testing.T) {
	g := NewGate(20 * time.Millisecond)
	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			release, err := g.Acquire(context.Background())
			require.NoError(t, err)
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			release()
		}(i)
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()
	assert.Len(t, order, 3)
}

func TestGate_DelayMeasuredFromAcquire(t *testing.T) {
	g := NewGate(50 * time.Millisecond)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	// Simulate the sensitive operation taking longer than the delay —
	// release should return immediately since the delay already elapsed.
	time.Sleep(60 * time.Millisecond)
	start := time.Now()
	release()
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestGate_CancelLeavesGateUsable(t *testing.T) {
	g := NewGate(0)
	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	release()

	release2, err := g.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}
