package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSleepOrSignal_TimerWins(t *testing.T) {
	ctx := context.Background()
	sig := NewResetSignal()
	start := time.Now()
	elapsed, woken := SleepOrSignal(ctx, Real(), 30*time.Millisecond, sig)
	require.True(t, woken)
	assert.GreaterOrEqual(t, elapsed, 25*time.Millisecond)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestSleepOrSignal_SignalWins(t *testing.T) {
	ctx := context.Background()
	sig := NewResetSignal()
	go func() {
		time.Sleep(5 * time.Millisecond)
		sig.Fire()
	}()
	elapsed, woken := SleepOrSignal(ctx, Real(), time.Hour, sig)
	require.True(t, woken)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestSleepOrSignal_ContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := NewResetSignal()
	cancel()
	_, woken := SleepOrSignal(ctx, Real(), time.Hour, sig)
	assert.False(t, woken)
}

func TestResetSignal_CoalescesBursts(t *testing.T) {
	sig := NewResetSignal()
	sig.Fire()
	sig.Fire()
	sig.Fire()
	select {
	case <-sig.C():
	default:
		t.Fatal("expected signal to be set")
	}
	sig.Reset()
	select {
	case <-sig.C():
		t.Fatal("expected signal to be cleared after reset")
	default:
	}
}

func TestGate_BoundsConcurrency(t *testing.T) {
	g := NewGate(2)
	require.NoError(t, g.Acquire(context.Background()))
	require.NoError(t, g.Acquire(context.Background()))
	assert.False(t, g.TryAcquire())
	g.Release()
	assert.True(t, g.TryAcquire())
}
