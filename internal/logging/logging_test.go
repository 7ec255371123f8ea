package logging

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_WritesJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := New("bot1", &buf)
	l.Infof("farm", "farming %d", 730)
	assert.Contains(t, buf.String(), `"bot":"bot1"`)
	assert.Contains(t, buf.String(), `"tag":"farm"`)
	assert.Contains(t, buf.String(), "farming 730")
}

func TestLogger_BroadcastsToSubscribers(t *testing.T) {
	var buf bytes.Buffer
	l := New("bot1", &buf)
	ch := l.Subscribe()
	defer l.Unsubscribe(ch)

	l.Warnf("trade", "no loot to send")

	select {
	case e := <-ch:
		assert.Equal(t, "bot1", e.Bot)
		assert.Equal(t, "warn", e.Level)
		assert.Equal(t, "no loot to send", e.Message)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast entry")
	}
}

func TestLogger_UnsubscribeClosesChannel(t *testing.T) {
	var buf bytes.Buffer
	l := New("bot1", &buf)
	ch := l.Subscribe()
	l.Unsubscribe(ch)

	_, ok := <-ch
	require.False(t, ok)
}

func TestLogger_PrintfUsesWarnLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New("bot1", &buf)
	l.Printf("disconnected: %v", "boom")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "disconnected: boom")
}
