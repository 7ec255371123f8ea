package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfarmd/internal/bot"
	"cardfarmd/internal/botdb"
)

func newTestStore(t *testing.T) *botdb.Store {
	t.Helper()
	store, err := botdb.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSupervisor_BuildRegistersAndLoadsPersistedRecord(t *testing.T) {
	store := newTestStore(t)
	sup := New(store)

	inst, err := sup.Build("alice", bot.Config{Name: "alice"}, bot.Deps{})
	require.NoError(t, err)
	assert.Equal(t, inst, sup.Get("alice"))
}

func TestSupervisor_OthersExcludesSelf(t *testing.T) {
	store := newTestStore(t)
	sup := New(store)

	_, err := sup.Build("alice", bot.Config{Name: "alice"}, bot.Deps{})
	require.NoError(t, err)
	_, err = sup.Build("bob", bot.Config{Name: "bob"}, bot.Deps{})
	require.NoError(t, err)

	others := sup.Others("alice")
	require.Len(t, others, 1)
	assert.Equal(t, "bob", others[0].Name())
}

func TestSupervisor_AllReturnsEveryBot(t *testing.T) {
	store := newTestStore(t)
	sup := New(store)
	sup.Build("alice", bot.Config{Name: "alice"}, bot.Deps{})
	sup.Build("bob", bot.Config{Name: "bob"}, bot.Deps{})

	assert.Len(t, sup.All(), 2)
}

func TestSupervisor_AnyRunningFalseBeforeStart(t *testing.T) {
	store := newTestStore(t)
	sup := New(store)
	sup.Build("alice", bot.Config{Name: "alice"}, bot.Deps{})

	assert.False(t, sup.AnyRunning())
}

func TestSupervisor_ExitProcessClosesChannelOnce(t *testing.T) {
	store := newTestStore(t)
	sup := New(store)

	sup.ExitProcess()
	sup.ExitProcess() // must not panic on double-close

	select {
	case <-sup.ExitRequested():
	default:
		t.Fatal("expected ExitRequested to be closed")
	}
}
