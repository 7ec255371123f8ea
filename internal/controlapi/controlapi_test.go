package controlapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardfarmd/internal/bot"
	"cardfarmd/internal/botdb"
	"cardfarmd/internal/supervisor"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	store, err := botdb.Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	sup := supervisor.New(store)
	_, err = sup.Build("alice", bot.Config{Name: "alice", MasterID: 1, OwnerID: 1}, bot.Deps{})
	require.NoError(t, err)

	s := New(sup, []byte("test-secret"), "1.0.0")
	token, err := s.IssueOperatorToken(time.Hour)
	require.NoError(t, err)
	return s, token
}

func TestControlAPI_StatusRequiresToken(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestControlAPI_StatusWithBearerToken(t *testing.T) {
	s, token := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "cardfarmd")
}

func TestControlAPI_StatusWithQueryToken(t *testing.T) {
	s, token := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/status?token="+token, nil)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestControlAPI_UnknownBotReturns404(t *testing.T) {
	s, token := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/bots/nobody/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestControlAPI_KnownBotStatusReturnsOK(t *testing.T) {
	s, token := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/bots/alice/status", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestControlAPI_ExitSignalsSupervisor(t *testing.T) {
	s, token := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/exit", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-s.sup.ExitRequested():
	default:
		t.Fatal("expected ExitRequested to be closed")
	}
}

func TestControlAPI_RejectsExpiredToken(t *testing.T) {
	s, _ := newTestServer(t)
	expired, err := s.IssueOperatorToken(-time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer "+expired)
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
