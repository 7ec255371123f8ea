package botdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStore_RoundTripsRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "bots.db"))
	require.NoError(t, err)
	defer s.Close()

	rec := &Record{
		AccountID:  42,
		SessionKey: []byte("session-key-bytes"),
		SentryFile: []byte("sentry-file-contents"),
		SentryHash: []byte{0x01, 0x02, 0x03},
		MobileAuth: &MobileAuth{
			SharedSecret:   []byte("shared"),
			IdentitySecret: []byte("identity"),
			DeviceID:       "android:deadbeef",
			WebCookies:     map[string]string{"sessionid": "abc"},
		},
	}
	require.NoError(t, s.Save(rec))

	got, err := s.Load(42)
	require.NoError(t, err)
	require.Equal(t, rec.AccountID, got.AccountID)
	require.Equal(t, rec.SessionKey, got.SessionKey)
	require.Equal(t, rec.SentryFile, got.SentryFile)
	require.Equal(t, rec.SentryHash, got.SentryHash)
	require.True(t, got.MobileAuth.Enrolled())
	require.Equal(t, rec.MobileAuth.DeviceID, got.MobileAuth.DeviceID)
	require.Equal(t, "abc", got.MobileAuth.WebCookies["sessionid"])
}

func TestStore_LoadMissingReturnsEmptyRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "bots.db"))
	require.NoError(t, err)
	defer s.Close()

	rec, err := s.Load(999)
	require.NoError(t, err)
	require.Equal(t, int64(999), rec.AccountID)
	require.False(t, rec.MobileAuth.Enrolled())
}

func TestStore_SaveOverwritesExistingRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "bots.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(&Record{AccountID: 1, SessionKey: []byte("first")}))
	require.NoError(t, s.Save(&Record{AccountID: 1, SessionKey: []byte("second")}))

	got, err := s.Load(1)
	require.NoError(t, err)
	require.Equal(t, []byte("second"), got.SessionKey)
}

func TestStore_GlobalRecordRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "bots.db"))
	require.NoError(t, err)
	defer s.Close()

	g, err := s.LoadGlobal()
	require.NoError(t, err)
	require.Equal(t, int32(0), g.CellID)

	require.NoError(t, s.SaveGlobal(&GlobalRecord{CellID: 7}))
	g, err = s.LoadGlobal()
	require.NoError(t, err)
	require.Equal(t, int32(7), g.CellID)
}

func TestStore_DeleteRemovesRecord(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "bots.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Save(&Record{AccountID: 5, SessionKey: []byte("x")}))
	require.NoError(t, s.Delete(5))

	got, err := s.Load(5)
	require.NoError(t, err)
	require.Empty(t, got.SessionKey)
}
