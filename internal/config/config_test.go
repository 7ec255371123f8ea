package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDaemon_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadDaemon(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, DefaultDaemon().Listen, cfg.Listen)
}

func TestLoadDaemon_OverridesDefaultsFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "daemon.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"listen":"127.0.0.1:9000"}`), 0o644))

	cfg, err := LoadDaemon(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, DefaultDaemon().JWTSecret, cfg.JWTSecret)
}

func TestLoadBotConfigs_MissingDirReturnsEmptyMap(t *testing.T) {
	bots, err := LoadBotConfigs(filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Empty(t, bots)
}

func TestLoadBotConfigs_ParsesFieldsAndDefaultsNameFromFilename(t *testing.T) {
	dir := t.TempDir()
	body := `{
		"start_on_launch": true,
		"login": "alice",
		"master_id": 1,
		"owner_id": 1,
		"card_drops_restricted": true,
		"farming_delay_sec": 300,
		"max_farming_time_hours": 2.5,
		"blacklist": [730, 440],
		"wishlist": [{"app_id": 620, "trading_type": "tag"}]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice.json"), []byte(body), 0o644))

	bots, err := LoadBotConfigs(dir)
	require.NoError(t, err)
	require.Len(t, bots, 1)

	cfg := bots["alice"]
	assert.True(t, cfg.StartOnLaunch)
	assert.Equal(t, "alice", cfg.Login)
	assert.True(t, cfg.CardDropsRestricted)
	assert.Equal(t, 5*time.Minute, cfg.FarmingDelay)
	assert.Equal(t, 150*time.Minute, cfg.MaxFarmingTime)
	assert.Len(t, cfg.Blacklist, 2)
	require.Len(t, cfg.Wishlist, 1)
	assert.Equal(t, int64(620), cfg.Wishlist[0].AppID)
}

func TestLoadBotConfigs_IgnoresNonJSONFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("hi"), 0o644))
	bots, err := LoadBotConfigs(dir)
	require.NoError(t, err)
	assert.Empty(t, bots)
}
