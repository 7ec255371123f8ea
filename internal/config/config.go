// Package config loads the daemon-level configuration and the
// per-account bot configuration files (spec §6's "Persisted state
// layout: Bot configuration ... freely editable, read once at
// startup"), grounded on the teacher's internal/config/config.go.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cardfarmd/internal/bot"
	"cardfarmd/internal/trading"
)

// Daemon is the process-wide configuration (spec §6's HTTP/IPC control
// surface needs a listen address and credentials; everything else is
// a default shared by every bot unless its own file overrides it).
type Daemon struct {
	Listen      string `json:"listen"`
	JWTSecret   string `json:"jwt_secret"`
	AdminUser   string `json:"admin_user"`
	AdminPass   string `json:"admin_pass"`
	PlatformURL string `json:"platform_url"`
	DBPath      string `json:"db_path"`
	BotsDir     string `json:"bots_dir"`

	DataDir string `json:"-"`
}

func DefaultDaemon() *Daemon {
	return &Daemon{
		Listen:      "0.0.0.0:8080",
		JWTSecret:   "change-me",
		AdminUser:   "admin",
		AdminPass:   "admin",
		PlatformURL: "wss://platform.example.com/ws",
		DBPath:      "data/cardfarmd.db",
		BotsDir:     "bots",
	}
}

// LoadDaemon reads path as JSON over the defaults; a missing file is
// not an error (spec: configuration is "freely editable", not
// mandatory to pre-exist).
func LoadDaemon(path string) (*Daemon, error) {
	cfg := DefaultDaemon()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// ResolvePaths makes relative paths absolute against baseDir and
// ensures the directories they imply exist.
func (d *Daemon) ResolvePaths(baseDir string) {
	d.DataDir = filepath.Join(baseDir, "data")
	if !filepath.IsAbs(d.DBPath) {
		d.DBPath = filepath.Join(baseDir, d.DBPath)
	}
	if !filepath.IsAbs(d.BotsDir) {
		d.BotsDir = filepath.Join(baseDir, d.BotsDir)
	}
	os.MkdirAll(d.DataDir, 0o755)
	os.MkdirAll(d.BotsDir, 0o755)
}

// Save writes d to path as indented JSON, so a first-boot run leaves
// behind an editable copy of the defaults.
func (d *Daemon) Save(path string) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// botFile is the on-disk JSON shape of one account's configuration
// (spec §3's Bot configuration table, plus SPEC_FULL.md's
// supplemented fields). Durations are given in seconds on disk, except
// max_farming_time_hours, which is in hours.
type botFile struct {
	Name                          string               `json:"name"`
	StartOnLaunch                 bool                 `json:"start_on_launch"`
	Login                         string               `json:"login"`
	Password                      string               `json:"password"`
	ParentalPin                   string               `json:"parental_pin"`
	MasterID                      uint64               `json:"master_id"`
	MasterClanID                  int64                `json:"master_clan_id"`
	OwnerID                       uint64               `json:"owner_id"`
	IsBotAccount                  bool                 `json:"is_bot_account"`
	FarmOffline                   bool                 `json:"farm_offline"`
	CardDropsRestricted           bool                 `json:"card_drops_restricted"`
	HandleOfflineMessages         bool                 `json:"handle_offline_messages"`
	AcceptGifts                   bool                 `json:"accept_gifts"`
	ForwardKeysToOtherBots        bool                 `json:"forward_keys_to_other_bots"`
	DistributeKeys                bool                 `json:"distribute_keys"`
	DismissInventoryNotifications bool                 `json:"dismiss_inventory_notifications"`
	AcceptConfirmationsPeriodSec  int                  `json:"accept_confirmations_period_sec"`
	SendTradePeriodSec            int                  `json:"send_trade_period_sec"`
	SendOnFarmingFinished         bool                 `json:"send_on_farming_finished"`
	ShutdownOnFarmingFinished     bool                 `json:"shutdown_on_farming_finished"`
	IdleGames                     []int64              `json:"idle_games"`
	IdleCustomName                string               `json:"idle_custom_name"`
	TradeToken                    string               `json:"trade_token"`
	Blacklist                     []int64              `json:"blacklist"`
	StatisticsEnabled             bool                 `json:"statistics_enabled"`
	StatisticsGroupID             int64                `json:"statistics_group_id"`
	FarmingDelaySec               int                  `json:"farming_delay_sec"`
	MaxFarmingTimeHours           float64              `json:"max_farming_time_hours"`
	Wishlist                      []wishlistFileEntry  `json:"wishlist"`
	LoggedInElsewhereRetrySec     int                  `json:"logged_in_elsewhere_retry_sec"`
}

type wishlistFileEntry struct {
	AppID       int64  `json:"app_id"`
	TradingType string `json:"trading_type"`
}

// LoadBotConfigs reads every *.json file in dir as one bot
// configuration (spec: "a per-account record (keyed text), freely
// editable, read once at startup").
func LoadBotConfigs(dir string) (map[string]bot.Config, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]bot.Config{}, nil
		}
		return nil, err
	}

	out := make(map[string]bot.Config)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		var bf botFile
		if err := json.Unmarshal(data, &bf); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		cfg := bf.toBotConfig()
		if cfg.Name == "" {
			cfg.Name = strings.TrimSuffix(e.Name(), ".json")
		}
		out[cfg.Name] = cfg
	}
	return out, nil
}

func (bf botFile) toBotConfig() bot.Config {
	blacklist := make(map[int64]struct{}, len(bf.Blacklist))
	for _, id := range bf.Blacklist {
		blacklist[id] = struct{}{}
	}
	wishlist := make([]trading.WishlistEntry, 0, len(bf.Wishlist))
	for _, w := range bf.Wishlist {
		wishlist = append(wishlist, trading.WishlistEntry{AppID: w.AppID, TradingType: w.TradingType})
	}
	farmingDelay := 10 * time.Minute
	if bf.FarmingDelaySec > 0 {
		farmingDelay = time.Duration(bf.FarmingDelaySec) * time.Second
	}
	maxFarmingTime := 10 * time.Hour
	if bf.MaxFarmingTimeHours > 0 {
		maxFarmingTime = time.Duration(bf.MaxFarmingTimeHours * float64(time.Hour))
	}
	return bot.Config{
		Name:                           bf.Name,
		StartOnLaunch:                  bf.StartOnLaunch,
		Login:                          bf.Login,
		Password:                       bf.Password,
		ParentalPin:                    bf.ParentalPin,
		MasterID:                       bf.MasterID,
		MasterClanID:                  bf.MasterClanID,
		OwnerID:                        bf.OwnerID,
		IsBotAccount:                   bf.IsBotAccount,
		FarmOffline:                    bf.FarmOffline,
		CardDropsRestricted:            bf.CardDropsRestricted,
		HandleOfflineMessages:          bf.HandleOfflineMessages,
		AcceptGifts:                    bf.AcceptGifts,
		ForwardKeysToOtherBots:         bf.ForwardKeysToOtherBots,
		DistributeKeys:                 bf.DistributeKeys,
		DismissInventoryNotifications:  bf.DismissInventoryNotifications,
		AcceptConfirmationsPeriod:      time.Duration(bf.AcceptConfirmationsPeriodSec) * time.Second,
		SendTradePeriod:                time.Duration(bf.SendTradePeriodSec) * time.Second,
		SendOnFarmingFinished:          bf.SendOnFarmingFinished,
		ShutdownOnFarmingFinished:      bf.ShutdownOnFarmingFinished,
		IdleGames:                      bf.IdleGames,
		IdleCustomName:                 bf.IdleCustomName,
		TradeToken:                     bf.TradeToken,
		Blacklist:                      blacklist,
		StatisticsEnabled:              bf.StatisticsEnabled,
		StatisticsGroupID:              bf.StatisticsGroupID,
		FarmingDelay:                   farmingDelay,
		MaxFarmingTime:                 maxFarmingTime,
		Wishlist:                       wishlist,
		LoggedInElsewhereRetryDelay:    time.Duration(bf.LoggedInElsewhereRetrySec) * time.Second,
	}
}
