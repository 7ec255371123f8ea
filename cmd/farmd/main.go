// Command farmd is the daemon process: it loads every configured
// account, drives its connection lifecycle through internal/bot, and
// exposes the thin HTTP control surface from internal/controlapi
// (spec §6).
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"cardfarmd/internal/bot"
	"cardfarmd/internal/botdb"
	"cardfarmd/internal/config"
	"cardfarmd/internal/controlapi"
	"cardfarmd/internal/logging"
	"cardfarmd/internal/ratelimit"
	"cardfarmd/internal/supervisor"
)

const version = "1.0.0"

func main() {
	baseDir, err := os.Getwd()
	if err != nil {
		fmt.Printf("resolve working directory: %v\n", err)
		os.Exit(1)
	}

	configPath := filepath.Join(baseDir, "config.json")
	daemonCfg, err := config.LoadDaemon(configPath)
	if err != nil {
		fmt.Printf("load config: %v\n", err)
		os.Exit(1)
	}
	daemonCfg.ResolvePaths(baseDir)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := daemonCfg.Save(configPath); err != nil {
			fmt.Printf("write default config: %v\n", err)
		} else {
			fmt.Printf("wrote default config to %s\n", configPath)
		}
	}

	botConfigs, err := config.LoadBotConfigs(daemonCfg.BotsDir)
	if err != nil {
		fmt.Printf("load bot configs: %v\n", err)
		os.Exit(1)
	}

	store, err := botdb.Open(daemonCfg.DBPath)
	if err != nil {
		fmt.Printf("open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	gates := ratelimit.NewGates()
	sup := supervisor.New(store)

	startOnLaunch := make(map[string]bool, len(botConfigs))
	for name, cfg := range botConfigs {
		startOnLaunch[name] = cfg.StartOnLaunch

		logger := logging.New(name, os.Stdout)
		deps := bot.Deps{
			GlobalStore: store,
			Gates:       gates,
			PlatformURL: daemonCfg.PlatformURL,
			Log:         logger.Printf,
		}
		if _, err := sup.Build(name, cfg, deps); err != nil {
			fmt.Printf("build bot %s: %v\n", name, err)
			os.Exit(1)
		}
	}

	sup.AutoStart(startOnLaunch)

	jwtSecret, err := operatorSecret(daemonCfg.DataDir)
	if err != nil {
		fmt.Printf("operator secret: %v\n", err)
		os.Exit(1)
	}
	api := controlapi.New(sup, jwtSecret, version)
	if err := writeOperatorToken(api, daemonCfg.DataDir); err != nil {
		fmt.Printf("issue operator token: %v\n", err)
		os.Exit(1)
	}

	srv := &http.Server{Addr: daemonCfg.Listen, Handler: api.Engine()}

	fmt.Println("========================================")
	fmt.Printf("  cardfarmd %s\n", version)
	fmt.Printf("  listen: %s\n", daemonCfg.Listen)
	fmt.Printf("  bots:   %d\n", len(botConfigs))
	fmt.Println("========================================")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("http server: %v\n", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sig:
	case <-sup.ExitRequested():
	case <-sup.RestartRequested():
	}

	shutdown(srv, sup)
}

// shutdown stops every bot and the HTTP listener. A restart request
// stops the process the same way exec/systemd/docker then restarts it.
func shutdown(srv *http.Server, sup *supervisor.Supervisor) {
	fmt.Println("stopping all bots...")
	sup.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
}

// operatorSecret loads the HMAC secret used to sign the control
// surface's JWTs, generating and persisting a random one on first
// boot rather than trusting a default value.
func operatorSecret(dataDir string) ([]byte, error) {
	path := filepath.Join(dataDir, "jwt.secret")
	if data, err := os.ReadFile(path); err == nil {
		return data, nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	encoded := []byte(hex.EncodeToString(secret))
	if err := os.WriteFile(path, encoded, 0o600); err != nil {
		return nil, err
	}
	return encoded, nil
}

// writeOperatorToken mints the single long-lived operator token and
// writes it next to the JWT secret, so the operator can read it once
// and use it for every control-surface call.
func writeOperatorToken(api *controlapi.Server, dataDir string) error {
	path := filepath.Join(dataDir, "operator.token")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	token, err := api.IssueOperatorToken(365 * 24 * time.Hour)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token), 0o600)
}
