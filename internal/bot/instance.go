package bot

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cardfarmd/internal/botdb"
	"cardfarmd/internal/cardsfarmer"
	"cardfarmd/internal/mobileauth"
	"cardfarmd/internal/platform"
	"cardfarmd/internal/ratelimit"
	"cardfarmd/internal/trading"
)

// Watchdog reconnect policy, grounded verbatim on the teacher's
// internal/bot/instance.go watchdog().
const (
	reconnectBackoffInit    = 2 * time.Second
	reconnectBackoffMax     = 60 * time.Second
	maxLoginTimeoutAttempts = 3
	invalidPasswordThrottle = 25 * time.Minute
)

// GlobalStore is the cross-bot cell-id persistence surface (spec §3's
// Global database). *botdb.Store satisfies this.
type GlobalStore interface {
	LoadGlobal() (*botdb.GlobalRecord, error)
	SaveGlobal(*botdb.GlobalRecord) error
}

// Fleet lets one bot reach its siblings for key forwarding and
// distribution (spec §4.6). The Supervisor implements this.
type Fleet interface {
	Others(excludeName string) []*Instance
	All() []*Instance
	// ExitProcess and RestartProcess implement the fleet-wide !exit and
	// !restart commands (spec §4.5's command vocabulary):
	// the Supervisor owns the process lifetime, not any one Instance.
	ExitProcess()
	RestartProcess()
}

// Config is the immutable, read-once Bot configuration (spec §3's
// Bot configuration table).
type Config struct {
	Name                           string
	StartOnLaunch                  bool
	Login                          string
	Password                       string
	ParentalPin                    string
	MasterID                       uint64
	MasterClanID                   int64
	OwnerID                        uint64
	IsBotAccount                   bool
	FarmOffline                    bool
	CardDropsRestricted            bool
	HandleOfflineMessages          bool
	AcceptGifts                    bool
	ForwardKeysToOtherBots         bool
	DistributeKeys                 bool
	DismissInventoryNotifications  bool
	AcceptConfirmationsPeriod      time.Duration
	SendTradePeriod                time.Duration
	SendOnFarmingFinished          bool
	ShutdownOnFarmingFinished      bool
	IdleGames                      []int64
	IdleCustomName                 string
	TradeToken                     string
	Blacklist                      map[int64]struct{}
	StatisticsEnabled              bool
	StatisticsGroupID              int64
	FarmingDelay                   time.Duration
	MaxFarmingTime                 time.Duration
	Wishlist                       []trading.WishlistEntry
	// LoggedInElsewhereRetryDelay is a supplemented field (spec §3.1 in
	// SPEC_FULL.md): retry delay after a loggedInElsewhere disconnect;
	// zero means stop instead of retrying (spec §7).
	LoggedInElsewhereRetryDelay time.Duration
}

// Deps bundles the shared, process-wide collaborators every Instance
// needs.
type Deps struct {
	GlobalStore GlobalStore
	Gates       *ratelimit.Gates
	PlatformURL string
	Headers     http.Header
	Fleet       Fleet
	Log         func(format string, args ...any)
}

// Status is a point-in-time snapshot for the command/control surface.
type Status struct {
	Name             string
	State            State
	KeepRunning      bool
	PlayingBlocked   bool
	ManualMode       bool
	Farming          bool
	GamesToFarm      map[int64]float64
	CurrentlyFarming []int64
}

// Instance is the per-account orchestrator (spec §4.5): owns the
// connection state machine, dispatches protocol callbacks in FIFO
// order, and coordinates Cards Farmer / Trading / Mobile Authenticator.
// Grounded on the teacher's internal/bot/instance.go.
type Instance struct {
	name string
	cfg  Config
	deps Deps
	db   *botdb.Store

	mu              sync.Mutex
	state           State
	keepRunning     bool
	invalidPassword bool
	playingBlocked  bool
	record          *botdb.Record

	client       *platform.Client
	web          *platform.WebSession
	farmer       *cardsfarmer.Farmer
	trader       *trading.Trader
	mobileClient *mobileauth.Client

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// New constructs a Bot instance. rec is the account's persisted
// database (spec §3); db is where mutations are written back.
func New(name string, cfg Config, deps Deps, db *botdb.Store, rec *botdb.Record) *Instance {
	if deps.Log == nil {
		deps.Log = func(string, ...any) {}
	}
	return &Instance{name: name, cfg: cfg, deps: deps, db: db, record: rec}
}

func (b *Instance) logf(format string, args ...any) {
	b.deps.Log(fmt.Sprintf("[%s] ", b.name)+format, args...)
}

func (b *Instance) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// State returns the bot's current connection state.
func (b *Instance) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// IsRunning reports whether the bot's keepRunning flag is set.
func (b *Instance) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.keepRunning
}

func (b *Instance) Name() string { return b.name }

// OwnerForAPI returns the sender id that satisfies this bot's
// permission checks, letting the HTTP control surface reuse the same
// Respond path as chat commands without needing its own ACL.
func (b *Instance) OwnerForAPI() uint64 { return b.cfg.OwnerID }

// Start raises keepRunning and launches the watchdog's connect/retry
// loop in the background (spec §4.5: Stopped --start()--> Connecting).
func (b *Instance) Start() {
	b.mu.Lock()
	if b.keepRunning {
		b.mu.Unlock()
		return
	}
	b.keepRunning = true
	ctx, cancel := context.WithCancel(context.Background())
	b.runCancel = cancel
	b.runDone = make(chan struct{})
	b.mu.Unlock()

	go func() {
		defer close(b.runDone)
		b.watchdog(ctx)
		b.setState(StateStopped)
	}()
}

// Stop clears keepRunning, disconnects, and does not reconnect (spec
// §4.5: any state --stop()--> Stopped).
func (b *Instance) Stop() {
	b.mu.Lock()
	if !b.keepRunning {
		b.mu.Unlock()
		return
	}
	b.keepRunning = false
	cancel := b.runCancel
	done := b.runDone
	client := b.client
	farmer := b.farmer
	b.mu.Unlock()

	if farmer != nil {
		farmer.Stop()
	}
	if client != nil {
		client.Close()
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// watchdog is the reconnect loop: connect, log in, run until
// disconnected, then retry with exponential backoff unless the
// disconnect reason is non-retryable; InvalidPassword, though not
// Retryable, is retried through its own throttle. Grounded verbatim on the
// teacher's instance.go watchdog().
func (b *Instance) watchdog(ctx context.Context) {
	backoff := reconnectBackoffInit
	loginTimeouts := 0

	for {
		if ctx.Err() != nil || !b.IsRunning() {
			return
		}

		reason, err := b.connectAndRun(ctx)
		if err == nil {
			// connectAndRun only returns nil when Stop() tore it down.
			return
		}

		b.logf("disconnected: %v", err)

		switch reason {
		case platform.DisconnectLoginTimeout:
			loginTimeouts++
			if loginTimeouts >= maxLoginTimeoutAttempts {
				b.logf("giving up after %d login timeouts", loginTimeouts)
				return
			}
		case platform.DisconnectInvalidPassword:
			b.mu.Lock()
			b.invalidPassword = true
			usedSessionKey := len(b.record.SessionKey) > 0
			var rec *botdb.Record
			if usedSessionKey {
				rec = b.record.Clone()
				rec.SessionKey = nil
				b.record = rec
			}
			b.mu.Unlock()
			if usedSessionKey {
				// The remembered session key itself was rejected, not the
				// password: drop it and retry immediately with the password.
				b.db.Save(rec)
			} else if !b.sleep(ctx, invalidPasswordThrottle) {
				return
			}
			// InvalidPassword is not Retryable, so the reconnect happens
			// here instead of through the backoff path below.
			continue
		case platform.DisconnectLoggedInElsewhere:
			if b.cfg.LoggedInElsewhereRetryDelay <= 0 {
				return
			}
			b.sleep(ctx, b.cfg.LoggedInElsewhereRetryDelay)
		}

		if !reason.Retryable() {
			return
		}

		if !b.sleep(ctx, backoff) {
			return
		}
		backoff *= 2
		if backoff > reconnectBackoffMax {
			backoff = reconnectBackoffMax
		}
	}
}

func (b *Instance) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// connectAndRun performs one full connect-login-bootstrap-serve cycle.
// It blocks until the session disconnects or ctx is cancelled, then
// returns the disconnect reason (spec §4.5's Connecting/LoggingIn/
// WebBootstrapping/Ready transitions).
func (b *Instance) connectAndRun(ctx context.Context) (platform.DisconnectReason, error) {
	release, err := b.deps.Gates.Login.Acquire(ctx)
	if err != nil {
		return platform.DisconnectUnknown, err
	}
	defer release()

	b.setState(StateConnecting)
	client := platform.NewClient(b.handleNotify)
	if err := client.Connect(ctx, b.deps.PlatformURL, b.deps.Headers); err != nil {
		return platform.DisconnectReadError, err
	}
	b.mu.Lock()
	b.client = client
	b.web = platform.NewWebSession(b.deps.PlatformURL, 2, 10*time.Second)
	b.mu.Unlock()

	b.setState(StateLoggingIn)
	loginResult, err := b.login(ctx, client)
	if err != nil {
		return client.GetDisconnectReason(), err
	}

	b.setState(StateWebBootstrapping)
	if err := b.bootstrapWebSession(ctx, loginResult); err != nil {
		client.Close()
		return platform.DisconnectReadError, err
	}

	b.setState(StateReady)
	b.onReady(ctx)

	go client.StartHeartbeat(ctx, 30*time.Second)

	select {
	case <-client.Done():
		return client.GetDisconnectReason(), fmt.Errorf("session ended: %s", client.GetDisconnectReason())
	case <-ctx.Done():
		client.Close()
		return platform.DisconnectClosed, nil
	}
}

// login issues the logon RPC with remembered-session-key or
// credentials plus a pre-generated 2FA token if enrolled (spec §4.5).
func (b *Instance) login(ctx context.Context, client *platform.Client) (platform.LoginResult, error) {
	global, _ := b.deps.GlobalStore.LoadGlobal()
	var cellID int32
	if global != nil {
		cellID = global.CellID
	}

	b.mu.Lock()
	rec := b.record
	b.mu.Unlock()

	params := platform.LoginParams{Login: b.cfg.Login, CellID: cellID, SentryHash: rec.SentryHash}
	if len(rec.SessionKey) > 0 {
		params.SessionKey = rec.SessionKey
	} else {
		params.Password = b.cfg.Password
	}
	if rec.MobileAuth.Enrolled() {
		auth := mobileauth.New(rec.MobileAuth.SharedSecret, rec.MobileAuth.IdentitySecret, rec.MobileAuth.DeviceID)
		b.mu.Lock()
		b.mobileClient = mobileauth.NewClient(auth, b.web)
		b.mu.Unlock()
		code, _ := auth.GenerateToken()
		params.TwoFactorCode = code
	}

	result, err := client.Login(ctx, params)
	if err != nil {
		return result, err
	}

	switch result.Code {
	case "OK":
		b.mu.Lock()
		b.invalidPassword = false
		b.mu.Unlock()
		if result.CellID != 0 {
			b.deps.GlobalStore.SaveGlobal(&botdb.GlobalRecord{CellID: result.CellID})
		}
		return result, nil
	case "InvalidPassword":
		b.mu.Lock()
		b.invalidPassword = true
		b.mu.Unlock()
		client.SetDisconnectReason(platform.DisconnectInvalidPassword)
		return result, &serverCodeError{"LogOn", result.Code}
	default:
		return result, &serverCodeError{"LogOn", result.Code}
	}
}

// bootstrapWebSession wires WebSession.Init and, on failure, retries
// once with a fresh nonce before giving up (spec §4.5).
func (b *Instance) bootstrapWebSession(ctx context.Context, result platform.LoginResult) error {
	ok, err := b.web.Init(ctx, result.SteamID, result.Universe, result.WebAPINonce, b.cfg.ParentalPin)
	if err == nil && ok {
		return b.finishBootstrap(ctx)
	}
	nonce, nerr := b.client.RequestWebAPIUserNonce(ctx)
	if nerr != nil {
		return fmt.Errorf("bot: refresh web session nonce: %w", nerr)
	}
	ok, err = b.web.Init(ctx, result.SteamID, result.Universe, nonce, b.cfg.ParentalPin)
	if err != nil || !ok {
		return fmt.Errorf("bot: web session init failed twice")
	}
	return b.finishBootstrap(ctx)
}

func (b *Instance) finishBootstrap(ctx context.Context) error {
	if b.cfg.DismissInventoryNotifications {
		b.web.MarkInventory(ctx)
	}
	if b.cfg.MasterClanID != 0 {
		b.web.JoinGroup(ctx, b.cfg.MasterClanID)
	}
	if b.cfg.StatisticsEnabled && b.cfg.StatisticsGroupID != 0 {
		b.web.JoinGroup(ctx, b.cfg.StatisticsGroupID)
	}
	if b.cfg.HandleOfflineMessages {
		if _, err := b.client.RequestOfflineMessages(ctx); err != nil {
			b.logf("offline messages: %v", err)
		}
	}
	return nil
}

// onReady wires the per-bot tasks that run while the session is Ready
// (spec §4.5): schedule Trading.checkTrades, wait 1s for a possible
// PlayingSessionState callback, then start the Cards Farmer.
func (b *Instance) onReady(ctx context.Context) {
	confirmer := b.mobileConfirmer()
	b.mu.Lock()
	b.trader = trading.New(
		tradeOffersAdapter{client: b.client},
		inventoryAdapter{web: b.web},
		confirmer,
		trading.Config{
			MasterID:   b.cfg.MasterID,
			TradeToken: b.cfg.TradeToken,
			Wishlist:   b.cfg.Wishlist,
			LogWarn:    func(f string, a ...any) { b.logf(f, a...) },
		},
	)
	b.farmer = cardsfarmer.New(b.web, b.client, b, cardsfarmer.Config{
		CardDropsRestricted: b.cfg.CardDropsRestricted,
		FarmingDelay:        b.cfg.FarmingDelay,
		MaxFarmingTime:      b.cfg.MaxFarmingTime,
		Blacklist:           b.cfg.Blacklist,
		AppearOffline:       b.cfg.FarmOffline,
		LogWarn:             func(f string, a ...any) { b.logf(f, a...) },
	}, nil)
	b.mu.Unlock()

	go b.trader.CheckTrades(ctx)
	b.startPeriodicTimers(ctx)

	b.sleep(ctx, time.Second)

	// FarmOffline only suppresses the online-presence announcement
	// (threaded through as cardsfarmer.Config.AppearOffline); farming
	// itself always starts once the session is ready.
	b.farmer.Start(ctx)
}

// acceptPendingGifts lists and accepts incoming guest passes (spec §3's
// acceptGifts), one at a time through the process-wide gift gate so
// every bot's accept calls are globally throttled the same way login
// attempts are (the acquire/release pattern mirrors connectAndRun's use
// of Gates.Login).
func (b *Instance) acceptPendingGifts(ctx context.Context) {
	b.mu.Lock()
	web := b.web
	b.mu.Unlock()
	if web == nil {
		return
	}

	giftIDs, err := web.GetPendingGifts(ctx)
	if err != nil {
		b.logf("list pending gifts: %v", err)
		return
	}
	for _, giftID := range giftIDs {
		release, err := b.deps.Gates.Gifts.Acquire(ctx)
		if err != nil {
			return
		}
		if _, err := web.AcceptGift(ctx, giftID); err != nil {
			b.logf("accept gift %s: %v", giftID, err)
		}
		release()
	}
}

func (b *Instance) mobileConfirmer() trading.Confirmer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mobileClient != nil {
		return b.mobileClient
	}
	return noopConfirmer{}
}

func (b *Instance) startPeriodicTimers(ctx context.Context) {
	if b.cfg.AcceptConfirmationsPeriod > 0 {
		go b.runPeriodic(ctx, b.cfg.AcceptConfirmationsPeriod, func() {
			if b.mobileClient != nil {
				b.mobileClient.AcceptAll(ctx, nil)
			}
		})
	}
	if b.cfg.SendTradePeriod > 0 {
		go b.runPeriodic(ctx, b.cfg.SendTradePeriod, func() {
			b.trader.SendLoot(ctx)
		})
	}
}

func (b *Instance) runPeriodic(ctx context.Context, interval time.Duration, fn func()) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// OnFarmingFinished implements cardsfarmer.BotCallbacks (spec §4.5).
func (b *Instance) OnFarmingFinished(success bool) {
	if success && b.cfg.SendOnFarmingFinished {
		go b.trader.SendLoot(context.Background())
	}
	if b.cfg.ShutdownOnFarmingFinished {
		go b.Stop()
	}
}

// handleNotify is the Client's onNotify callback: it dispatches each
// pushed event to the collaborator that owns it (spec §4.5). Delivery
// is FIFO per the read loop that calls it, so handlers must not block
// on anything that depends on another in-flight notification.
func (b *Instance) handleNotify(n platform.Notification) {
	ctx := context.Background()
	switch n.Kind {
	case platform.NotifyKickout:
		// Another session logged in and took over this account; don't
		// fight it by reconnecting immediately.
		b.setState(StateDisconnecting)
		b.mu.Lock()
		client := b.client
		b.mu.Unlock()
		if client != nil {
			client.Close()
		}

	case platform.NotifyItems:
		b.mu.Lock()
		farmer := b.farmer
		b.mu.Unlock()
		if farmer != nil {
			farmer.OnNewItemsNotification()
		}
		if b.cfg.AcceptGifts {
			go b.acceptPendingGifts(ctx)
		}

	case platform.NotifyTrading:
		b.mu.Lock()
		trader := b.trader
		b.mu.Unlock()
		if trader != nil {
			go trader.CheckTrades(ctx)
		}

	case platform.NotifyPlayingSessionState:
		state, err := platform.DecodePlayingSessionStateNotify(n.Raw)
		if err != nil {
			b.logf("decode playing session state: %v", err)
			return
		}
		b.mu.Lock()
		b.playingBlocked = state.Blocked
		farmer := b.farmer
		b.mu.Unlock()
		if farmer != nil {
			farmer.SetPlayingBlocked(state.Blocked)
		}
		if state.Blocked {
			b.setState(StatePlayingBlocked)
		} else {
			b.setState(StateReady)
			if farmer != nil {
				farmer.Start(ctx)
			}
		}

	case platform.NotifyLoginKey:
		key, err := platform.DecodeLoginKeyNotify(n.Raw)
		if err != nil {
			b.logf("decode login key: %v", err)
			return
		}
		b.mu.Lock()
		rec := b.record.Clone()
		rec.SessionKey = key.Key
		b.record = rec
		client := b.client
		b.mu.Unlock()
		if err := b.db.Save(rec); err != nil {
			b.logf("persist session key: %v", err)
			return
		}
		if client != nil {
			client.AcceptNewLoginKey(ctx, key.JobID)
		}

	case platform.NotifyMachineAuth:
		update, err := platform.DecodeMachineAuthUpdate(n.Raw)
		if err != nil {
			b.logf("decode machine auth update: %v", err)
			return
		}
		b.mu.Lock()
		rec := b.record.Clone()
		result := platform.ApplySentryUpdate(rec.SentryFile, update.Offset, update.Bytes)
		rec.SentryFile = result.FileContents
		rec.SentryHash = result.Hash[:]
		b.record = rec
		client := b.client
		b.mu.Unlock()
		if err := b.db.Save(rec); err != nil {
			b.logf("persist sentry file: %v", err)
			return
		}
		if client != nil {
			client.SendMachineAuthResponse(ctx, update.JobID, "", len(update.Bytes), int64(len(rec.SentryFile)), update.Offset, result.Hash)
		}
	}
}

// Status returns a point-in-time snapshot for the command/control
// surface.
func (b *Instance) Status() Status {
	b.mu.Lock()
	st := Status{Name: b.name, State: b.state, KeepRunning: b.keepRunning, PlayingBlocked: b.playingBlocked}
	farmer := b.farmer
	b.mu.Unlock()

	if farmer != nil {
		st.ManualMode = farmer.IsManualMode()
		st.Farming = farmer.IsFarming()
		st.GamesToFarm, st.CurrentlyFarming = farmer.Snapshot()
	}
	return st
}

// serverCodeError wraps a non-OK login result code.
type serverCodeError struct {
	op   string
	code string
}

func (e *serverCodeError) Error() string { return fmt.Sprintf("bot: %s returned %s", e.op, e.code) }

// noopConfirmer stands in when no mobile authenticator is enrolled:
// trading and the confirmation timer become no-ops rather than nil
// derefs.
type noopConfirmer struct{}

func (noopConfirmer) FetchConfirmations(context.Context) ([]mobileauth.Confirmation, error) {
	return nil, nil
}
func (noopConfirmer) GetConfirmationDetails(ctx context.Context, c mobileauth.Confirmation) (mobileauth.Confirmation, error) {
	return c, nil
}
func (noopConfirmer) Handle(context.Context, mobileauth.Confirmation, bool) (bool, error) {
	return false, nil
}
