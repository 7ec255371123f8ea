package cardsfarmer

import (
	"context"
	"sync"
	"time"

	"cardfarmd/internal/clock"
)

// BotCallbacks is the Farmer's narrow view of its owning Bot (spec
// §4.3: onFarmingFinished fires when IsAnythingToFarm finds nothing
// left, or a full cycle completes).
type BotCallbacks interface {
	OnFarmingFinished(success bool)
}

// Config is the immutable, per-bot farming configuration this package
// needs out of spec §3's Bot configuration table.
type Config struct {
	CardDropsRestricted bool
	FarmingDelay        time.Duration
	MaxFarmingTime      time.Duration
	Blacklist           map[int64]struct{}
	// AppearOffline suppresses the online-presence announcement that
	// would otherwise go out alongside the games-played report (spec
	// §3's FarmOffline); it never stops farming itself.
	AppearOffline bool
	LogWarn       func(format string, args ...any)
}

// Farmer is the per-bot Cards Farmer scheduler (spec §4.3). Exactly
// one Start round runs at a time (serialized by startSem); Stop wakes
// any in-flight sleep via resetSignal/cancel and waits for the round
// to observe keepFarming=false.
type Farmer struct {
	pages     GamePages
	notifier  Notifier
	callbacks BotCallbacks
	clock     clock.Clock
	cfg       Config

	startSem *clock.Gate

	mu               sync.Mutex
	gamesToFarm      map[int64]float64
	currentlyFarming map[int64]struct{}
	manualMode       bool
	keepFarming      bool
	nowFarming       bool
	playingBlocked   bool

	resetSignal *clock.ResetSignal

	runCancel context.CancelFunc
	runDone   chan struct{}
}

// New constructs a Farmer. clk defaults to the real clock if nil.
func New(pages GamePages, notifier Notifier, callbacks BotCallbacks, cfg Config, clk clock.Clock) *Farmer {
	if clk == nil {
		clk = clock.Real()
	}
	if cfg.LogWarn == nil {
		cfg.LogWarn = func(string, ...any) {}
	}
	return &Farmer{
		pages:            pages,
		notifier:         notifier,
		callbacks:        callbacks,
		clock:            clk,
		cfg:              cfg,
		startSem:         clock.NewGate(1),
		gamesToFarm:      make(map[int64]float64),
		currentlyFarming: make(map[int64]struct{}),
		resetSignal:      clock.NewResetSignal(),
	}
}

func (f *Farmer) logWarn(format string, args ...any) { f.cfg.LogWarn(format, args...) }

// Start is idempotent (spec §4.3, §8's "start(); start() ≡ start()"):
// a concurrent caller that finds a round already in flight returns
// immediately without starting a second one.
func (f *Farmer) Start(ctx context.Context) {
	if err := f.startSem.Acquire(ctx); err != nil {
		return
	}

	f.mu.Lock()
	if f.nowFarming || f.manualMode || f.playingBlocked {
		f.mu.Unlock()
		f.startSem.Release()
		return
	}
	f.nowFarming = true
	f.keepFarming = true
	runCtx, cancel := context.WithCancel(context.Background())
	f.runCancel = cancel
	f.runDone = make(chan struct{})
	f.mu.Unlock()

	f.startSem.Release()

	go f.run(runCtx)
}

func (f *Farmer) run(ctx context.Context) {
	defer close(f.runDone)
	defer func() {
		f.mu.Lock()
		f.nowFarming = false
		f.currentlyFarming = make(map[int64]struct{})
		f.mu.Unlock()
	}()

	games, err := IsAnythingToFarm(ctx, f.pages, f.cfg.Blacklist)
	if err != nil {
		f.logWarn("cardsfarmer: discovery: %v", err)
		f.callbacks.OnFarmingFinished(false)
		return
	}
	if len(games) == 0 {
		f.callbacks.OnFarmingFinished(false)
		return
	}

	f.mu.Lock()
	f.gamesToFarm = games
	f.mu.Unlock()

	if f.cfg.CardDropsRestricted {
		f.runComplex(ctx)
	} else {
		f.runSimple(ctx)
	}

	f.callbacks.OnFarmingFinished(f.isKeepFarming())
}

// Stop is idempotent: wakes any in-flight sleep and waits briefly for
// the round to observe the stop (spec §4.3, §5).
func (f *Farmer) Stop() {
	f.mu.Lock()
	if !f.nowFarming {
		f.mu.Unlock()
		return
	}
	f.keepFarming = false
	cancel := f.runCancel
	done := f.runDone
	f.mu.Unlock()

	f.resetSignal.Fire()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}
}

// OnNewItemsNotification re-evaluates drop status without waiting out
// the configured delay (spec §4.3).
func (f *Farmer) OnNewItemsNotification() {
	f.resetSignal.Fire()
}

// OnNewGameAdded starts the farmer if idle; if already running in
// Complex mode with any game below the solo threshold, restarts so the
// new game joins the current multi-play batch (spec §4.3).
func (f *Farmer) OnNewGameAdded(ctx context.Context) {
	f.mu.Lock()
	running := f.nowFarming
	restricted := f.cfg.CardDropsRestricted
	hasLowHour := false
	for _, h := range f.gamesToFarm {
		if h < complexSoloThresholdHours {
			hasLowHour = true
			break
		}
	}
	f.mu.Unlock()

	if !running {
		f.Start(ctx)
		return
	}
	if restricted && hasLowHour {
		f.Stop()
		f.Start(ctx)
	}
}

// OnDisconnected is equivalent to Stop (spec §4.3).
func (f *Farmer) OnDisconnected() { f.Stop() }

// SetPlayingBlocked implements the playingBlocked policy (spec §4.3):
// while true, new Start calls short-circuit without clearing any
// in-flight round.
func (f *Farmer) SetPlayingBlocked(blocked bool) {
	f.mu.Lock()
	f.playingBlocked = blocked
	f.mu.Unlock()
}

// SwitchToManualMode toggles manual mode (spec §4.3, §8): turning it
// on stops farming and sets manualMode; turning it off clears
// manualMode and triggers exactly one Start.
func (f *Farmer) SwitchToManualMode(ctx context.Context, on bool) {
	if on {
		f.Stop()
		f.mu.Lock()
		f.manualMode = true
		f.mu.Unlock()
		return
	}
	f.mu.Lock()
	f.manualMode = false
	f.mu.Unlock()
	f.Start(ctx)
}

// IsManualMode reports whether manual mode is active.
func (f *Farmer) IsManualMode() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.manualMode
}

// IsFarming reports whether a round is currently in flight.
func (f *Farmer) IsFarming() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nowFarming
}

// Snapshot returns a copy of gamesToFarm and currentlyFarming for
// status reporting, never for mutation.
func (f *Farmer) Snapshot() (gamesToFarm map[int64]float64, currentlyFarming []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gamesToFarm = make(map[int64]float64, len(f.gamesToFarm))
	for k, v := range f.gamesToFarm {
		gamesToFarm[k] = v
	}
	for id := range f.currentlyFarming {
		currentlyFarming = append(currentlyFarming, id)
	}
	return gamesToFarm, currentlyFarming
}
