// Package supervisor holds the bot map and drives fleet-wide
// lifecycle operations (spec §4.7), grounded on the teacher's
// server/internal/bot/manager.go Manager type.
package supervisor

import (
	"hash/fnv"
	"sync"

	"cardfarmd/internal/bot"
	"cardfarmd/internal/botdb"
)

// Supervisor owns every bot's Instance, keyed by name, and implements
// bot.Fleet so an Instance can reach its siblings for key forwarding,
// distribution, and fleet-wide commands (spec §4.6/§4.5).
type Supervisor struct {
	mu    sync.RWMutex
	bots  map[string]*bot.Instance
	store *botdb.Store

	exitRequested    chan struct{}
	restartRequested chan struct{}
	exitOnce         sync.Once
	restartOnce      sync.Once
}

func New(store *botdb.Store) *Supervisor {
	return &Supervisor{
		bots:             make(map[string]*bot.Instance),
		store:            store,
		exitRequested:    make(chan struct{}),
		restartRequested: make(chan struct{}),
	}
}

// Register adds a freshly-constructed Instance to the fleet. Callers
// build the Instance with this Supervisor as its Deps.Fleet so the
// wiring is complete before Register returns.
func (s *Supervisor) Register(inst *bot.Instance) {
	s.mu.Lock()
	s.bots[inst.Name()] = inst
	s.mu.Unlock()
}

// accountKey derives the botdb.Store record key from a bot's
// configured name: the real Steam-style numeric account id is only
// known after a successful login, but the database needs a stable key
// before that first connect.
func accountKey(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

// Build loads (or creates) name's persisted record from the shared
// store, constructs its Instance with this Supervisor wired in as
// Deps.Fleet, and registers it.
func (s *Supervisor) Build(name string, cfg bot.Config, deps bot.Deps) (*bot.Instance, error) {
	rec, err := s.store.Load(accountKey(name))
	if err != nil {
		return nil, err
	}
	deps.Fleet = s
	inst := bot.New(name, cfg, deps, s.store, rec)
	s.Register(inst)
	return inst, nil
}

// Get returns the named bot, or nil if it is not registered.
func (s *Supervisor) Get(name string) *bot.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bots[name]
}

// AutoStart starts every registered bot configured with
// startOnLaunch=true (spec §4.7).
func (s *Supervisor) AutoStart(startOnLaunch map[string]bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, inst := range s.bots {
		if startOnLaunch[name] {
			inst.Start()
		}
	}
}

// StartAll starts every registered bot regardless of its
// startOnLaunch flag.
func (s *Supervisor) StartAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.bots {
		inst.Start()
	}
}

// StopAll stops every registered bot and blocks until each has torn
// down (spec §4.7's shutdown: "signal the process-exit event when all
// bots report keepRunning=false").
func (s *Supervisor) StopAll() {
	s.mu.RLock()
	instances := make([]*bot.Instance, 0, len(s.bots))
	for _, inst := range s.bots {
		instances = append(instances, inst)
	}
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, inst := range instances {
		wg.Add(1)
		go func(i *bot.Instance) {
			defer wg.Done()
			i.Stop()
		}(inst)
	}
	wg.Wait()
}

// AnyRunning reports whether at least one bot still has keepRunning
// set (spec §4.7's shutdown condition is the negation of this).
func (s *Supervisor) AnyRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inst := range s.bots {
		if inst.IsRunning() {
			return true
		}
	}
	return false
}

// Statuses returns a point-in-time snapshot of every bot. The control
// surface's GET /api/status reports only the bot count, not these.
func (s *Supervisor) Statuses() []bot.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]bot.Status, 0, len(s.bots))
	for _, inst := range s.bots {
		out = append(out, inst.Status())
	}
	return out
}

// The methods below implement bot.Fleet.

func (s *Supervisor) Others(excludeName string) []*bot.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*bot.Instance, 0, len(s.bots))
	for name, inst := range s.bots {
		if name != excludeName {
			out = append(out, inst)
		}
	}
	return out
}

func (s *Supervisor) All() []*bot.Instance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*bot.Instance, 0, len(s.bots))
	for _, inst := range s.bots {
		out = append(out, inst)
	}
	return out
}

// ExitProcess signals the supervisor's exit channel exactly once; the
// daemon entrypoint selects on this to begin graceful shutdown.
func (s *Supervisor) ExitProcess() {
	s.exitOnce.Do(func() { close(s.exitRequested) })
}

func (s *Supervisor) RestartProcess() {
	s.restartOnce.Do(func() { close(s.restartRequested) })
}

// ExitRequested returns the channel closed by ExitProcess.
func (s *Supervisor) ExitRequested() <-chan struct{} { return s.exitRequested }

// RestartRequested returns the channel closed by RestartProcess.
func (s *Supervisor) RestartRequested() <-chan struct{} { return s.restartRequested }
