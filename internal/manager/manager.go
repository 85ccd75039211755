package manager

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"sort"
	"sync"
	"time"

	"trade-arena/internal/engine"
	"trade-arena/internal/logger"
	"trade-arena/internal/metrics"
	"trade-arena/internal/model"
	"trade-arena/internal/oracle"
)

// Ledger extends the engine's store surface with agent enumeration.
type Ledger interface {
	engine.Ledger
	ListAgents() ([]model.Agent, error)
}

// Options configures a Manager. Store and Market are required; the rest
// have working defaults.
type Options struct {
	Store   Ledger
	Market  engine.MarketSource
	Metrics *metrics.Metrics
	Health  *metrics.HealthStatus
	Assets  []string

	LoopInterval time.Duration // pause after a pass over all engines
	IdleInterval time.Duration // pause when no engines are registered
	CycleTimeout time.Duration // per-agent cycle deadline

	// OracleFactory builds the decision source for an agent's credentials.
	// Overridable for tests; defaults to the chat-completions client.
	OracleFactory func(model.Agent) engine.DecisionSource

	// OnCycle, when set, is invoked after every cycle with its result.
	// Called from the cycle's goroutine; must not block for long.
	OnCycle func(engine.CycleResult)

	// OnDelete, when set, is invoked after Unregister removes an agent's
	// engine, so downstream state (live feeds, caches) can forget it too.
	OnDelete func(agentID int64)
}

// Manager owns the engine registry and the single background loop that
// drives trading cycles for every registered agent in turn.
type Manager struct {
	opts Options

	mu      sync.Mutex
	engines map[int64]*engine.Engine
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// Per-agent execution locks. A lock outlives engine replacement so a
	// re-registered agent keeps its serialization; ExecuteNow and the
	// background loop can never run concurrent cycles for one agent.
	lockMu sync.Mutex
	locks  map[int64]*sync.Mutex
}

func New(opts Options) *Manager {
	if opts.LoopInterval <= 0 {
		opts.LoopInterval = 180 * time.Second
	}
	if opts.IdleInterval <= 0 {
		opts.IdleInterval = 30 * time.Second
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 120 * time.Second
	}
	if opts.OracleFactory == nil {
		opts.OracleFactory = func(a model.Agent) engine.DecisionSource {
			return oracle.NewClient(a.OracleAPIKey, a.OracleAPIURL, a.OracleModel)
		}
	}
	return &Manager{
		opts:    opts,
		engines: make(map[int64]*engine.Engine),
		locks:   make(map[int64]*sync.Mutex),
	}
}

// InitializeEngines registers an engine for every agent in the store.
// Called once at startup so existing agents resume trading after a restart.
func (m *Manager) InitializeEngines() error {
	agents, err := m.opts.Store.ListAgents()
	if err != nil {
		return fmt.Errorf("list agents: %w", err)
	}
	for _, a := range agents {
		if _, err := m.Register(a.ID); err != nil {
			return fmt.Errorf("register agent %d: %w", a.ID, err)
		}
	}
	log.Printf("[manager] initialized %d engines", len(agents))
	return nil
}

// Register builds a fresh engine for the agent, installs it, replacing any
// existing engine for the same agent, and returns it. The agent must exist
// in the store.
func (m *Manager) Register(agentID int64) (*engine.Engine, error) {
	agent, err := m.opts.Store.GetAgent(agentID)
	if err != nil {
		return nil, err
	}
	eng := engine.New(agent, m.opts.Store, m.opts.Market, m.opts.OracleFactory(agent), m.opts.Assets, m.opts.Metrics)

	m.mu.Lock()
	m.engines[agentID] = eng
	n := len(m.engines)
	m.mu.Unlock()

	if m.opts.Metrics != nil {
		m.opts.Metrics.EnginesActive.Set(float64(n))
	}
	return eng, nil
}

// Unregister removes the agent's engine. A cycle already in flight for the
// agent finishes; it just never runs again.
func (m *Manager) Unregister(agentID int64) {
	m.mu.Lock()
	delete(m.engines, agentID)
	n := len(m.engines)
	m.mu.Unlock()

	if m.opts.Metrics != nil {
		m.opts.Metrics.EnginesActive.Set(float64(n))
	}
	if m.opts.OnDelete != nil {
		m.opts.OnDelete(agentID)
	}
}

// Ensure returns the agent's engine, registering one if missing. Using the
// engine Register built keeps Ensure safe against a concurrent Unregister.
func (m *Manager) Ensure(agentID int64) (*engine.Engine, error) {
	m.mu.Lock()
	eng, ok := m.engines[agentID]
	m.mu.Unlock()
	if ok {
		return eng, nil
	}
	return m.Register(agentID)
}

// ListIDs returns the registered agent IDs in ascending order.
func (m *Manager) ListIDs() []int64 {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.engines))
	for id := range m.engines {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ExecuteNow runs one cycle for the agent immediately, outside the loop
// schedule, and returns its result. Serialized against the background loop.
func (m *Manager) ExecuteNow(ctx context.Context, agentID int64) (engine.CycleResult, error) {
	eng, err := m.Ensure(agentID)
	if err != nil {
		return engine.CycleResult{}, err
	}
	return m.runCycle(ctx, agentID, eng), nil
}

// Start launches the background loop. Idempotent: a second Start while
// running is a no-op.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.run(m.stopCh, m.doneCh)
	log.Printf("[manager] background loop started")
}

// Stop signals the loop and waits for it to exit. An in-flight cycle is
// allowed to finish; the wait is bounded.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	done := m.doneCh
	m.mu.Unlock()

	select {
	case <-done:
	case <-time.After(m.opts.CycleTimeout + 10*time.Second):
		log.Printf("[manager] loop did not stop in time, abandoning wait")
	}
}

func (m *Manager) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		m.mu.Lock()
		snapshot := make(map[int64]*engine.Engine, len(m.engines))
		for id, eng := range m.engines {
			snapshot[id] = eng
		}
		m.mu.Unlock()

		if len(snapshot) == 0 {
			if !m.sleep(stopCh, m.opts.IdleInterval) {
				return
			}
			continue
		}

		for id, eng := range snapshot {
			select {
			case <-stopCh:
				return
			default:
			}
			result := m.runCycle(context.Background(), id, eng)
			if !result.Success {
				log.Printf("[manager] agent %d cycle failed: %s", id, result.Error)
			}
		}
		if m.opts.Health != nil {
			m.opts.Health.SetLastCycleTime(time.Now().UTC())
		}

		if !m.sleep(stopCh, m.opts.LoopInterval) {
			return
		}
	}
}

// runCycle executes one cycle under the agent's execution lock.
func (m *Manager) runCycle(ctx context.Context, agentID int64, eng *engine.Engine) engine.CycleResult {
	lock := m.lockFor(agentID)
	lock.Lock()
	defer lock.Unlock()

	ctx = logger.WithCycleID(ctx, logger.GenerateCycleID(agentID, time.Now().UTC()))
	ctx, cancel := context.WithTimeout(ctx, m.opts.CycleTimeout)
	defer cancel()

	result := eng.RunCycle(ctx)
	attrs := append([]any{
		slog.Int64("agent_id", agentID),
		slog.Bool("success", result.Success),
		slog.Duration("duration", result.Duration),
	}, logger.WithCycle(ctx)...)
	slog.Info("trading cycle finished", attrs...)

	if m.opts.OnCycle != nil {
		m.opts.OnCycle(result)
	}
	return result
}

func (m *Manager) lockFor(agentID int64) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.locks[agentID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[agentID] = l
	}
	return l
}

// sleep waits for d or until stop. Returns false when stopping.
func (m *Manager) sleep(stopCh chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stopCh:
		return false
	case <-t.C:
		return true
	}
}
