// Package supervisor runs one session worker per account and keeps the
// fleet alive: staggered spawn, liveness polling, per-worker restart after
// a cooldown, and a full fleet restart when every worker is dead. It never
// reaches into worker internals; a worker is a black box with a Done
// channel.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/senderwatch/accounts"
	"github.com/hazyhaar/senderwatch/session"
)

// ErrFleetExhausted means every worker hit its restart cap and the fleet
// cannot recover without operator action.
var ErrFleetExhausted = errors.New("supervisor: all workers exhausted their restart budget")

// Worker is the slice of session.Worker the supervisor manages. Run must
// be called once per instance; a dead worker is replaced, never rerun.
type Worker interface {
	Run(ctx context.Context)
	Done() <-chan struct{}
	Status() session.Status
}

// Factory builds a fresh worker for an account. Called once at spawn and
// again for every restart, so each incarnation gets a clean session state.
type Factory func(acct accounts.Account) (Worker, error)

// Config tunes the supervision cadence. Defaults give the production
// rhythm: poll every two minutes, restart five minutes after a death,
// summarise health every thirty.
type Config struct {
	Poll        time.Duration // liveness poll interval, default 2m
	Cooldown    time.Duration // wait between a death and its restart, default 5m
	Stagger     time.Duration // delay between consecutive spawns, default 60s
	HealthEvery time.Duration // health summary log interval, default 30m

	// FullRestartPause is the quiet period before respawning after the
	// whole fleet died at once. Default: 30s.
	FullRestartPause time.Duration

	// ShutdownWait bounds how long Run waits for workers to drain after
	// cancellation. Default: 60s.
	ShutdownWait time.Duration

	// MaxRestarts caps restarts per worker; 0 means unlimited. An
	// exhausted worker is abandoned, and Run returns ErrFleetExhausted
	// once every worker is abandoned.
	MaxRestarts int
}

func (c *Config) defaults() {
	if c.Poll <= 0 {
		c.Poll = 2 * time.Minute
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 5 * time.Minute
	}
	if c.Stagger <= 0 {
		c.Stagger = time.Minute
	}
	if c.HealthEvery <= 0 {
		c.HealthEvery = 30 * time.Minute
	}
	if c.FullRestartPause <= 0 {
		c.FullRestartPause = 30 * time.Second
	}
	if c.ShutdownWait <= 0 {
		c.ShutdownWait = time.Minute
	}
}

// WorkerStatus is a fleet member's state as reported by Status.
type WorkerStatus struct {
	session.Status
	Alive     bool `json:"alive"`
	Restarts  int  `json:"restarts"`
	Abandoned bool `json:"abandoned"`
}

type member struct {
	acct      accounts.Account
	worker    Worker
	cancel    context.CancelFunc
	restarts  int
	diedAt    time.Time // zero while alive
	abandoned bool
}

// Supervisor keeps one worker per account running.
type Supervisor struct {
	factory Factory
	cfg     Config
	log     *slog.Logger

	mu      sync.Mutex
	members []*member
}

// New builds a supervisor over the given accounts. Disabled accounts must
// already be filtered out by the caller.
func New(accts []accounts.Account, factory Factory, cfg Config, logger *slog.Logger) *Supervisor {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Supervisor{factory: factory, cfg: cfg, log: logger}
	for _, a := range accts {
		s.members = append(s.members, &member{acct: a})
	}
	return s
}

// Run spawns the fleet and supervises it until ctx is cancelled or every
// worker is abandoned. It blocks.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.members) == 0 {
		return fmt.Errorf("supervisor: no accounts to supervise")
	}

	s.log.Info("supervisor: starting fleet", "workers", len(s.members))
	if err := s.spawnAll(ctx); err != nil {
		return err
	}

	poll := time.NewTicker(s.cfg.Poll)
	defer poll.Stop()
	health := time.NewTicker(s.cfg.HealthEvery)
	defer health.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return ctx.Err()
		case <-poll.C:
			if err := s.poll(ctx); err != nil {
				s.shutdown()
				return err
			}
		case <-health.C:
			s.logHealth()
		}
	}
}

// spawnAll starts every member with the configured stagger so the workers'
// hourly cycles stay spread out.
func (s *Supervisor) spawnAll(ctx context.Context) error {
	for i, m := range s.members {
		if i > 0 {
			if !sleepCtx(ctx, s.cfg.Stagger) {
				return ctx.Err()
			}
		}
		if err := s.spawn(ctx, m); err != nil {
			// A member that cannot even be constructed waits for the
			// regular restart path instead of blocking the others.
			s.log.Error("supervisor: initial spawn failed",
				"account", m.acct.Email, "error", err)
			s.mu.Lock()
			m.diedAt = time.Now()
			s.mu.Unlock()
		}
	}
	return nil
}

func (s *Supervisor) spawn(ctx context.Context, m *member) error {
	w, err := s.factory(m.acct)
	if err != nil {
		return fmt.Errorf("supervisor: build worker for %s: %w", m.acct.Email, err)
	}
	wctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.worker = w
	m.cancel = cancel
	m.diedAt = time.Time{}
	s.mu.Unlock()

	go w.Run(wctx)
	s.log.Info("supervisor: worker started",
		"account", m.acct.Email, "restarts", m.restarts)
	return nil
}

// poll inspects every member and applies the restart policy.
func (s *Supervisor) poll(ctx context.Context) error {
	now := time.Now()
	alive := 0
	var restartable []*member
	allAbandoned := true

	s.mu.Lock()
	for _, m := range s.members {
		if m.abandoned {
			continue
		}
		allAbandoned = false

		if m.worker != nil && !workerDone(m.worker) {
			alive++
			continue
		}
		if m.diedAt.IsZero() {
			m.diedAt = now
			s.log.Warn("supervisor: worker died", "account", m.acct.Email)
			continue
		}
		if now.Sub(m.diedAt) < s.cfg.Cooldown {
			continue
		}
		if s.cfg.MaxRestarts > 0 && m.restarts >= s.cfg.MaxRestarts {
			m.abandoned = true
			s.log.Error("supervisor: worker restart budget exhausted, abandoning",
				"account", m.acct.Email, "restarts", m.restarts)
			continue
		}
		restartable = append(restartable, m)
	}
	s.mu.Unlock()

	if allAbandoned {
		return ErrFleetExhausted
	}

	// Cooldown has passed but the account may have recovered on its own
	// clock; the recheck is the respawn itself, which builds a completely
	// fresh session.
	if alive == 0 && len(restartable) > 0 {
		return s.fullRestart(ctx, restartable)
	}
	for _, m := range restartable {
		s.restart(ctx, m)
	}
	return nil
}

func (s *Supervisor) restart(ctx context.Context, m *member) {
	s.mu.Lock()
	m.restarts++
	s.mu.Unlock()

	if err := s.spawn(ctx, m); err != nil {
		s.log.Error("supervisor: restart failed", "account", m.acct.Email, "error", err)
		s.mu.Lock()
		m.diedAt = time.Now()
		s.mu.Unlock()
	}
}

// fullRestart handles the everything-is-dead case: make sure the old
// incarnations are torn down, hold a quiet pause, then respawn the whole
// set staggered.
func (s *Supervisor) fullRestart(ctx context.Context, members []*member) error {
	s.log.Warn("supervisor: no workers alive, performing full fleet restart")

	s.mu.Lock()
	for _, m := range members {
		if m.cancel != nil {
			m.cancel()
		}
	}
	s.mu.Unlock()

	if !sleepCtx(ctx, s.cfg.FullRestartPause) {
		return ctx.Err()
	}
	for i, m := range members {
		if i > 0 && !sleepCtx(ctx, s.cfg.Stagger) {
			return ctx.Err()
		}
		s.restart(ctx, m)
	}
	return nil
}

// shutdown cancels every worker and waits, bounded, for them to drain.
func (s *Supervisor) shutdown() {
	s.log.Info("supervisor: shutting down fleet")

	s.mu.Lock()
	var running []Worker
	for _, m := range s.members {
		if m.cancel != nil {
			m.cancel()
		}
		if m.worker != nil && !workerDone(m.worker) {
			running = append(running, m.worker)
		}
	}
	s.mu.Unlock()

	deadline := time.After(s.cfg.ShutdownWait)
	for _, w := range running {
		select {
		case <-w.Done():
		case <-deadline:
			s.log.Warn("supervisor: shutdown wait elapsed with workers still draining")
			return
		}
	}
	s.log.Info("supervisor: fleet drained")
}

// Status reports every member's state, for the fleet endpoint and the
// health summary.
func (s *Supervisor) Status() []WorkerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]WorkerStatus, 0, len(s.members))
	for _, m := range s.members {
		ws := WorkerStatus{
			Restarts:  m.restarts,
			Abandoned: m.abandoned,
		}
		if m.worker != nil {
			ws.Status = m.worker.Status()
			ws.Alive = !workerDone(m.worker)
		} else {
			ws.Status = session.Status{AccountEmail: m.acct.Email, State: "disconnected"}
		}
		out = append(out, ws)
	}
	return out
}

func (s *Supervisor) logHealth() {
	statuses := s.Status()
	alive := 0
	cycles := 0
	for _, st := range statuses {
		if st.Alive {
			alive++
		}
		cycles += st.CyclesCompleted
	}
	s.log.Info("supervisor: fleet health",
		"alive", alive, "total", len(statuses), "cycles_completed", cycles)
}

func workerDone(w Worker) bool {
	select {
	case <-w.Done():
		return true
	default:
		return false
	}
}

// sleepCtx waits for d unless ctx ends first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
