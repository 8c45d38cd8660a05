// Package session runs the per-account scrape lifecycle as a state machine:
//
//	DISCONNECTED → CONNECTING → AUTHENTICATING → AUTHENTICATED → CYCLING
//	→ COOLING_DOWN → (loop) … → TERMINATED
//
// A worker owns one account, one session handle, and one SessionState; no
// other goroutine mutates them. Failures below the worker level (single
// domain, single persistence call) are absorbed and logged; a worker-level
// failure counts against the consecutive-failure budget; exhausting the
// budget or the connect attempt cap terminates the worker, which the
// supervisor observes through Done().
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/senderwatch/accounts"
	"github.com/hazyhaar/senderwatch/backoff"
	"github.com/hazyhaar/senderwatch/stats"
)

// Batch statuses written to the scrape-session audit rows. They mirror the
// statstore constants.
const (
	batchRunning   = "running"
	batchCompleted = "completed"
	batchFailed    = "failed"
)

// Config tunes the worker lifecycle. The defaults reproduce the production
// cadence: hourly cycles, three connect/login attempts, a budget of five
// consecutive failures.
type Config struct {
	// ConnectAttempts caps handle acquisition tries; exhaustion terminates
	// the worker. Default: 3.
	ConnectAttempts int
	// ConnectBackoff is the linear backoff unit between connect attempts.
	// Default: 15s (so 15s, 30s).
	ConnectBackoff time.Duration

	// LoginAttempts caps login tries per authentication pass. Default: 3.
	LoginAttempts int
	// LoginBackoff is the fixed wait between login attempts. Default: 15s.
	LoginBackoff time.Duration

	// MaxConsecutiveFailures is the worker's failure budget. Default: 5.
	MaxConsecutiveFailures int

	// CycleInterval is the sleep between successful batches. Default: 1h.
	CycleInterval time.Duration
	// FailureDelayBase scales the shortened sleep after a failed batch:
	// min(FailureDelayBase*failures, FailureDelayCap). Defaults: 5m / 30m.
	FailureDelayBase time.Duration
	FailureDelayCap  time.Duration

	// SleepTick bounds cancellation latency: every sleep is decomposed
	// into ticks of this size. Default: 30s.
	SleepTick time.Duration

	// LivenessProbeEvery probes the handle every N domains inside a batch.
	// Default: 10.
	LivenessProbeEvery int

	// HeartbeatEvery writes a heartbeat row at most this often during long
	// sleeps. Default: 5m.
	HeartbeatEvery time.Duration
}

func (c *Config) defaults() {
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 3
	}
	if c.ConnectBackoff <= 0 {
		c.ConnectBackoff = 15 * time.Second
	}
	if c.LoginAttempts <= 0 {
		c.LoginAttempts = 3
	}
	if c.LoginBackoff <= 0 {
		c.LoginBackoff = 15 * time.Second
	}
	if c.MaxConsecutiveFailures <= 0 {
		c.MaxConsecutiveFailures = 5
	}
	if c.CycleInterval <= 0 {
		c.CycleInterval = time.Hour
	}
	if c.FailureDelayBase <= 0 {
		c.FailureDelayBase = 5 * time.Minute
	}
	if c.FailureDelayCap <= 0 {
		c.FailureDelayCap = 30 * time.Minute
	}
	if c.SleepTick <= 0 {
		c.SleepTick = 30 * time.Second
	}
	if c.LivenessProbeEvery <= 0 {
		c.LivenessProbeEvery = 10
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = 5 * time.Minute
	}
}

// Status is a point-in-time copy of a worker's SessionState.
type Status struct {
	AccountEmail        string    `json:"account_email"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	CyclesCompleted     int       `json:"cycles_completed"`
	LastScrapeAt        time.Time `json:"last_scrape_at,omitzero"`
	DomainsSeen         int       `json:"domains_seen"`
}

// Worker runs one account's session lifecycle.
type Worker struct {
	account accounts.Account
	client  Client
	store   StatSink // may be nil: degraded mode, snapshots only
	snap    SnapshotSink
	cfg     Config
	log     *slog.Logger

	mu         sync.Mutex
	state      State
	failures   int
	cycles     int
	lastScrape time.Time
	seen       map[string]bool

	done chan struct{}
}

// NewWorker creates a worker with a fresh SessionState. Run must be called
// exactly once.
func NewWorker(acct accounts.Account, client Client, store StatSink, snap SnapshotSink, cfg Config, logger *slog.Logger) *Worker {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		account: acct,
		client:  client,
		store:   store,
		snap:    snap,
		cfg:     cfg,
		log:     logger.With("account", acct.Email),
		state:   Disconnected,
		seen:    make(map[string]bool),
		done:    make(chan struct{}),
	}
}

// Done is closed when the worker reaches TERMINATED. This is the liveness
// signal the supervisor polls.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Status returns a copy of the worker's current state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		AccountEmail:        w.account.Email,
		State:               w.state.String(),
		ConsecutiveFailures: w.failures,
		CyclesCompleted:     w.cycles,
		LastScrapeAt:        w.lastScrape,
		DomainsSeen:         len(w.seen),
	}
}

// Run drives the state machine until termination. It blocks; callers start
// it on its own goroutine and watch Done.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(Terminated)
	defer w.client.Close()

	w.log.Info("worker: starting")

	if err := w.connect(ctx); err != nil {
		// Connect exhaustion is fatal for this worker: escalate to the
		// supervisor by terminating.
		w.log.Error("worker: connect attempts exhausted", "error", err)
		return
	}

	for {
		if ctx.Err() != nil {
			w.log.Info("worker: cancelled")
			return
		}

		w.beat(ctx)

		// The handle is probed before every batch; a dead handle means a
		// fresh CONNECTING pass, failure count preserved.
		if !w.client.Alive(ctx) {
			w.log.Warn("worker: session handle dead, reconnecting")
			w.client.Discard()
			if err := w.connect(ctx); err != nil {
				w.log.Error("worker: reconnect attempts exhausted", "error", err)
				return
			}
		}

		if !w.client.LoggedIn(ctx) {
			w.setState(Authenticating)
			if err := w.login(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				if w.fail("login", err) {
					return
				}
				if !w.sleepAfterFailure(ctx) {
					return
				}
				continue
			}
		}
		w.setState(Authenticated)

		processed, sessionLost, err := w.runBatch(ctx)
		if ctx.Err() != nil {
			return
		}
		if sessionLost {
			// Partial results for this batch are already persisted; drop
			// the handle and reconnect without touching the budget.
			w.log.Warn("worker: session lost mid-batch", "processed", processed)
			w.client.Discard()
			continue
		}
		if err != nil || processed == 0 {
			if w.fail("batch", err) {
				return
			}
			if !w.sleepAfterFailure(ctx) {
				return
			}
			continue
		}

		w.completeCycle(processed)

		w.setState(CoolingDown)
		if !w.sleep(ctx, w.cfg.CycleInterval) {
			return
		}

		// Long idle just ended: refresh the handle proactively. If the
		// refresh drops the session or its authentication, the checks at
		// the top of the loop repair it before any extraction runs.
		if err := w.client.Refresh(ctx); err != nil {
			w.log.Warn("worker: post-idle refresh failed", "error", err)
			w.client.Discard()
		}
	}
}

// connect acquires a fresh session handle with the bounded linear-backoff
// policy.
func (w *Worker) connect(ctx context.Context) error {
	w.setState(Connecting)
	p := backoff.Policy{
		Base:        w.cfg.ConnectBackoff,
		MaxAttempts: w.cfg.ConnectAttempts,
	}
	attempt := 0
	return p.Retry(ctx, func(ctx context.Context) error {
		attempt++
		if err := w.client.Connect(ctx); err != nil {
			w.log.Warn("worker: connect attempt failed",
				"attempt", attempt, "max", w.cfg.ConnectAttempts, "error", err)
			return err
		}
		return nil
	})
}

// login runs the bounded login retry loop. Each attempt is a full
// locate-fields → submit → verify sequence owned by the UI layer.
func (w *Worker) login(ctx context.Context) error {
	p := backoff.Policy{
		Base:        w.cfg.LoginBackoff,
		Cap:         w.cfg.LoginBackoff,
		MaxAttempts: w.cfg.LoginAttempts,
	}
	attempt := 0
	err := p.Retry(ctx, func(ctx context.Context) error {
		attempt++
		if err := w.client.Login(ctx); err != nil {
			w.log.Warn("worker: login attempt failed",
				"attempt", attempt, "max", w.cfg.LoginAttempts, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("login attempts exhausted: %w", err)
	}
	w.log.Info("worker: authenticated")
	return nil
}

// runBatch is one CYCLING pass: enumerate domains, extract each, persist
// each. Per-domain failures are isolated. sessionLost reports a mid-batch
// liveness probe failure; already-persisted results stay valid.
func (w *Worker) runBatch(ctx context.Context) (processed int, sessionLost bool, err error) {
	w.setState(Cycling)

	domains, err := w.client.LocateEntities(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("locate domains: %w", err)
	}
	w.noteNewDomains(domains)

	var sessID int64
	if w.store != nil {
		id, serr := w.store.StartSession(ctx, w.account.Email, len(domains))
		if serr != nil {
			w.log.Warn("worker: open scrape session failed", "error", serr)
		} else {
			sessID = id
		}
	}

	for i, domain := range domains {
		if ctx.Err() != nil {
			break
		}
		if i > 0 && i%w.cfg.LivenessProbeEvery == 0 && !w.client.Alive(ctx) {
			sessionLost = true
			break
		}

		rec, exErr := w.client.Extract(ctx, domain)
		if exErr != nil {
			// Isolated: log against the domain, move on.
			w.log.Warn("worker: extract failed", "domain", domain, "error", exErr)
			continue
		}

		if taker, ok := w.client.(EvidenceTaker); ok && rec.HasData {
			if path, cerr := taker.Capture(ctx, domain); cerr != nil {
				w.log.Debug("worker: evidence capture failed", "domain", domain, "error", cerr)
			} else {
				rec.EvidencePath = path
			}
		}

		w.persist(ctx, rec)
		processed++

		if w.store != nil && sessID != 0 {
			if uerr := w.store.UpdateSession(ctx, sessID, processed, batchRunning); uerr != nil {
				w.log.Debug("worker: session progress update failed", "error", uerr)
			}
		}
	}

	if w.store != nil && sessID != 0 {
		status := batchCompleted
		if sessionLost || ctx.Err() != nil || processed == 0 {
			status = batchFailed
		}
		if uerr := w.store.UpdateSession(ctx, sessID, processed, status); uerr != nil {
			w.log.Warn("worker: close scrape session failed", "error", uerr)
		}
	}

	return processed, sessionLost, nil
}

// persist writes one record to both stores. Neither failure aborts the
// cycle: the stat store degrades to snapshots, and vice versa.
func (w *Worker) persist(ctx context.Context, rec *stats.Record) {
	if w.store != nil {
		if err := w.store.Upsert(ctx, rec); err != nil {
			w.log.Warn("worker: stat upsert failed", "domain", rec.Domain, "error", err)
		}
	}
	if w.snap != nil {
		if err := w.snap(rec.Domain, rec.AccountEmail, rec); err != nil {
			w.log.Warn("worker: snapshot merge failed", "domain", rec.Domain, "error", err)
		}
	}
}

// noteNewDomains tracks the seen set and logs newly appeared domains.
func (w *Worker) noteNewDomains(domains []string) {
	w.mu.Lock()
	var fresh []string
	for _, d := range domains {
		if !w.seen[d] {
			w.seen[d] = true
			fresh = append(fresh, d)
		}
	}
	cycles := w.cycles
	w.mu.Unlock()

	if len(fresh) > 0 && cycles > 0 {
		w.log.Info("worker: new domains detected", "domains", fresh)
	}
}

// fail records a worker-level failure and reports whether the budget is
// exhausted.
func (w *Worker) fail(op string, err error) bool {
	w.mu.Lock()
	w.failures++
	n := w.failures
	w.mu.Unlock()

	w.log.Warn("worker: cycle failure",
		"op", op, "consecutive_failures", n,
		"max", w.cfg.MaxConsecutiveFailures, "error", err)

	if n >= w.cfg.MaxConsecutiveFailures {
		w.log.Error("worker: failure budget exhausted, terminating")
		return true
	}
	return false
}

func (w *Worker) completeCycle(processed int) {
	w.mu.Lock()
	w.failures = 0
	w.cycles++
	w.lastScrape = time.Now()
	cycles := w.cycles
	w.mu.Unlock()

	w.log.Info("worker: cycle completed", "processed", processed, "cycles", cycles)
}

// sleepAfterFailure waits min(FailureDelayBase*failures, FailureDelayCap)
// so a failing worker retries sooner than the hourly cadence, but with
// bounded aggressiveness.
func (w *Worker) sleepAfterFailure(ctx context.Context) bool {
	w.mu.Lock()
	n := w.failures
	w.mu.Unlock()

	p := backoff.Policy{Base: w.cfg.FailureDelayBase, Cap: w.cfg.FailureDelayCap}
	d := p.Delay(n)
	w.log.Info("worker: retrying after failure delay", "delay", d)
	return w.sleep(ctx, d)
}

// sleep waits for d in SleepTick increments so cancellation is honoured
// within one tick. Returns false when cancelled.
func (w *Worker) sleep(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	lastBeat := time.Now()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		tick := w.cfg.SleepTick
		if remaining < tick {
			tick = remaining
		}

		t := time.NewTimer(tick)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}

		if time.Since(lastBeat) >= w.cfg.HeartbeatEvery {
			w.beat(ctx)
			lastBeat = time.Now()
		}
	}
}

// beat writes a heartbeat row; failures are debug-level noise.
func (w *Worker) beat(ctx context.Context) {
	if w.store == nil {
		return
	}
	w.mu.Lock()
	state := w.state.String()
	cycles := w.cycles
	w.mu.Unlock()

	if err := w.store.WriteHeartbeat(ctx, w.account.Email, state, cycles); err != nil {
		w.log.Debug("worker: heartbeat write failed", "error", err)
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}
