// Package senderwatch assembles the full service: account credentials, the
// SQLite stat store, per-domain snapshot documents, one supervised browser
// worker per account, and the read API.
package senderwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/senderwatch/accounts"
	"github.com/hazyhaar/senderwatch/api"
	"github.com/hazyhaar/senderwatch/browser"
	"github.com/hazyhaar/senderwatch/senderhub"
	"github.com/hazyhaar/senderwatch/session"
	"github.com/hazyhaar/senderwatch/snapshot"
	"github.com/hazyhaar/senderwatch/stats"
	"github.com/hazyhaar/senderwatch/statstore"
	"github.com/hazyhaar/senderwatch/supervisor"
)

// heartbeat rows older than this are purged by the janitor.
const heartbeatRetention = 7 * 24 * time.Hour

// Service is the assembled senderwatch instance.
type Service struct {
	cfg   *Config
	log   *slog.Logger
	store *statstore.Store
	snaps *snapshot.Store
	sup   *supervisor.Supervisor
	api   *api.Server
}

// New wires a service from configuration. Missing credentials are fatal
// here, not at first scrape.
func New(cfg *Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	accts, err := accounts.Load(cfg.AccountsFile)
	if err != nil {
		if errors.Is(err, accounts.ErrNoAccounts) {
			return nil, fmt.Errorf("senderwatch: no usable accounts configured: %w", err)
		}
		return nil, fmt.Errorf("senderwatch: load accounts: %w", err)
	}
	enabled := accts[:0:0]
	for _, a := range accts {
		if a.Enabled {
			enabled = append(enabled, a)
		}
	}
	if len(enabled) == 0 {
		return nil, fmt.Errorf("senderwatch: all configured accounts are disabled")
	}

	store, err := statstore.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("senderwatch: open stat store: %w", err)
	}
	snaps := snapshot.NewStore(cfg.DataDir)

	s := &Service{
		cfg:   cfg,
		log:   logger,
		store: store,
		snaps: snaps,
	}

	s.sup = supervisor.New(enabled, s.workerFactory, supervisor.Config{
		Poll:        cfg.Supervisor.Poll(),
		Cooldown:    cfg.Supervisor.Cooldown(),
		Stagger:     cfg.Supervisor.Stagger(),
		MaxRestarts: cfg.Supervisor.MaxRestarts,
	}, logger)

	if cfg.Listen != "" {
		s.api = api.NewServer(api.Config{Listen: cfg.Listen, Logger: logger},
			store, snaps, s.sup.Status)
	}

	logger.Info("senderwatch: service assembled",
		"accounts", len(enabled), "db", cfg.DBPath, "api", cfg.Listen != "")
	return s, nil
}

// workerFactory builds a fresh worker around a fresh dashboard client.
// Called by the supervisor at spawn and at every restart.
func (s *Service) workerFactory(acct accounts.Account) (supervisor.Worker, error) {
	client := senderhub.NewClient(senderhub.Config{
		Account:           acct,
		BaseURL:           s.cfg.DashboardURL,
		EvidenceDir:       s.cfg.EvidenceDir,
		InsightsRangeDays: s.cfg.Worker.InsightsRangeDays,
		Browser: browser.Config{
			RemoteURL: s.cfg.BrowserURL,
			Headless:  s.cfg.Headless,
			Logger:    s.log,
		},
		Logger: s.log,
	})

	sink := func(domain, accountEmail string, r *stats.Record) error {
		_, err := s.snaps.Merge(domain, accountEmail, r)
		return err
	}

	w := session.NewWorker(acct, client, s.store, sink, session.Config{
		CycleInterval:          s.cfg.Worker.CycleInterval(),
		MaxConsecutiveFailures: s.cfg.Worker.MaxConsecutiveFailures,
		ConnectAttempts:        s.cfg.Worker.ConnectAttempts,
		LoginAttempts:          s.cfg.Worker.LoginAttempts,
	}, s.log)
	return w, nil
}

// Run starts the fleet, the API server, and the heartbeat janitor, and
// blocks until ctx is cancelled or the fleet is exhausted.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)

	if s.api != nil {
		go func() { errc <- s.api.ListenAndServe(ctx) }()
	}
	go s.janitor(ctx)

	go func() { errc <- s.sup.Run(ctx) }()

	err := <-errc
	cancel()

	// Drain the other runner so its shutdown completes before Close.
	if s.api != nil {
		<-errc
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// janitor trims stale heartbeat rows hourly.
func (s *Service) janitor(ctx context.Context) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.store.CleanupHeartbeats(ctx, heartbeatRetention)
			if err != nil {
				s.log.Warn("senderwatch: heartbeat cleanup failed", "error", err)
			} else if n > 0 {
				s.log.Debug("senderwatch: heartbeats trimmed", "rows", n)
			}
		}
	}
}

// Close releases the stat store.
func (s *Service) Close() error {
	return s.store.Close()
}
