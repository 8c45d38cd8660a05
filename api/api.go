// Package api exposes the read-only HTTP surface: latest per-domain stats,
// single-domain lookups, merged snapshot documents, scrape history, and
// fleet health. Everything under /api/v1 requires an active API key;
// /healthz does not.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/senderwatch/snapshot"
	"github.com/hazyhaar/senderwatch/statstore"
	"github.com/hazyhaar/senderwatch/supervisor"
)

// FleetStatus reports the supervisor's current view of the worker fleet.
type FleetStatus func() []supervisor.WorkerStatus

// Config parameterises the HTTP server.
type Config struct {
	// Listen is the bind address. Default: :8600.
	Listen string
	// ReadTimeout / WriteTimeout bound request handling. Defaults: 10s / 30s.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8600"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Server serves the read API over the stat store and snapshot store.
type Server struct {
	cfg   Config
	log   *slog.Logger
	store *statstore.Store
	snaps *snapshot.Store
	fleet FleetStatus

	httpServer *http.Server
}

// NewServer assembles the router. fleet may be nil; the fleet endpoint
// then reports an empty list.
func NewServer(cfg Config, store *statstore.Store, snaps *snapshot.Store, fleet FleetStatus) *Server {
	cfg.defaults()
	s := &Server{
		cfg:   cfg,
		log:   cfg.Logger,
		store: store,
		snaps: snaps,
		fleet: fleet,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Listen,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the chi mux. Exposed separately so tests can drive it
// through httptest without binding a port.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/domains", s.handleDomains)
		r.Get("/domains/{domain}", s.handleDomain)
		r.Get("/domains/{domain}/snapshot", s.handleSnapshot)
		r.Get("/sessions", s.handleSessions)
		r.Get("/fleet", s.handleFleet)
	})
	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("api: listening", "addr", s.cfg.Listen)
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("api: shutdown: %w", err)
		}
		return nil
	}
}
