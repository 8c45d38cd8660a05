// Package browser manages the Chrome automation session handle owned by one
// scraper worker: launch, Rod connect, liveness probe, page refresh, and
// teardown. Each worker gets its own Session; handles are never shared.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Config configures a browser session.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless controls the Chrome mode. Default: true.
	Headless *bool

	// WindowWidth/WindowHeight set the viewport. Default: 1920x1080.
	WindowWidth  int
	WindowHeight int

	// UserAgent overrides Chrome's default UA string.
	UserAgent string

	// NavigateTimeout bounds Navigate + load wait. Default: 45s.
	NavigateTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Headless == nil {
		v := true
		c.Headless = &v
	}
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.NavigateTimeout <= 0 {
		c.NavigateTimeout = 45 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Session is one worker's exclusive Chrome handle: a browser process plus a
// single stealth page the whole scrape cycle runs on.
type Session struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	startAt time.Time
}

// Connect launches Chrome (or attaches to RemoteURL), connects Rod, and
// opens the stealth page. One call is one attempt; the caller owns retries.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	cfg.defaults()
	log := cfg.Logger

	var wsURL string
	var lnch *launcher.Launcher

	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(*cfg.Headless).
			Set("disable-blink-features", "AutomationControlled").
			Set("no-sandbox").
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("window-size", fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight)).
			Set("incognito")
		if cfg.UserAgent != "" {
			l = l.Set("user-agent", cfg.UserAgent)
		}

		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
	}

	b := rod.New().Context(ctx).ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		if lnch != nil {
			lnch.Cleanup()
		}
		return nil, fmt.Errorf("browser: stealth page: %w", err)
	}

	log.Info("browser: session ready", "headless", *cfg.Headless)
	return &Session{
		cfg:     cfg,
		browser: b,
		lnch:    lnch,
		page:    page,
		startAt: time.Now(),
	}, nil
}

// Page returns the session's page for the UI flow layer.
func (s *Session) Page() *rod.Page {
	return s.page
}

// Uptime reports how long the Chrome process has been up.
func (s *Session) Uptime() time.Duration {
	return time.Since(s.startAt)
}

// Alive probes the handle: a dead or wedged Chrome fails the page info
// query. Used before each batch and opportunistically inside long batches.
func (s *Session) Alive(ctx context.Context) bool {
	if s == nil || s.page == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.page.Context(probeCtx).Info()
	return err == nil
}

// Navigate loads a URL on the session page and waits for the load event,
// bounded by NavigateTimeout.
func (s *Session) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	if err := s.page.Context(navCtx).Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := s.page.Context(navCtx).WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return nil
}

// Refresh reloads the current page. The caller must re-verify authentication
// afterwards: a reload can drop the dashboard session.
func (s *Session) Refresh(ctx context.Context) error {
	navCtx, cancel := context.WithTimeout(ctx, s.cfg.NavigateTimeout)
	defer cancel()

	if err := s.page.Context(navCtx).Reload(); err != nil {
		return fmt.Errorf("browser: reload: %w", err)
	}
	if err := s.page.Context(navCtx).WaitLoad(); err != nil {
		s.cfg.Logger.Warn("browser: wait load after reload", "error", err)
	}
	return nil
}

// Close tears down the page, the browser connection, and the launched
// Chrome process.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}
	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		s.browser.Close()
		s.browser = nil
	}
	if s.lnch != nil {
		s.lnch.Cleanup()
		s.lnch = nil
	}
	return nil
}
