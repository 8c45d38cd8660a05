// Package senderhub drives the Sender Hub dashboard UI for one account:
// login, domain enumeration, per-domain stat extraction, and evidence
// capture. It is the production implementation of the session collaborator
// interfaces; everything selector-shaped lives here so the worker never
// sees the DOM.
package senderhub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/senderwatch/accounts"
	"github.com/hazyhaar/senderwatch/browser"
)

// Config parameterises one dashboard client.
type Config struct {
	// Account provides the credentials typed into the login form.
	Account accounts.Account
	// BaseURL is the dashboard origin. Default: https://senders.yahooinc.com.
	BaseURL string
	// EvidenceDir receives per-domain screenshots. Empty disables capture.
	EvidenceDir string
	// InsightsRangeDays is the insights window requested per domain.
	// Default: 180.
	InsightsRangeDays int
	// StepTimeout bounds each individual UI step. Default: 30s.
	StepTimeout time.Duration
	// Browser configures the underlying automation session.
	Browser browser.Config
	Logger  *slog.Logger
}

func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://senders.yahooinc.com"
	}
	if c.InsightsRangeDays <= 0 {
		c.InsightsRangeDays = 180
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Client holds one account's browser handle and the UI flows on top of it.
// Methods are safe for the single-worker access pattern; the mutex only
// guards handle swaps against concurrent Alive probes.
type Client struct {
	cfg Config
	log *slog.Logger

	mu   sync.Mutex
	sess *browser.Session
}

// NewClient builds a client. No browser is started until Connect.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg: cfg,
		log: cfg.Logger.With("account", cfg.Account.Email),
	}
}

// Connect starts a fresh browser session and lands on the dashboard origin.
// One attempt; the caller owns retries.
func (c *Client) Connect(ctx context.Context) error {
	sess, err := browser.Connect(ctx, c.cfg.Browser)
	if err != nil {
		return fmt.Errorf("senderhub: connect: %w", err)
	}
	if err := sess.Navigate(ctx, c.cfg.BaseURL); err != nil {
		sess.Close()
		return fmt.Errorf("senderhub: initial navigation: %w", err)
	}

	c.mu.Lock()
	old := c.sess
	c.sess = sess
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	c.log.Info("senderhub: session connected")
	return nil
}

// Alive probes the current handle. A missing handle is simply dead.
func (c *Client) Alive(ctx context.Context) bool {
	sess := c.session()
	return sess != nil && sess.Alive(ctx)
}

// Refresh reloads the current page to keep the session warm across the
// hourly idle. Authentication is re-checked by the caller afterwards.
func (c *Client) Refresh(ctx context.Context) error {
	sess := c.session()
	if sess == nil {
		return fmt.Errorf("senderhub: refresh: no session")
	}
	if err := sess.Refresh(ctx); err != nil {
		return fmt.Errorf("senderhub: refresh: %w", err)
	}
	return nil
}

// Discard drops the current handle so the next Connect starts clean.
func (c *Client) Discard() {
	c.mu.Lock()
	sess := c.sess
	c.sess = nil
	c.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// Close releases the browser.
func (c *Client) Close() error {
	c.Discard()
	return nil
}

func (c *Client) session() *browser.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

// page returns the current page bound to a step-scoped context, or an
// error when no session is up.
func (c *Client) page(ctx context.Context) (*rod.Page, context.CancelFunc, error) {
	sess := c.session()
	if sess == nil {
		return nil, nil, fmt.Errorf("senderhub: no session")
	}
	stepCtx, cancel := context.WithTimeout(ctx, c.cfg.StepTimeout)
	return sess.Page().Context(stepCtx), cancel, nil
}
