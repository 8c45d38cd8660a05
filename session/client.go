package session

import (
	"context"

	"github.com/hazyhaar/senderwatch/stats"
)

// Dialer manages the automation session handle. Connect is a single
// acquisition attempt; the worker owns the retry policy around it.
type Dialer interface {
	Connect(ctx context.Context) error
	// Alive probes the current handle without side effects.
	Alive(ctx context.Context) bool
	// Refresh reloads the session surface. Authentication must be
	// re-verified by the caller afterwards.
	Refresh(ctx context.Context) error
	// Discard drops the current handle so the next Connect starts clean.
	Discard()
	Close() error
}

// Authenticator drives the dashboard login. The worker only consumes the
// outcome; selector and navigation details stay in the UI layer.
type Authenticator interface {
	// LoggedIn reports whether the session currently looks authenticated.
	// Deliberately tolerant: any one of the UI layer's indicators passing
	// is enough.
	LoggedIn(ctx context.Context) bool
	// Login runs one full locate-fields → submit → verify sequence.
	Login(ctx context.Context) error
}

// Extractor enumerates and extracts the account's domains. A no-data page
// is a valid record (HasData=false), not an error.
type Extractor interface {
	LocateEntities(ctx context.Context) ([]string, error)
	Extract(ctx context.Context, domain string) (*stats.Record, error)
}

// EvidenceTaker optionally captures visual evidence for a domain. Failure
// is non-fatal; the record simply carries no evidence path.
type EvidenceTaker interface {
	Capture(ctx context.Context, domain string) (string, error)
}

// Client bundles the roles one account session exposes to its worker.
// The production implementation is senderhub.Client; tests use fakes.
type Client interface {
	Dialer
	Authenticator
	Extractor
}

// StatSink is the durable store surface the worker writes to. All methods
// degrade to logged warnings on failure: persistence trouble never aborts
// a scrape cycle.
type StatSink interface {
	Upsert(ctx context.Context, r *stats.Record) error
	StartSession(ctx context.Context, accountEmail string, domainsTotal int) (int64, error)
	UpdateSession(ctx context.Context, id int64, processed int, status string) error
	WriteHeartbeat(ctx context.Context, workerName, state string, cycles int) error
}

// SnapshotSink merges one record into the cross-account snapshot document
// for a domain.
type SnapshotSink func(domain, accountEmail string, r *stats.Record) error
