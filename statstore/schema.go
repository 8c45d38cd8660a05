package statstore

// Schema is the complete scraper schema. The UNIQUE constraint on
// domain_stats(account_email, domain_name, captured_date) is load-bearing:
// Upsert relies on it to keep exactly one row per account×domain×day.
const Schema = `
-- Deduplicated per-day statistics, last write wins
CREATE TABLE IF NOT EXISTS domain_stats (
    id                   INTEGER PRIMARY KEY AUTOINCREMENT,
    account_email        TEXT NOT NULL,
    domain_name          TEXT NOT NULL,
    status               TEXT NOT NULL DEFAULT '',
    verified             INTEGER NOT NULL DEFAULT 0,
    added_date           TEXT NOT NULL DEFAULT '',
    captured_at          INTEGER NOT NULL,
    captured_date        TEXT NOT NULL,
    delivered_count      INTEGER,
    delivered_percentage TEXT NOT NULL DEFAULT '',
    complaint_rate       REAL,
    complaint_percentage TEXT NOT NULL DEFAULT '',
    complaint_trend      TEXT NOT NULL DEFAULT '',
    time_range           TEXT NOT NULL DEFAULT '',
    insights_json        TEXT NOT NULL DEFAULT '{}',
    evidence_path        TEXT NOT NULL DEFAULT '',
    has_data             INTEGER NOT NULL DEFAULT 1,
    created_at           INTEGER NOT NULL,
    UNIQUE(account_email, domain_name, captured_date)
);
CREATE INDEX IF NOT EXISTS idx_domain_stats_domain ON domain_stats(domain_name, captured_at DESC);
CREATE INDEX IF NOT EXISTS idx_domain_stats_account ON domain_stats(account_email, captured_at DESC);

-- Scrape session audit trail, one row per worker batch
CREATE TABLE IF NOT EXISTS scrape_sessions (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    account_email      TEXT NOT NULL,
    started_at         INTEGER NOT NULL,
    ended_at           INTEGER,
    domains_total      INTEGER NOT NULL DEFAULT 0,
    domains_processed  INTEGER NOT NULL DEFAULT 0,
    status             TEXT NOT NULL DEFAULT 'running'
);
CREATE INDEX IF NOT EXISTS idx_scrape_sessions_account ON scrape_sessions(account_email, started_at DESC);

-- Per-account usage tracking
CREATE TABLE IF NOT EXISTS scraper_accounts (
    email          TEXT PRIMARY KEY,
    name           TEXT NOT NULL DEFAULT '',
    last_used      INTEGER,
    total_sessions INTEGER NOT NULL DEFAULT 0,
    created_at     INTEGER NOT NULL
);

-- API keys for the read-side HTTP endpoints
CREATE TABLE IF NOT EXISTS api_keys (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    api_key    TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL DEFAULT '',
    active     INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL,
    last_used  INTEGER
);

-- Worker liveness probes
CREATE TABLE IF NOT EXISTS worker_heartbeats (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    worker_name   TEXT NOT NULL,
    hostname      TEXT NOT NULL DEFAULT '',
    worker_pid    INTEGER NOT NULL DEFAULT 0,
    state         TEXT NOT NULL DEFAULT '',
    cycles        INTEGER NOT NULL DEFAULT 0,
    timestamp     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker ON worker_heartbeats(worker_name, timestamp DESC);
`
