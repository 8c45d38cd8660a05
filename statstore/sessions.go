package statstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Session statuses.
const (
	SessionRunning   = "running"
	SessionCompleted = "completed"
	SessionFailed    = "failed"
)

// ScrapeSession is one audit row covering a worker's pass over its domains.
type ScrapeSession struct {
	ID               int64      `json:"id"`
	AccountEmail     string     `json:"account_email"`
	StartedAt        time.Time  `json:"started_at"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	DomainsTotal     int        `json:"domains_total"`
	DomainsProcessed int        `json:"domains_processed"`
	Status           string     `json:"status"`
}

// StartSession opens an audit row for a new scrape batch and bumps the
// account's usage counters.
func (s *Store) StartSession(ctx context.Context, accountEmail string, domainsTotal int) (int64, error) {
	now := time.Now().UnixMilli()

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO scraper_accounts (email, name, last_used, total_sessions, created_at)
		VALUES (?, ?, ?, 1, ?)
		ON CONFLICT(email) DO UPDATE SET
			last_used = excluded.last_used,
			total_sessions = scraper_accounts.total_sessions + 1`,
		accountEmail, "Account "+accountEmail, now, now)
	if err != nil {
		return 0, fmt.Errorf("statstore: touch account %s: %w", accountEmail, err)
	}

	res, err := s.DB.ExecContext(ctx, `
		INSERT INTO scrape_sessions (account_email, started_at, domains_total, status)
		VALUES (?, ?, ?, ?)`,
		accountEmail, now, domainsTotal, SessionRunning)
	if err != nil {
		return 0, fmt.Errorf("statstore: start session %s: %w", accountEmail, err)
	}
	return res.LastInsertId()
}

// UpdateSession records batch progress. A terminal status (completed or
// failed) also stamps ended_at.
func (s *Store) UpdateSession(ctx context.Context, id int64, processed int, status string) error {
	if status == SessionCompleted || status == SessionFailed {
		_, err := s.DB.ExecContext(ctx, `
			UPDATE scrape_sessions SET domains_processed=?, status=?, ended_at=?
			WHERE id=?`,
			processed, status, time.Now().UnixMilli(), id)
		if err != nil {
			return fmt.Errorf("statstore: close session %d: %w", id, err)
		}
		return nil
	}
	_, err := s.DB.ExecContext(ctx, `
		UPDATE scrape_sessions SET domains_processed=?, status=? WHERE id=?`,
		processed, status, id)
	if err != nil {
		return fmt.Errorf("statstore: update session %d: %w", id, err)
	}
	return nil
}

// GetSession returns one audit row, or nil when it does not exist.
func (s *Store) GetSession(ctx context.Context, id int64) (*ScrapeSession, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT id, account_email, started_at, ended_at, domains_total, domains_processed, status
		FROM scrape_sessions WHERE id = ?`, id)

	var sess ScrapeSession
	var started int64
	var ended sql.NullInt64
	err := row.Scan(&sess.ID, &sess.AccountEmail, &started, &ended,
		&sess.DomainsTotal, &sess.DomainsProcessed, &sess.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statstore: get session %d: %w", id, err)
	}
	sess.StartedAt = time.UnixMilli(started)
	if ended.Valid {
		t := time.UnixMilli(ended.Int64)
		sess.EndedAt = &t
	}
	return &sess, nil
}

// RecentSessions lists the newest audit rows for an account (all accounts
// when accountEmail is empty).
func (s *Store) RecentSessions(ctx context.Context, accountEmail string, limit int) ([]*ScrapeSession, error) {
	if limit <= 0 {
		limit = 20
	}
	q := `SELECT id, account_email, started_at, ended_at, domains_total, domains_processed, status
		FROM scrape_sessions`
	var args []any
	if accountEmail != "" {
		q += ` WHERE account_email = ?`
		args = append(args, accountEmail)
	}
	q += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("statstore: recent sessions: %w", err)
	}
	defer rows.Close()

	var out []*ScrapeSession
	for rows.Next() {
		var sess ScrapeSession
		var started int64
		var ended sql.NullInt64
		if err := rows.Scan(&sess.ID, &sess.AccountEmail, &started, &ended,
			&sess.DomainsTotal, &sess.DomainsProcessed, &sess.Status); err != nil {
			return nil, fmt.Errorf("statstore: scan session: %w", err)
		}
		sess.StartedAt = time.UnixMilli(started)
		if ended.Valid {
			t := time.UnixMilli(ended.Int64)
			sess.EndedAt = &t
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}
