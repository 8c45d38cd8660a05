package statstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hazyhaar/senderwatch/stats"
)

// Row is the durable form of a stats.Record, keyed by
// (account_email, domain_name, captured_date).
type Row struct {
	ID                  int64     `json:"id"`
	AccountEmail        string    `json:"account_email"`
	Domain              string    `json:"domain"`
	Status              string    `json:"status"`
	Verified            bool      `json:"verified"`
	AddedDate           string    `json:"added_date,omitempty"`
	CapturedAt          time.Time `json:"captured_at"`
	CapturedDate        string    `json:"captured_date"`
	DeliveredCount      *int64    `json:"delivered_count,omitempty"`
	DeliveredPercentage string    `json:"delivered_percentage,omitempty"`
	ComplaintRate       *float64  `json:"complaint_rate,omitempty"`
	ComplaintPercentage string    `json:"complaint_percentage,omitempty"`
	ComplaintTrend      string    `json:"complaint_trend,omitempty"`
	TimeRange           string    `json:"time_range,omitempty"`
	InsightsJSON        string    `json:"insights_json,omitempty"`
	EvidencePath        string    `json:"evidence_path,omitempty"`
	HasData             bool      `json:"has_data"`
	CreatedAt           time.Time `json:"created_at"`
}

const statCols = `id, account_email, domain_name, status, verified, added_date,
	captured_at, captured_date, delivered_count, delivered_percentage,
	complaint_rate, complaint_percentage, complaint_trend, time_range,
	insights_json, evidence_path, has_data, created_at`

// Upsert stores a record, replacing any existing row for the same
// account×domain×day. Every field is overwritten and created_at is bumped:
// the table holds the latest known state per key, not a time series.
func (s *Store) Upsert(ctx context.Context, r *stats.Record) error {
	if r.AccountEmail == "" || r.Domain == "" {
		return fmt.Errorf("statstore: upsert: account_email and domain are required")
	}

	insights := "{}"
	if len(r.Insights) > 0 {
		if data, err := json.Marshal(r.Insights); err == nil {
			insights = string(data)
		}
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO domain_stats (
			account_email, domain_name, status, verified, added_date,
			captured_at, captured_date, delivered_count, delivered_percentage,
			complaint_rate, complaint_percentage, complaint_trend, time_range,
			insights_json, evidence_path, has_data, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(account_email, domain_name, captured_date) DO UPDATE SET
			status = excluded.status,
			verified = excluded.verified,
			added_date = excluded.added_date,
			captured_at = excluded.captured_at,
			delivered_count = excluded.delivered_count,
			delivered_percentage = excluded.delivered_percentage,
			complaint_rate = excluded.complaint_rate,
			complaint_percentage = excluded.complaint_percentage,
			complaint_trend = excluded.complaint_trend,
			time_range = excluded.time_range,
			insights_json = excluded.insights_json,
			evidence_path = excluded.evidence_path,
			has_data = excluded.has_data,
			created_at = excluded.created_at`,
		r.AccountEmail, r.Domain, r.Status, r.Verified, r.AddedDate,
		r.CapturedAt.UnixMilli(), r.Date(), r.DeliveredCount, r.DeliveredPercentage,
		r.ComplaintRate, r.ComplaintPercentage, r.ComplaintTrend, r.TimeRange,
		insights, r.EvidencePath, r.HasData, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("statstore: upsert %s/%s: %w", r.AccountEmail, r.Domain, err)
	}
	return nil
}

// Latest returns the most recent row for a domain, optionally restricted to
// one account. Returns nil, nil when the domain has never been scraped.
func (s *Store) Latest(ctx context.Context, domain, accountEmail string) (*Row, error) {
	q := `SELECT ` + statCols + ` FROM domain_stats WHERE domain_name = ?`
	args := []any{domain}
	if accountEmail != "" {
		q += ` AND account_email = ?`
		args = append(args, accountEmail)
	}
	q += ` ORDER BY captured_at DESC, id DESC LIMIT 1`

	row := s.DB.QueryRowContext(ctx, q, args...)
	r, err := scanRow(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statstore: latest %s: %w", domain, err)
	}
	return r, nil
}

// LatestAll returns at most one row per distinct domain: the row with the
// maximum captured_at, ties broken by row id so the result is deterministic.
func (s *Store) LatestAll(ctx context.Context, accountEmail string, limit int) ([]*Row, error) {
	if limit <= 0 {
		limit = 100
	}

	var q string
	var args []any
	if accountEmail != "" {
		q = `SELECT ` + statCols + ` FROM domain_stats d
			WHERE d.account_email = ?
			  AND d.id = (
				SELECT i.id FROM domain_stats i
				WHERE i.domain_name = d.domain_name AND i.account_email = ?
				ORDER BY i.captured_at DESC, i.id DESC LIMIT 1)
			ORDER BY d.captured_at DESC LIMIT ?`
		args = []any{accountEmail, accountEmail, limit}
	} else {
		q = `SELECT ` + statCols + ` FROM domain_stats d
			WHERE d.id = (
				SELECT i.id FROM domain_stats i
				WHERE i.domain_name = d.domain_name
				ORDER BY i.captured_at DESC, i.id DESC LIMIT 1)
			ORDER BY d.captured_at DESC LIMIT ?`
		args = []any{limit}
	}

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("statstore: latest all: %w", err)
	}
	defer rows.Close()

	var out []*Row
	for rows.Next() {
		r, err := scanRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("statstore: latest all: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRow(scan func(...any) error) (*Row, error) {
	var r Row
	var verified, hasData int
	var capturedAt, createdAt int64
	err := scan(
		&r.ID, &r.AccountEmail, &r.Domain, &r.Status, &verified, &r.AddedDate,
		&capturedAt, &r.CapturedDate, &r.DeliveredCount, &r.DeliveredPercentage,
		&r.ComplaintRate, &r.ComplaintPercentage, &r.ComplaintTrend, &r.TimeRange,
		&r.InsightsJSON, &r.EvidencePath, &hasData, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	r.Verified = verified != 0
	r.HasData = hasData != 0
	r.CapturedAt = time.UnixMilli(capturedAt)
	r.CreatedAt = time.UnixMilli(createdAt)
	return &r, nil
}
