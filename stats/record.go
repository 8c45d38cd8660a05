// Package stats defines the statistics record produced by one extraction
// of one entity (domain) under one account. It is the exchange type between
// the UI extraction layer, the SQLite store, and the snapshot documents.
package stats

import "time"

// Record is the result of extracting one domain's statistics from the
// dashboard under one account's session.
//
// DeliveredCount and ComplaintRate are pointers: the dashboard omits metrics
// for low-volume domains, and an absent metric must stay distinguishable
// from zero so snapshot aggregation can exclude it from averages.
type Record struct {
	AccountEmail string    `json:"account_email"`
	Domain       string    `json:"domain"`
	CapturedAt   time.Time `json:"captured_at"`

	Status    string `json:"status"`
	Verified  bool   `json:"verified"`
	AddedDate string `json:"added_date,omitempty"`

	DeliveredCount      *int64   `json:"delivered_count,omitempty"`
	DeliveredPercentage string   `json:"delivered_percentage,omitempty"`
	ComplaintRate       *float64 `json:"complaint_rate,omitempty"`
	ComplaintPercentage string   `json:"complaint_percentage,omitempty"`
	ComplaintTrend      string   `json:"complaint_trend,omitempty"`

	TimeRange string `json:"time_range,omitempty"`

	// Insights is the opaque structured payload scraped from the insights
	// panel. Persisted as JSON, never interpreted by the core.
	Insights map[string]any `json:"insights,omitempty"`

	// EvidencePath points to a captured screenshot, empty when capture
	// failed or was disabled.
	EvidencePath string `json:"evidence_path,omitempty"`

	// HasData is false when the dashboard showed its "no data" state for
	// the domain. A no-data record is still a valid, persistable result.
	HasData bool `json:"has_data"`
}

// Date returns the UTC calendar day of the capture, the third component of
// the persistence key.
func (r *Record) Date() string {
	return r.CapturedAt.UTC().Format("2006-01-02")
}

// NoData returns a persistable record for a domain whose dashboard page
// showed no statistics.
func NoData(accountEmail, domain string, capturedAt time.Time) *Record {
	return &Record{
		AccountEmail: accountEmail,
		Domain:       domain,
		CapturedAt:   capturedAt,
		HasData:      false,
	}
}

// Int64 returns a pointer to v, for building records with present metrics.
func Int64(v int64) *int64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
