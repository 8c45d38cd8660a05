package senderhub

import (
	"testing"
	"time"
)

func TestAuthenticatedURL(t *testing.T) {
	cases := []struct {
		url  string
		want bool
	}{
		{"https://senders.yahooinc.com/dashboard/domains", true},
		{"https://senders.yahooinc.com/dashboard", true},
		{"https://senders.yahooinc.com/feature-management", true},
		{"https://senders.yahooinc.com/", false},
		{"https://login.yahoo.com/?done=dashboard", false},
		{"https://evil.example.com/dashboard", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := authenticatedURL(tc.url); got != tc.want {
			t.Errorf("authenticatedURL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestParseCount(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"12,345", 12345},
		{"123", 123},
		{"1.2K", 1200},
		{"3.4M", 3400000},
		{"2B", 2000000000},
		{" 987 ", 987},
		{"1,234,567", 1234567},
	}
	for _, tc := range cases {
		got, err := parseCount(tc.in)
		if err != nil {
			t.Errorf("parseCount(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseCount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}

	for _, bad := range []string{"", "n/a", "--"} {
		if _, err := parseCount(bad); err == nil {
			t.Errorf("parseCount(%q) succeeded, want error", bad)
		}
	}
}

func TestParsePercent(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"0.05%", 0.05},
		{"< 0.01%", 0.01},
		{"<0.01%", 0.01},
		{"1.2 %", 1.2},
		{"3", 3},
	}
	for _, tc := range cases {
		got, err := parsePercent(tc.in)
		if err != nil {
			t.Errorf("parsePercent(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parsePercent(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if _, err := parsePercent("pending"); err == nil {
		t.Error("parsePercent(pending) succeeded, want error")
	}
}

func TestBuildRecordFullTiles(t *testing.T) {
	pm := pageMetrics{
		Verified: true,
		Metrics: map[string]string{
			"delivered":      "1.2K",
			"delivery rate":  "98.5%",
			"complaint rate": "0.05%",
			"trend":          "stable",
			"added":          "2025-01-15",
			"status":         "Active",
		},
	}
	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	rec := buildRecord("a@example.com", "example.com", pm, at)

	if !rec.HasData {
		t.Fatal("HasData = false for populated tiles")
	}
	if !rec.Verified {
		t.Error("Verified not carried")
	}
	if rec.DeliveredCount == nil || *rec.DeliveredCount != 1200 {
		t.Errorf("DeliveredCount = %v, want 1200", rec.DeliveredCount)
	}
	if rec.ComplaintRate == nil || *rec.ComplaintRate != 0.05 {
		t.Errorf("ComplaintRate = %v, want 0.05", rec.ComplaintRate)
	}
	if rec.ComplaintPercentage != "0.05%" {
		t.Errorf("ComplaintPercentage = %q", rec.ComplaintPercentage)
	}
	if rec.Status != "active" {
		t.Errorf("Status = %q, want active", rec.Status)
	}
	if rec.AddedDate != "2025-01-15" {
		t.Errorf("AddedDate = %q", rec.AddedDate)
	}
	if rec.Date() != "2026-08-30" {
		t.Errorf("Date() = %q", rec.Date())
	}
	if len(rec.Insights) != len(pm.Metrics) {
		t.Errorf("Insights has %d entries, want %d", len(rec.Insights), len(pm.Metrics))
	}
}

func TestBuildRecordUnparseableValuesStayRaw(t *testing.T) {
	// A tile value the parser rejects still lands in Insights; only the
	// typed field stays nil.
	pm := pageMetrics{Metrics: map[string]string{
		"delivered":      "n/a",
		"complaint rate": "pending",
	}}
	rec := buildRecord("a@example.com", "example.com", pm, time.Now())

	if rec.DeliveredCount != nil {
		t.Errorf("DeliveredCount = %v, want nil", rec.DeliveredCount)
	}
	if rec.ComplaintRate != nil {
		t.Errorf("ComplaintRate = %v, want nil", rec.ComplaintRate)
	}
	if !rec.HasData {
		t.Error("HasData = false, tiles were present")
	}
	if rec.Insights["delivered"] != "n/a" {
		t.Errorf("raw delivered value lost: %v", rec.Insights["delivered"])
	}
}

func TestBuildRecordEmptyTilesMeansNoData(t *testing.T) {
	rec := buildRecord("a@example.com", "example.com", pageMetrics{}, time.Now())
	if rec.HasData {
		t.Error("HasData = true with no tiles")
	}
}

func TestEvidenceFileName(t *testing.T) {
	cases := []struct {
		domain string
		want   string
	}{
		{"example.com", "example.com_180_days.png"},
		{"a/b.com", "a_b.com_180_days.png"},
		{"evil/../up.com", "evil___up.com_180_days.png"},
	}
	for _, tc := range cases {
		if got := evidenceFileName(tc.domain, 180); got != tc.want {
			t.Errorf("evidenceFileName(%q) = %q, want %q", tc.domain, got, tc.want)
		}
	}
}
