package statstore

import (
	"context"
	"testing"
	"time"

	"github.com/hazyhaar/senderwatch/stats"
)

func record(email, domain string, at time.Time, delivered int64) *stats.Record {
	return &stats.Record{
		AccountEmail:   email,
		Domain:         domain,
		CapturedAt:     at,
		Status:         "active",
		Verified:       true,
		DeliveredCount: stats.Int64(delivered),
		ComplaintRate:  stats.Float64(0.02),
		TimeRange:      "180 days",
		HasData:        true,
	}
}

func TestSchemaCreatesTables(t *testing.T) {
	s := OpenMemory(t)
	for _, table := range []string{"domain_stats", "scrape_sessions", "scraper_accounts", "api_keys", "worker_heartbeats"} {
		var name string
		err := s.DB.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestUpsertIdempotentLatest(t *testing.T) {
	// Repeated upserts for the same account×domain×day must leave exactly
	// one row holding the most recent input.
	s := OpenMemory(t)
	ctx := context.Background()
	day := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	if err := s.Upsert(ctx, record("a@example.com", "x.com", day, 100)); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.Upsert(ctx, record("a@example.com", "x.com", day.Add(time.Hour), 150)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var count int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM domain_stats`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("rows: got %d, want 1", count)
	}

	row, err := s.Latest(ctx, "x.com", "a@example.com")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if row == nil || row.DeliveredCount == nil || *row.DeliveredCount != 150 {
		t.Fatalf("latest row: %+v, want delivered_count=150", row)
	}
	if !row.Verified {
		t.Error("verified lost on upsert")
	}
}

func TestUpsertSeparateRowsAcrossDaysAndAccounts(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()
	day1 := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	for _, r := range []*stats.Record{
		record("a@example.com", "x.com", day1, 100),
		record("a@example.com", "x.com", day2, 110),
		record("b@example.com", "x.com", day1, 200),
	} {
		if err := s.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	var count int
	s.DB.QueryRow(`SELECT COUNT(*) FROM domain_stats`).Scan(&count)
	if count != 3 {
		t.Fatalf("rows: got %d, want 3", count)
	}
}

func TestUpsertNoDataRecord(t *testing.T) {
	// A no-data extraction is a valid result: the row exists, has_data is
	// false, and the metrics stay NULL.
	s := OpenMemory(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	if err := s.Upsert(ctx, stats.NoData("a@example.com", "y.com", at)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	row, err := s.Latest(ctx, "y.com", "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if row == nil {
		t.Fatal("no row for no-data record")
	}
	if row.HasData {
		t.Error("has_data should be false")
	}
	if row.DeliveredCount != nil || row.ComplaintRate != nil {
		t.Errorf("metrics should be NULL: %+v", row)
	}
}

func TestLatestUnknownDomain(t *testing.T) {
	s := OpenMemory(t)
	row, err := s.Latest(context.Background(), "never-seen.com", "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if row != nil {
		t.Fatalf("got %+v, want nil", row)
	}
}

func TestLatestAllOneRowPerDomain(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	for _, r := range []*stats.Record{
		record("a@example.com", "x.com", base, 100),
		record("b@example.com", "x.com", base.Add(2*time.Hour), 200),
		record("a@example.com", "y.com", base.Add(time.Hour), 50),
		record("a@example.com", "x.com", base.AddDate(0, 0, -1), 90),
	} {
		if err := s.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	rows, err := s.LatestAll(ctx, "", 100)
	if err != nil {
		t.Fatalf("latest all: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2 (one per domain)", len(rows))
	}
	seen := map[string]*Row{}
	for _, r := range rows {
		if seen[r.Domain] != nil {
			t.Fatalf("domain %s returned twice", r.Domain)
		}
		seen[r.Domain] = r
	}
	if got := seen["x.com"]; got == nil || got.AccountEmail != "b@example.com" {
		t.Errorf("x.com latest: %+v, want b@example.com's row", got)
	}
}

func TestLatestAllTieBreaksDeterministically(t *testing.T) {
	// Two accounts capturing the same domain at the same instant must still
	// yield exactly one row.
	s := OpenMemory(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	s.Upsert(ctx, record("a@example.com", "x.com", at, 100))
	s.Upsert(ctx, record("b@example.com", "x.com", at, 200))

	rows, err := s.LatestAll(ctx, "", 100)
	if err != nil {
		t.Fatalf("latest all: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows: got %d, want 1", len(rows))
	}
}

func TestLatestAllAccountFilter(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	s.Upsert(ctx, record("a@example.com", "x.com", at, 100))
	s.Upsert(ctx, record("b@example.com", "x.com", at.Add(time.Hour), 200))
	s.Upsert(ctx, record("b@example.com", "z.com", at, 10))

	rows, err := s.LatestAll(ctx, "a@example.com", 100)
	if err != nil {
		t.Fatalf("latest all: %v", err)
	}
	if len(rows) != 1 || rows[0].AccountEmail != "a@example.com" {
		t.Fatalf("got %+v, want only a@example.com's x.com row", rows)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	id, err := s.StartSession(ctx, "a@example.com", 5)
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	if err := s.UpdateSession(ctx, id, 3, SessionRunning); err != nil {
		t.Fatalf("update session: %v", err)
	}
	sess, err := s.GetSession(ctx, id)
	if err != nil || sess == nil {
		t.Fatalf("get session: %v", err)
	}
	if sess.DomainsProcessed != 3 || sess.Status != SessionRunning || sess.EndedAt != nil {
		t.Errorf("mid-batch session: %+v", sess)
	}

	if err := s.UpdateSession(ctx, id, 5, SessionCompleted); err != nil {
		t.Fatalf("close session: %v", err)
	}
	sess, _ = s.GetSession(ctx, id)
	if sess.Status != SessionCompleted || sess.EndedAt == nil {
		t.Errorf("closed session: %+v", sess)
	}
}

func TestStartSessionBumpsAccountCounters(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	s.StartSession(ctx, "a@example.com", 1)
	s.StartSession(ctx, "a@example.com", 2)

	var total int
	err := s.DB.QueryRow(`SELECT total_sessions FROM scraper_accounts WHERE email = ?`,
		"a@example.com").Scan(&total)
	if err != nil {
		t.Fatalf("query account: %v", err)
	}
	if total != 2 {
		t.Errorf("total_sessions: got %d, want 2", total)
	}
}

func TestAPIKeys(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	if err := s.CreateAPIKey(ctx, "key-1", "default"); err != nil {
		t.Fatalf("create: %v", err)
	}

	ok, err := s.ValidateAPIKey(ctx, "key-1")
	if err != nil || !ok {
		t.Fatalf("validate existing key: ok=%v err=%v", ok, err)
	}
	ok, err = s.ValidateAPIKey(ctx, "wrong")
	if err != nil || ok {
		t.Fatalf("validate unknown key: ok=%v err=%v", ok, err)
	}

	if err := s.DeactivateAPIKey(ctx, "key-1"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	ok, _ = s.ValidateAPIKey(ctx, "key-1")
	if ok {
		t.Error("deactivated key should not validate")
	}
}

func TestHeartbeats(t *testing.T) {
	s := OpenMemory(t)
	ctx := context.Background()

	if err := s.WriteHeartbeat(ctx, "a@example.com", "cycling", 3); err != nil {
		t.Fatalf("write: %v", err)
	}

	hb, err := s.LatestHeartbeat(ctx, "a@example.com", time.Minute)
	if err != nil || hb == nil {
		t.Fatalf("latest: hb=%v err=%v", hb, err)
	}
	if !hb.Alive || hb.State != "cycling" || hb.Cycles != 3 {
		t.Errorf("heartbeat: %+v", hb)
	}

	hb, err = s.LatestHeartbeat(ctx, "ghost@example.com", time.Minute)
	if err != nil || hb != nil {
		t.Fatalf("unknown worker: hb=%v err=%v", hb, err)
	}

	// Retention cleanup removes only rows older than the window.
	old := time.Now().Add(-48 * time.Hour).UnixMilli()
	s.DB.Exec(`INSERT INTO worker_heartbeats (worker_name, timestamp) VALUES (?, ?)`,
		"a@example.com", old)

	n, err := s.CleanupHeartbeats(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("cleanup removed %d, want 1", n)
	}
}
