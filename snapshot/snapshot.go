// Package snapshot maintains one JSON document per domain merging the latest
// contribution from every account, with aggregate metrics recomputed on each
// merge. It is the secondary store: it keeps working when the SQLite store
// is down, and it is the only write target shared between workers.
//
// Merges for the same domain are serialized through a per-domain mutex and
// the document is replaced atomically (temp file + rename), so concurrent
// contributions from different accounts cannot lose updates.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/senderwatch/stats"
)

// Contribution is one account's latest record for a domain.
type Contribution struct {
	LastUpdated time.Time     `json:"last_updated"`
	Data        *stats.Record `json:"data"`
}

// Metrics are derived from the contribution set and nothing else. Averages
// cover only contributions where the metric is present: an account without
// a delivered count is excluded from the delivered average, not counted as
// zero.
type Metrics struct {
	AverageDelivered     float64 `json:"average_delivered"`
	AverageComplaintRate float64 `json:"average_complaint_rate"`
	VerifiedAccounts     int     `json:"verified_accounts"`
	AccountsWithData     int     `json:"accounts_with_data"`
	TotalAccounts        int     `json:"total_accounts"`
}

// Document is the on-disk snapshot for one domain.
type Document struct {
	Domain        string                  `json:"domain"`
	Accounts      map[string]Contribution `json:"accounts"`
	LatestData    *stats.Record           `json:"latest_data,omitempty"`
	Aggregated    Metrics                 `json:"aggregated_metrics"`
	TotalAccounts int                     `json:"total_accounts"`
	LastUpdated   time.Time               `json:"last_updated"`
}

// Store writes snapshot documents under a directory, one file per domain.
type Store struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a snapshot store rooted at dir. The directory is created
// on the first merge.
func NewStore(dir string) *Store {
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// Merge sets or replaces the account's contribution for the domain,
// recomputes the aggregate metrics, and writes the document back. It
// returns the updated document.
func (s *Store) Merge(domain, accountEmail string, rec *stats.Record) (*Document, error) {
	if domain == "" || accountEmail == "" {
		return nil, fmt.Errorf("snapshot: merge: domain and account are required")
	}

	lock := s.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.load(domain)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc.Accounts[accountEmail] = Contribution{LastUpdated: now, Data: rec}
	doc.LatestData = rec
	doc.LastUpdated = now
	doc.TotalAccounts = len(doc.Accounts)
	doc.Aggregated = Aggregate(doc.Accounts)

	if err := s.write(domain, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Load reads the current snapshot for a domain. Returns nil, nil when the
// domain has no snapshot yet.
func (s *Store) Load(domain string) (*Document, error) {
	lock := s.domainLock(domain)
	lock.Lock()
	defer lock.Unlock()

	path := s.path(domain)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return s.load(domain)
}

// Aggregate computes the metrics for a contribution set. It is a pure
// function of the set: contribution arrival order does not matter.
func Aggregate(contribs map[string]Contribution) Metrics {
	var m Metrics
	m.TotalAccounts = len(contribs)

	var deliveredSum float64
	var deliveredN int
	var complaintSum float64
	var complaintN int

	for _, c := range contribs {
		if c.Data == nil {
			continue
		}
		if c.Data.DeliveredCount != nil {
			deliveredSum += float64(*c.Data.DeliveredCount)
			deliveredN++
		}
		if c.Data.ComplaintRate != nil {
			complaintSum += *c.Data.ComplaintRate
			complaintN++
		}
		if c.Data.Verified {
			m.VerifiedAccounts++
		}
		if c.Data.HasData {
			m.AccountsWithData++
		}
	}

	if deliveredN > 0 {
		m.AverageDelivered = deliveredSum / float64(deliveredN)
	}
	if complaintN > 0 {
		m.AverageComplaintRate = complaintSum / float64(complaintN)
	}
	return m
}

func (s *Store) domainLock(domain string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[domain]
	if !ok {
		l = &sync.Mutex{}
		s.locks[domain] = l
	}
	return l
}

// load reads the document or defaults it when absent. Caller holds the
// domain lock.
func (s *Store) load(domain string) (*Document, error) {
	doc := &Document{
		Domain:   domain,
		Accounts: make(map[string]Contribution),
	}

	data, err := os.ReadFile(s.path(domain))
	if os.IsNotExist(err) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read %s: %w", domain, err)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("snapshot: parse %s: %w", domain, err)
	}
	if doc.Accounts == nil {
		doc.Accounts = make(map[string]Contribution)
	}
	doc.Domain = domain
	return doc, nil
}

// write replaces the document atomically. Caller holds the domain lock.
func (s *Store) write(domain string, doc *Document) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("snapshot: mkdir: %w", err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal %s: %w", domain, err)
	}

	path := s.path(domain)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", domain, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: replace %s: %w", domain, err)
	}
	return nil
}

func (s *Store) path(domain string) string {
	return filepath.Join(s.dir, sanitizeName(domain)+"_stats.json")
}

// sanitizeName keeps domain-derived filenames inside the snapshot dir.
func sanitizeName(domain string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	name := r.Replace(domain)
	if name == "" {
		name = "_"
	}
	return name
}
