package statstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"
)

// Heartbeat is one liveness probe from a session worker.
type Heartbeat struct {
	WorkerName string    `json:"worker_name"`
	Hostname   string    `json:"hostname"`
	PID        int       `json:"pid"`
	State      string    `json:"state"`
	Cycles     int       `json:"cycles"`
	Timestamp  time.Time `json:"timestamp"`
	Alive      bool      `json:"alive"`
}

// WriteHeartbeat records a liveness row for a worker. The worker name is
// the account email: one heartbeat stream per fleet member.
func (s *Store) WriteHeartbeat(ctx context.Context, workerName, state string, cycles int) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO worker_heartbeats (worker_name, hostname, worker_pid, state, cycles, timestamp)
		VALUES (?,?,?,?,?,?)`,
		workerName, hostname, os.Getpid(), state, cycles, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("statstore: write heartbeat %s: %w", workerName, err)
	}
	return nil
}

// LatestHeartbeat returns the most recent heartbeat for a worker with the
// alive flag computed against staleness. Returns nil, nil when the worker
// has never beaten.
func (s *Store) LatestHeartbeat(ctx context.Context, workerName string, staleness time.Duration) (*Heartbeat, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT worker_name, hostname, worker_pid, state, cycles, timestamp
		FROM worker_heartbeats
		WHERE worker_name = ?
		ORDER BY timestamp DESC LIMIT 1`, workerName)

	var hb Heartbeat
	var ts int64
	err := row.Scan(&hb.WorkerName, &hb.Hostname, &hb.PID, &hb.State, &hb.Cycles, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("statstore: latest heartbeat %s: %w", workerName, err)
	}
	hb.Timestamp = time.UnixMilli(ts)
	hb.Alive = time.Since(hb.Timestamp) <= staleness
	return &hb, nil
}

// CleanupHeartbeats deletes heartbeats older than the retention window and
// returns the number of rows removed.
func (s *Store) CleanupHeartbeats(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UnixMilli()
	res, err := s.DB.ExecContext(ctx,
		`DELETE FROM worker_heartbeats WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("statstore: cleanup heartbeats: %w", err)
	}
	return res.RowsAffected()
}
