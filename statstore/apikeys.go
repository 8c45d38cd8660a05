package statstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateAPIKey registers a key for the read API.
func (s *Store) CreateAPIKey(ctx context.Context, key, name string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO api_keys (api_key, name, active, created_at)
		VALUES (?, ?, 1, ?)`,
		key, name, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("statstore: create api key: %w", err)
	}
	return nil
}

// ValidateAPIKey reports whether key is known and active, touching its
// last_used timestamp when it is.
func (s *Store) ValidateAPIKey(ctx context.Context, key string) (bool, error) {
	var id int64
	err := s.DB.QueryRowContext(ctx,
		`SELECT id FROM api_keys WHERE api_key = ? AND active = 1`, key).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("statstore: validate api key: %w", err)
	}

	if _, err := s.DB.ExecContext(ctx,
		`UPDATE api_keys SET last_used = ? WHERE id = ?`,
		time.Now().UnixMilli(), id); err != nil {
		return true, fmt.Errorf("statstore: touch api key: %w", err)
	}
	return true, nil
}

// DeactivateAPIKey disables a key without deleting its audit trail.
func (s *Store) DeactivateAPIKey(ctx context.Context, key string) error {
	_, err := s.DB.ExecContext(ctx,
		`UPDATE api_keys SET active = 0 WHERE api_key = ?`, key)
	if err != nil {
		return fmt.Errorf("statstore: deactivate api key: %w", err)
	}
	return nil
}
