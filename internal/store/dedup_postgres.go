package store

import (
	"fmt"
	"time"
)

// Compile-time check that PostgresStore implements DedupRepo.
var _ DedupRepo = (*PostgresStore)(nil)

func (s *PostgresStore) RecordInbound(eventKey, userID string) (bool, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`INSERT INTO inbound_dedup (event_key, user_id, received_at) VALUES ($1, $2, $3) ON CONFLICT (event_key) DO NOTHING`,
		eventKey, nilIfEmpty(userID), now,
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *PostgresStore) DeleteInbound(eventKey string) error {
	_, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE event_key = $1`, eventKey)
	if err != nil {
		return fmt.Errorf("delete inbound failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkProcessed(eventKey string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE inbound_dedup SET processed_at = $1 WHERE event_key = $2`,
		now, eventKey,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) PurgeDedupBefore(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge dedup failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
