package store

import (
	"fmt"
	"time"
)

// Compile-time check that SQLiteStore implements DedupRepo.
var _ DedupRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) RecordInbound(eventKey, userID string) (bool, error) {
	now := time.Now()
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO inbound_dedup (event_key, user_id, received_at) VALUES (?, ?, ?)`,
		eventKey, nilIfEmpty(userID), now,
	)
	if err != nil {
		return false, fmt.Errorf("record inbound failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record inbound rows affected failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) DeleteInbound(eventKey string) error {
	_, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE event_key = ?`, eventKey)
	if err != nil {
		return fmt.Errorf("delete inbound failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MarkProcessed(eventKey string) error {
	now := time.Now()
	_, err := s.db.Exec(
		`UPDATE inbound_dedup SET processed_at = ? WHERE event_key = ?`,
		now, eventKey,
	)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PurgeDedupBefore(cutoff time.Time) (int, error) {
	result, err := s.db.Exec(`DELETE FROM inbound_dedup WHERE received_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge dedup failed: %w", err)
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}
