package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Compile-time check that SQLiteStore implements JobRepo.
var _ JobRepo = (*SQLiteStore)(nil)

// EnqueueJob inserts in a single guarded statement so two concurrent
// kickoff triggers for the same user and week cannot both insert.
func (s *SQLiteStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	id := uuid.NewString()
	now := time.Now()

	result, err := s.db.Exec(
		`INSERT INTO jobs (id, kind, run_at, payload_json, status, attempt, max_attempts, dedupe_key, created_at, updated_at)
		 SELECT ?, ?, ?, ?, 'queued', 0, 3, ?, ?, ?
		 WHERE NOT EXISTS (
		   SELECT 1 FROM jobs WHERE dedupe_key = ? AND status NOT IN ('done', 'canceled')
		 )`,
		id, kind, runAt, payloadJSON, nilIfEmpty(dedupeKey), now, now, dedupeKey,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue job failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("enqueue job rows affected failed: %w", err)
	}
	if n == 0 {
		var existingID string
		if err := s.db.QueryRow(
			`SELECT id FROM jobs WHERE dedupe_key = ? AND status NOT IN ('done', 'canceled')`,
			dedupeKey,
		).Scan(&existingID); err != nil {
			return "", fmt.Errorf("dedupe lookup failed: %w", err)
		}
		slog.Debug("SQLiteStore.EnqueueJob: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
		return existingID, nil
	}
	slog.Debug("SQLiteStore.EnqueueJob", "id", id, "kind", kind, "runAt", runAt, "dedupeKey", dedupeKey)
	return id, nil
}

// ClaimDueJobs claims each candidate with a status-guarded update, so a job
// grabbed by another poller in the meantime is skipped instead of run twice.
func (s *SQLiteStore) ClaimDueJobs(now time.Time, limit int) ([]Job, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at
		 FROM jobs WHERE status = 'queued' AND run_at <= ? ORDER BY run_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due jobs query failed: %w", err)
	}
	defer rows.Close()

	var candidates []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job failed: %w", err)
		}
		candidates = append(candidates, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due jobs iteration failed: %w", err)
	}

	var claimed []Job
	for _, j := range candidates {
		result, err := s.db.Exec(
			`UPDATE jobs SET status = 'running', locked_at = ?, updated_at = ? WHERE id = ? AND status = 'queued'`,
			now, now, j.ID,
		)
		if err != nil {
			return claimed, fmt.Errorf("mark job running failed: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			continue
		}
		j.Status = JobStatusRunning
		t := now
		j.LockedAt = &t
		claimed = append(claimed, j)
	}
	return claimed, nil
}

func (s *SQLiteStore) CompleteJob(id string) error {
	if _, err := s.db.Exec(
		`UPDATE jobs SET status = 'done', updated_at = ? WHERE id = ?`,
		time.Now(), id,
	); err != nil {
		return fmt.Errorf("complete job failed: %w", err)
	}
	return nil
}

// FailJob bumps the attempt counter and requeues or permanently fails the
// job in one statement; no read-modify-write window.
func (s *SQLiteStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	result, err := s.db.Exec(
		`UPDATE jobs SET
		   attempt = attempt + 1,
		   status = CASE WHEN attempt + 1 >= max_attempts THEN 'failed' ELSE 'queued' END,
		   run_at = CASE WHEN attempt + 1 >= max_attempts THEN run_at ELSE ? END,
		   last_error = ?, locked_at = NULL, updated_at = ?
		 WHERE id = ?`,
		nextRunAt, errMsg, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("fail job update failed: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("fail job: no job with id %s", id)
	}
	return nil
}

func (s *SQLiteStore) CancelJob(id string) error {
	if _, err := s.db.Exec(
		`UPDATE jobs SET status = 'canceled', locked_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	); err != nil {
		return fmt.Errorf("cancel job failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE jobs SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'running' AND locked_at < ?`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale jobs failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleRunningJobs", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) GetJob(id string) (*Job, error) {
	row := s.db.QueryRow(
		`SELECT id, kind, run_at, payload_json, status, attempt, max_attempts, last_error, locked_at, dedupe_key, created_at, updated_at
		 FROM jobs WHERE id = ?`, id,
	)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job failed: %w", err)
	}
	return &j, nil
}
