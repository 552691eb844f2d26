// Package store provides storage backends for WeekPilot.
//
// This file implements the SQLite-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/weekpilot/weekpilot/internal/models"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("SQLiteStore.NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("SQLiteStore failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("SQLiteStore failed to open connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLiteStore ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("SQLiteStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLiteStore migrations applied")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveSession(session models.ConversationSession) error {
	if session.ID == "" {
		return models.ErrEmptySessionID
	}
	messagesJSON, err := marshalJSONColumn(session.Messages)
	if err != nil {
		return err
	}
	targetsJSON, err := marshalJSONColumn(session.ExtractedTargets)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, user_id, messages, status, iteration, continuation_flag, extracted_targets, weekly_plan_id, plan_attempts, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.UserID, nilIfEmpty(messagesJSON), session.Status, session.Iteration,
		session.ContinuationFlag, nilIfEmpty(targetsJSON), nilIfEmpty(session.WeeklyPlanID),
		session.PlanAttempts, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", session.ID, "status", session.Status)
	return nil
}

func (s *SQLiteStore) GetSession(sessionID string) (*models.ConversationSession, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, messages, status, iteration, continuation_flag, extracted_targets, weekly_plan_id, plan_attempts, created_at, updated_at
		FROM sessions WHERE id = ?`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetSession not found", "sessionID", sessionID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (s *SQLiteStore) ListSessionsByStatus(statuses ...models.SessionStatus) ([]models.ConversationSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `
		SELECT id, user_id, messages, status, iteration, continuation_flag, extracted_targets, weekly_plan_id, plan_attempts, created_at, updated_at
		FROM sessions WHERE status IN (?` + repeatPlaceholder(len(statuses)-1) + `) ORDER BY created_at ASC`
	args := make([]interface{}, len(statuses))
	for i, status := range statuses {
		args[i] = string(status)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore ListSessionsByStatus query failed", "error", err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.ConversationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}
	return sessions, nil
}

// SaveWeeklyPlan archives the user's active plans and inserts the new plan
// as active in a single transaction. Archiving happens first so a user can
// never be observed with two active plans.
func (s *SQLiteStore) SaveWeeklyPlan(plan models.WeeklyPlan) (*models.WeeklyPlan, error) {
	if plan.UserID == "" {
		return nil, models.ErrEmptyUserID
	}
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	plan.Status = models.PlanStatusActive

	targetsJSON, err := marshalJSONColumn(plan.WeeklyTargets)
	if err != nil {
		return nil, err
	}
	daysJSON, err := marshalJSONColumn(plan.Days)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin plan transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE weekly_plans SET status = ? WHERE user_id = ? AND status = ?`,
		models.PlanStatusArchived, plan.UserID, models.PlanStatusActive); err != nil {
		slog.Error("SQLiteStore SaveWeeklyPlan archive failed", "error", err, "userID", plan.UserID)
		return nil, fmt.Errorf("failed to archive active plans for %s: %w", plan.UserID, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO weekly_plans (id, user_id, session_id, week_start, week_end, weekly_targets, days, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		plan.ID, plan.UserID, nilIfEmpty(plan.SessionID), plan.WeekStart, plan.WeekEnd,
		nilIfEmpty(targetsJSON), nilIfEmpty(daysJSON), plan.Status, plan.CreatedAt,
	); err != nil {
		slog.Error("SQLiteStore SaveWeeklyPlan insert failed", "error", err, "planID", plan.ID)
		return nil, fmt.Errorf("failed to insert plan %s: %w", plan.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit plan transaction: %w", err)
	}
	slog.Debug("SQLiteStore SaveWeeklyPlan succeeded", "planID", plan.ID, "userID", plan.UserID)
	return &plan, nil
}

func (s *SQLiteStore) GetWeeklyPlan(id string) (*models.WeeklyPlan, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, session_id, week_start, week_end, weekly_targets, days, status, created_at
		FROM weekly_plans WHERE id = ?`, id)
	plan, err := scanWeeklyPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetWeeklyPlan failed", "error", err, "planID", id)
		return nil, fmt.Errorf("failed to get plan %s: %w", id, err)
	}
	return &plan, nil
}

func (s *SQLiteStore) GetActiveWeeklyPlan(userID string) (*models.WeeklyPlan, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, session_id, week_start, week_end, weekly_targets, days, status, created_at
		FROM weekly_plans WHERE user_id = ? AND status = ?`, userID, models.PlanStatusActive)
	plan, err := scanWeeklyPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetActiveWeeklyPlan failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get active plan for %s: %w", userID, err)
	}
	return &plan, nil
}

func (s *SQLiteStore) ListWeeklyPlans(userID string) ([]models.WeeklyPlan, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, session_id, week_start, week_end, weekly_targets, days, status, created_at
		FROM weekly_plans WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("SQLiteStore ListWeeklyPlans query failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to list plans for %s: %w", userID, err)
	}
	defer rows.Close()

	var plans []models.WeeklyPlan
	for rows.Next() {
		plan, err := scanWeeklyPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan row: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plan rows: %w", err)
	}
	return plans, nil
}

func (s *SQLiteStore) SaveProfile(profile models.UserProfile) error {
	if profile.UserID == "" {
		return models.ErrEmptyUserID
	}
	focusJSON, err := marshalJSONColumn(profile.FocusAreas)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO profiles (user_id, name, role, work_hours, focus_areas, constraints, timezone, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		profile.UserID, nilIfEmpty(profile.Name), nilIfEmpty(profile.Role), nilIfEmpty(profile.WorkHours),
		nilIfEmpty(focusJSON), nilIfEmpty(profile.Constraints), nilIfEmpty(profile.Timezone),
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		slog.Error("SQLiteStore SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	slog.Debug("SQLiteStore SaveProfile succeeded", "userID", profile.UserID)
	return nil
}

func (s *SQLiteStore) GetProfile(userID string) (*models.UserProfile, error) {
	row := s.db.QueryRow(`
		SELECT user_id, name, role, work_hours, focus_areas, constraints, timezone, created_at, updated_at
		FROM profiles WHERE user_id = ?`, userID)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get profile for %s: %w", userID, err)
	}
	return &profile, nil
}

func (s *SQLiteStore) ListProfiles() ([]models.UserProfile, error) {
	rows, err := s.db.Query(`
		SELECT user_id, name, role, work_hours, focus_areas, constraints, timezone, created_at, updated_at
		FROM profiles ORDER BY user_id ASC`)
	if err != nil {
		slog.Error("SQLiteStore ListProfiles query failed", "error", err)
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.UserProfile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profile rows: %w", err)
	}
	return profiles, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close SQLite database", "error", err)
	}
	return err
}

// repeatPlaceholder returns n copies of ", ?" for IN clauses.
func repeatPlaceholder(n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += ", ?"
	}
	return out
}
