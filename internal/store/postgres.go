// Package store provides storage backends for WeekPilot.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/weekpilot/weekpilot/internal/models"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("PostgresStore failed to open connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("PostgresStore ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("PostgresStore failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgresStore migrations applied")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveSession(session models.ConversationSession) error {
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
		INSERT INTO sessions (id, user_id, messages, status, iteration, continuation_flag, extracted_targets, weekly_plan_id, plan_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			messages = EXCLUDED.messages,
			status = EXCLUDED.status,
			iteration = EXCLUDED.iteration,
			continuation_flag = EXCLUDED.continuation_flag,
			extracted_targets = EXCLUDED.extracted_targets,
			weekly_plan_id = EXCLUDED.weekly_plan_id,
			plan_attempts = EXCLUDED.plan_attempts,
			updated_at = EXCLUDED.updated_at`,
		session.ID, session.UserID, nilIfEmpty(messagesJSON), session.Status, session.Iteration,
		session.ContinuationFlag, nilIfEmpty(targetsJSON), nilIfEmpty(session.WeeklyPlanID),
		session.PlanAttempts, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", session.ID, "status", session.Status)
	return nil
}

func (s *PostgresStore) GetSession(sessionID string) (*models.ConversationSession, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, messages, status, iteration, continuation_flag, extracted_targets, weekly_plan_id, plan_attempts, created_at, updated_at
		FROM sessions WHERE id = $1`, sessionID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (s *PostgresStore) ListSessionsByStatus(statuses ...models.SessionStatus) ([]models.ConversationSession, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, messages, status, iteration, continuation_flag, extracted_targets, weekly_plan_id, plan_attempts, created_at, updated_at
		FROM sessions WHERE status = ANY($1) ORDER BY created_at ASC`, statusArray(statuses))
	if err != nil {
		slog.Error("PostgresStore ListSessionsByStatus query failed", "error", err)
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
// as active in a single transaction.
func (s *PostgresStore) SaveWeeklyPlan(plan models.WeeklyPlan) (*models.WeeklyPlan, error) {
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

	if _, err := tx.Exec(`UPDATE weekly_plans SET status = $1 WHERE user_id = $2 AND status = $3`,
		models.PlanStatusArchived, plan.UserID, models.PlanStatusActive); err != nil {
		slog.Error("PostgresStore SaveWeeklyPlan archive failed", "error", err, "userID", plan.UserID)
		return nil, fmt.Errorf("failed to archive active plans for %s: %w", plan.UserID, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO weekly_plans (id, user_id, session_id, week_start, week_end, weekly_targets, days, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		plan.ID, plan.UserID, nilIfEmpty(plan.SessionID), plan.WeekStart, plan.WeekEnd,
		nilIfEmpty(targetsJSON), nilIfEmpty(daysJSON), plan.Status, plan.CreatedAt,
	); err != nil {
		slog.Error("PostgresStore SaveWeeklyPlan insert failed", "error", err, "planID", plan.ID)
		return nil, fmt.Errorf("failed to insert plan %s: %w", plan.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit plan transaction: %w", err)
	}
	slog.Debug("PostgresStore SaveWeeklyPlan succeeded", "planID", plan.ID, "userID", plan.UserID)
	return &plan, nil
}

func (s *PostgresStore) GetWeeklyPlan(id string) (*models.WeeklyPlan, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, session_id, week_start, week_end, weekly_targets, days, status, created_at
		FROM weekly_plans WHERE id = $1`, id)
	plan, err := scanWeeklyPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetWeeklyPlan failed", "error", err, "planID", id)
		return nil, fmt.Errorf("failed to get plan %s: %w", id, err)
	}
	return &plan, nil
}

func (s *PostgresStore) GetActiveWeeklyPlan(userID string) (*models.WeeklyPlan, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, session_id, week_start, week_end, weekly_targets, days, status, created_at
		FROM weekly_plans WHERE user_id = $1 AND status = $2`, userID, models.PlanStatusActive)
	plan, err := scanWeeklyPlan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetActiveWeeklyPlan failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get active plan for %s: %w", userID, err)
	}
	return &plan, nil
}

func (s *PostgresStore) ListWeeklyPlans(userID string) ([]models.WeeklyPlan, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, session_id, week_start, week_end, weekly_targets, days, status, created_at
		FROM weekly_plans WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		slog.Error("PostgresStore ListWeeklyPlans query failed", "error", err, "userID", userID)
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

func (s *PostgresStore) SaveProfile(profile models.UserProfile) error {
	if profile.UserID == "" {
		return models.ErrEmptyUserID
	}
	focusJSON, err := marshalJSONColumn(profile.FocusAreas)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT INTO profiles (user_id, name, role, work_hours, focus_areas, constraints, timezone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			work_hours = EXCLUDED.work_hours,
			focus_areas = EXCLUDED.focus_areas,
			constraints = EXCLUDED.constraints,
			timezone = EXCLUDED.timezone,
			updated_at = EXCLUDED.updated_at`,
		profile.UserID, nilIfEmpty(profile.Name), nilIfEmpty(profile.Role), nilIfEmpty(profile.WorkHours),
		nilIfEmpty(focusJSON), nilIfEmpty(profile.Constraints), nilIfEmpty(profile.Timezone),
		profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		slog.Error("PostgresStore SaveProfile failed", "error", err, "userID", profile.UserID)
		return fmt.Errorf("failed to save profile for %s: %w", profile.UserID, err)
	}
	return nil
}

func (s *PostgresStore) GetProfile(userID string) (*models.UserProfile, error) {
	row := s.db.QueryRow(`
		SELECT user_id, name, role, work_hours, focus_areas, constraints, timezone, created_at, updated_at
		FROM profiles WHERE user_id = $1`, userID)
	profile, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetProfile failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to get profile for %s: %w", userID, err)
	}
	return &profile, nil
}

func (s *PostgresStore) ListProfiles() ([]models.UserProfile, error) {
	rows, err := s.db.Query(`
		SELECT user_id, name, role, work_hours, focus_areas, constraints, timezone, created_at, updated_at
		FROM profiles ORDER BY user_id ASC`)
	if err != nil {
		slog.Error("PostgresStore ListProfiles query failed", "error", err)
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

// statusArray converts session statuses to a pq array parameter.
func statusArray(statuses []models.SessionStatus) interface{} {
	out := make([]string, len(statuses))
	for i, status := range statuses {
		out[i] = string(status)
	}
	return pq.Array(out)
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	err := s.db.Close()
	if err != nil {
		slog.Error("Failed to close Postgres database", "error", err)
	}
	return err
}
