// Package store provides storage backends for WeekPilot.
//
// It includes an in-memory store for tests and single-process use, plus
// SQLite and PostgreSQL backends for persistent storage.
package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weekpilot/weekpilot/internal/models"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option configures a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DSN type constants returned by DetectDSNType.
const (
	DSNTypePostgres = "postgres"
	DSNTypeSQLite   = "sqlite"
)

// DetectDSNType guesses the backend from the DSN shape. Anything that is
// not a Postgres URL or key=value string is treated as a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return DSNTypePostgres
	}
	return DSNTypeSQLite
}

// Store defines the persistence operations used by the flow and API layers.
type Store interface {
	// SaveSession inserts or replaces a conversation session.
	SaveSession(session models.ConversationSession) error

	// GetSession retrieves a session by ID. Returns (nil, nil) when absent.
	GetSession(sessionID string) (*models.ConversationSession, error)

	// ListSessionsByStatus returns all sessions in any of the given statuses.
	ListSessionsByStatus(statuses ...models.SessionStatus) ([]models.ConversationSession, error)

	// SaveWeeklyPlan archives every active plan for the plan's user and
	// inserts the given plan as active, in one transaction. A missing plan
	// ID is generated. Returns the persisted plan.
	SaveWeeklyPlan(plan models.WeeklyPlan) (*models.WeeklyPlan, error)

	// GetWeeklyPlan retrieves a plan by ID. Returns (nil, nil) when absent.
	GetWeeklyPlan(id string) (*models.WeeklyPlan, error)

	// GetActiveWeeklyPlan retrieves the user's single active plan, if any.
	GetActiveWeeklyPlan(userID string) (*models.WeeklyPlan, error)

	// ListWeeklyPlans returns all plans for a user, newest first.
	ListWeeklyPlans(userID string) ([]models.WeeklyPlan, error)

	// SaveProfile inserts or replaces a user profile.
	SaveProfile(profile models.UserProfile) error

	// GetProfile retrieves a profile by user ID. Returns (nil, nil) when absent.
	GetProfile(userID string) (*models.UserProfile, error)

	// ListProfiles returns every stored profile.
	ListProfiles() ([]models.UserProfile, error)

	// Close releases backend resources.
	Close() error
}

// InMemoryStore is a mutex-guarded map-backed store. It implements Store,
// DedupRepo, and JobRepo so tests and single-process deployments run
// without a database.
type InMemoryStore struct {
	mu       sync.Mutex
	sessions map[string]models.ConversationSession
	plans    map[string]models.WeeklyPlan
	profiles map[string]models.UserProfile
	dedup    map[string]DedupRecord
	jobs     map[string]Job
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sessions: make(map[string]models.ConversationSession),
		plans:    make(map[string]models.WeeklyPlan),
		profiles: make(map[string]models.UserProfile),
		dedup:    make(map[string]DedupRecord),
		jobs:     make(map[string]Job),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (s *InMemoryStore) SaveSession(session models.ConversationSession) error {
	if session.ID == "" {
		return models.ErrEmptySessionID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *InMemoryStore) GetSession(sessionID string) (*models.ConversationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (s *InMemoryStore) ListSessionsByStatus(statuses ...models.SessionStatus) ([]models.ConversationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.ConversationSession
	for _, session := range s.sessions {
		for _, status := range statuses {
			if session.Status == status {
				result = append(result, session)
				break
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *InMemoryStore) SaveWeeklyPlan(plan models.WeeklyPlan) (*models.WeeklyPlan, error) {
	if plan.UserID == "" {
		return nil, models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// Archive first so two active plans can never be observed.
	for id, existing := range s.plans {
		if existing.UserID == plan.UserID && existing.Status == models.PlanStatusActive {
			existing.Status = models.PlanStatusArchived
			s.plans[id] = existing
		}
	}

	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	plan.Status = models.PlanStatusActive
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = time.Now()
	}
	s.plans[plan.ID] = plan
	return &plan, nil
}

func (s *InMemoryStore) GetWeeklyPlan(id string) (*models.WeeklyPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	plan, ok := s.plans[id]
	if !ok {
		return nil, nil
	}
	return &plan, nil
}

func (s *InMemoryStore) GetActiveWeeklyPlan(userID string) (*models.WeeklyPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, plan := range s.plans {
		if plan.UserID == userID && plan.Status == models.PlanStatusActive {
			p := plan
			return &p, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) ListWeeklyPlans(userID string) ([]models.WeeklyPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.WeeklyPlan
	for _, plan := range s.plans {
		if plan.UserID == userID {
			result = append(result, plan)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *InMemoryStore) SaveProfile(profile models.UserProfile) error {
	if profile.UserID == "" {
		return models.ErrEmptyUserID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.UserID] = profile
	return nil
}

func (s *InMemoryStore) GetProfile(userID string) (*models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (s *InMemoryStore) ListProfiles() ([]models.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.UserProfile
	for _, profile := range s.profiles {
		result = append(result, profile)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}

// DedupRepo implementation

var _ DedupRepo = (*InMemoryStore)(nil)

func (s *InMemoryStore) RecordInbound(eventKey, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dedup[eventKey]; ok {
		return false, nil
	}
	s.dedup[eventKey] = DedupRecord{EventKey: eventKey, UserID: userID, ReceivedAt: time.Now()}
	return true, nil
}

func (s *InMemoryStore) DeleteInbound(eventKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dedup, eventKey)
	return nil
}

func (s *InMemoryStore) MarkProcessed(eventKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.dedup[eventKey]
	if !ok {
		return fmt.Errorf("no dedup record for key %s", eventKey)
	}
	now := time.Now()
	record.ProcessedAt = &now
	s.dedup[eventKey] = record
	return nil
}

func (s *InMemoryStore) PurgeDedupBefore(cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var purged int
	for key, record := range s.dedup {
		if record.ReceivedAt.Before(cutoff) {
			delete(s.dedup, key)
			purged++
		}
	}
	return purged, nil
}

// JobRepo implementation

var _ JobRepo = (*InMemoryStore)(nil)

func (s *InMemoryStore) EnqueueJob(kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, job := range s.jobs {
			if job.DedupeKey == dedupeKey && job.Status != JobStatusDone && job.Status != JobStatusCanceled {
				return job.ID, nil
			}
		}
	}
	now := time.Now()
	job := Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		RunAt:       runAt,
		PayloadJSON: payloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: 3,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

func (s *InMemoryStore) ClaimDueJobs(now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []Job
	for _, job := range s.jobs {
		if job.Status == JobStatusQueued && !job.RunAt.After(now) {
			due = append(due, job)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAt.Before(due[j].RunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	for i := range due {
		job := due[i]
		job.Status = JobStatusRunning
		t := now
		job.LockedAt = &t
		job.UpdatedAt = now
		s.jobs[job.ID] = job
		due[i] = job
	}
	return due, nil
}

func (s *InMemoryStore) CompleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = JobStatusDone
	job.UpdatedAt = time.Now()
	s.jobs[id] = job
	return nil
}

func (s *InMemoryStore) FailJob(id string, errMsg string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Attempt++
	job.LastError = errMsg
	job.LockedAt = nil
	if job.Attempt >= job.MaxAttempts {
		job.Status = JobStatusFailed
	} else {
		job.Status = JobStatusQueued
		job.RunAt = nextRunAt
	}
	job.UpdatedAt = time.Now()
	s.jobs[id] = job
	return nil
}

func (s *InMemoryStore) CancelJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = JobStatusCanceled
	job.LockedAt = nil
	job.UpdatedAt = time.Now()
	s.jobs[id] = job
	return nil
}

func (s *InMemoryStore) RequeueStaleRunningJobs(staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var requeued int
	for id, job := range s.jobs {
		if job.Status == JobStatusRunning && job.LockedAt != nil && job.LockedAt.Before(staleBefore) {
			job.Status = JobStatusQueued
			job.LockedAt = nil
			job.UpdatedAt = time.Now()
			s.jobs[id] = job
			requeued++
		}
	}
	return requeued, nil
}

func (s *InMemoryStore) GetJob(id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}
