// Package scheduler provides cron-based scheduling for WeekPilot.
//
// Cron triggers only enqueue durable jobs; the store's job runner executes
// them, so a restart between trigger and execution loses nothing.
package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/weekpilot/weekpilot/internal/store"
)

// Default cron expressions.
const (
	// DefaultKickoffCron fires Monday mornings to invite users to plan.
	DefaultKickoffCron = "0 9 * * 1"
	// DefaultDedupPurgeCron fires daily to trim aged webhook dedup records.
	DefaultDedupPurgeCron = "30 3 * * *"
)

// KickoffPayload is the payload of a weekly kickoff job.
type KickoffPayload struct {
	UserID string `json:"user_id"`
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler using the standard
// 5-field expression format.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// ScheduleWeeklyKickoff enqueues one durable kickoff job per known user on
// the given cron expression. The dedupe key spans the trigger week, so a
// trigger that fires twice enqueues once.
func (s *Scheduler) ScheduleWeeklyKickoff(expr string, jobs store.JobRepo, st store.Store) error {
	return s.AddJob(expr, func() {
		profiles, err := st.ListProfiles()
		if err != nil {
			slog.Error("Scheduler: weekly kickoff listing failed", "error", err)
			return
		}
		now := time.Now()
		year, week := now.ISOWeek()
		for _, profile := range profiles {
			payload, err := json.Marshal(KickoffPayload{UserID: profile.UserID})
			if err != nil {
				slog.Error("Scheduler: kickoff payload marshal failed", "error", err, "userID", profile.UserID)
				continue
			}
			dedupeKey := kickoffDedupeKey(profile.UserID, year, week)
			if _, err := jobs.EnqueueJob(store.JobKindWeeklyKickoff, now, string(payload), dedupeKey); err != nil {
				slog.Error("Scheduler: kickoff enqueue failed", "error", err, "userID", profile.UserID)
			}
		}
		slog.Info("Scheduler: weekly kickoff jobs enqueued", "users", len(profiles))
	})
}

// ScheduleDedupPurge enqueues a durable purge job on the given cron
// expression, deduplicated per calendar day.
func (s *Scheduler) ScheduleDedupPurge(expr string, jobs store.JobRepo) error {
	return s.AddJob(expr, func() {
		now := time.Now()
		dedupeKey := "dedup-purge:" + now.Format("2006-01-02")
		if _, err := jobs.EnqueueJob(store.JobKindDedupPurge, now, "{}", dedupeKey); err != nil {
			slog.Error("Scheduler: dedup purge enqueue failed", "error", err)
			return
		}
		slog.Debug("Scheduler: dedup purge job enqueued")
	})
}

func kickoffDedupeKey(userID string, year, week int) string {
	return fmt.Sprintf("kickoff:%s:%d-W%02d", userID, year, week)
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
