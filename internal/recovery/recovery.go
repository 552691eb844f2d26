// Package recovery restores in-memory wiring after a restart: stale durable
// jobs are requeued and response hooks are re-registered for every planning
// conversation that was still open when the process died.
package recovery

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/weekpilot/weekpilot/internal/messaging"
	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

// HookFactory builds the response action routing a user's inbound messages
// into their open planning session.
type HookFactory func(userID, sessionID string) messaging.ResponseAction

// Recoverer rebuilds transient state from the store at startup.
type Recoverer struct {
	st          store.Store
	jobRunner   *store.JobRunner
	respHandler *messaging.ResponseHandler
	hookFactory HookFactory
}

// NewRecoverer creates a startup recoverer. jobRunner and respHandler may be
// nil; the corresponding recovery step is skipped.
func NewRecoverer(st store.Store, jobRunner *store.JobRunner, respHandler *messaging.ResponseHandler, hookFactory HookFactory) *Recoverer {
	return &Recoverer{st: st, jobRunner: jobRunner, respHandler: respHandler, hookFactory: hookFactory}
}

// Run performs all recovery steps. It is called once before the API starts
// accepting traffic.
func (r *Recoverer) Run(ctx context.Context) error {
	if r.jobRunner != nil {
		if err := r.jobRunner.RecoverStaleJobs(); err != nil {
			return fmt.Errorf("failed to recover stale jobs: %w", err)
		}
	}
	if r.respHandler != nil && r.hookFactory != nil {
		if err := r.recoverResponseHooks(ctx); err != nil {
			return err
		}
	}
	return nil
}

// recoverResponseHooks re-registers one hook per user with an open session.
// A user routes to at most one open session; the most recently updated wins.
func (r *Recoverer) recoverResponseHooks(ctx context.Context) error {
	sessions, err := r.st.ListSessionsByStatus(
		models.SessionStatusActive,
		models.SessionStatusAwaitingUser,
		models.SessionStatusPlanning,
	)
	if err != nil {
		return fmt.Errorf("failed to list open sessions: %w", err)
	}

	latest := make(map[string]models.ConversationSession)
	for _, session := range sessions {
		if prev, ok := latest[session.UserID]; ok && prev.UpdatedAt.After(session.UpdatedAt) {
			continue
		}
		latest[session.UserID] = session
	}

	recovered := 0
	for userID, session := range latest {
		if err := r.respHandler.RegisterHook(userID, r.hookFactory(userID, session.ID)); err != nil {
			slog.Error("Recoverer: hook registration failed", "error", err, "userID", userID, "sessionID", session.ID)
			continue
		}
		recovered++
	}
	slog.Info("Recoverer: response hooks restored", "openSessions", len(sessions), "hooks", recovered)
	return nil
}
