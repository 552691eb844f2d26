// Package api exposes the WeekPilot HTTP surface: planning sessions, weekly
// plans, user profiles, the scheduling assistant, and the Slack events
// webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/weekpilot/weekpilot/internal/flow"
	"github.com/weekpilot/weekpilot/internal/store"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
	requestTimeout    = 60 * time.Second
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// Server wires the HTTP surface to the conversation engine and the store.
type Server struct {
	st           store.Store
	planner      *flow.PlannerFlow
	assistant    *flow.AssistantFlow
	slackWebhook http.Handler
	httpServer   *http.Server
}

// NewServer creates the API server. slackWebhook may be nil when the Slack
// transport is not configured; the route is mounted only when present.
func NewServer(st store.Store, planner *flow.PlannerFlow, assistant *flow.AssistantFlow, slackWebhook http.Handler, opts ...Option) *Server {
	options := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&options)
	}

	s := &Server{
		st:           st,
		planner:      planner,
		assistant:    assistant,
		slackWebhook: slackWebhook,
	}
	s.httpServer = &http.Server{
		Addr:              options.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return s
}

// Router builds the route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", s.healthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.createSessionHandler)
		r.Post("/sessions/respond", s.sessionRespondHandler)
		r.Get("/sessions/{sessionID}", s.getSessionHandler)

		r.Get("/plans/active", s.getActivePlanHandler)
		r.Get("/plans/{planID}", s.getPlanHandler)

		r.Post("/assistant/ask", s.assistantAskHandler)

		r.Put("/profiles/{userID}", s.putProfileHandler)
		r.Get("/profiles/{userID}", s.getProfileHandler)
		r.Get("/profiles", s.listProfilesHandler)
	})

	if s.slackWebhook != nil {
		r.Post("/slack/events", s.slackWebhook.ServeHTTP)
	}
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	slog.Info("Server.Run: shut down cleanly")
	return nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
