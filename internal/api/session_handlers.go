package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/weekpilot/weekpilot/internal/models"
)

// createSessionHandler handles POST /api/v1/sessions.
func (s *Server) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("createSessionHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("createSessionHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	session, opening, err := s.planner.StartSession(r.Context(), req.UserID)
	if err != nil {
		slog.Error("createSessionHandler: start failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to create session"))
		return
	}
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage(opening, session))
}

// sessionRespondHandler handles POST /api/v1/sessions/respond. It maps the
// conversation engine's sentinel errors onto HTTP statuses; upstream model
// failures still carry the canned reply in the body.
func (s *Server) sessionRespondHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SessionRespondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("sessionRespondHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("sessionRespondHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.planner.ProcessUserMessage(r.Context(), req.SessionID, req.UserMessage)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSessionNotFound):
			writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		case errors.Is(err, models.ErrSessionTerminal):
			writeJSONResponse(w, http.StatusConflict, models.Error("Session is completed and accepts no further messages"))
		case errors.Is(err, models.ErrUpstreamFailure):
			slog.Error("sessionRespondHandler: upstream failure", "error", err, "sessionID", req.SessionID)
			writeJSONResponse(w, http.StatusBadGateway, models.NewAPIResponseBuilder().
				WithStatus(models.APIStatusError).
				WithMessage("Assistant temporarily unavailable").
				WithResult(result).
				Build())
		case errors.Is(err, models.ErrPlanNotProduced):
			slog.Error("sessionRespondHandler: planning failed", "error", err, "sessionID", req.SessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.NewAPIResponseBuilder().
				WithStatus(models.APIStatusError).
				WithMessage("Planning failed").
				WithResult(result).
				Build())
		default:
			slog.Error("sessionRespondHandler: processing failed", "error", err, "sessionID", req.SessionID)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		}
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// getSessionHandler handles GET /api/v1/sessions/{sessionID}.
func (s *Server) getSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := s.st.GetSession(sessionID)
	if err != nil {
		slog.Error("getSessionHandler: read failed", "error", err, "sessionID", sessionID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load session"))
		return
	}
	if session == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Session not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(session))
}
