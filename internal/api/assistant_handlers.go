package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/weekpilot/weekpilot/internal/models"
)

// assistantAskHandler handles POST /api/v1/assistant/ask. A degraded answer
// still carries text, so upstream failure returns 502 with the canned reply.
func (s *Server) assistantAskHandler(w http.ResponseWriter, r *http.Request) {
	var req models.AssistantAskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("assistantAskHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("assistantAskHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	answer, err := s.assistant.Ask(r.Context(), req.UserID, req.Question)
	if err != nil {
		if errors.Is(err, models.ErrUpstreamFailure) {
			slog.Error("assistantAskHandler: upstream failure", "error", err, "userID", req.UserID)
			writeJSONResponse(w, http.StatusBadGateway, models.NewAPIResponseBuilder().
				WithStatus(models.APIStatusError).
				WithMessage("Assistant temporarily unavailable").
				WithResult(map[string]string{"answer": answer}).
				Build())
			return
		}
		slog.Error("assistantAskHandler: ask failed", "error", err, "userID", req.UserID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to answer question"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"answer": answer}))
}
