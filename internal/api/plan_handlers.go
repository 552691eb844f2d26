package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/weekpilot/weekpilot/internal/models"
)

// getActivePlanHandler handles GET /api/v1/plans/active?user_id=...
func (s *Server) getActivePlanHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id query parameter is required"))
		return
	}

	plan, err := s.st.GetActiveWeeklyPlan(userID)
	if err != nil {
		slog.Error("getActivePlanHandler: read failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load active plan"))
		return
	}
	if plan == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No active plan for this user"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plan))
}

// getPlanHandler handles GET /api/v1/plans/{planID}.
func (s *Server) getPlanHandler(w http.ResponseWriter, r *http.Request) {
	planID := chi.URLParam(r, "planID")
	plan, err := s.st.GetWeeklyPlan(planID)
	if err != nil {
		slog.Error("getPlanHandler: read failed", "error", err, "planID", planID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load plan"))
		return
	}
	if plan == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Plan not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(plan))
}
