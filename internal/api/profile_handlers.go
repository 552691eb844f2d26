package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/weekpilot/weekpilot/internal/models"
)

// putProfileHandler handles PUT /api/v1/profiles/{userID}. Profiles are
// upserted whole; the user ID in the path wins over any in the body.
func (s *Server) putProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var profile models.UserProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		slog.Warn("putProfileHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	profile.UserID = userID
	if err := profile.Validate(); err != nil {
		slog.Warn("putProfileHandler: validation failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	now := time.Now()
	existing, err := s.st.GetProfile(userID)
	if err != nil {
		slog.Error("putProfileHandler: read failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load profile"))
		return
	}
	if existing != nil {
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	if err := s.st.SaveProfile(profile); err != nil {
		slog.Error("putProfileHandler: save failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to save profile"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Profile saved", profile))
}

// getProfileHandler handles GET /api/v1/profiles/{userID}.
func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	profile, err := s.st.GetProfile(userID)
	if err != nil {
		slog.Error("getProfileHandler: read failed", "error", err, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load profile"))
		return
	}
	if profile == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Profile not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

// listProfilesHandler handles GET /api/v1/profiles.
func (s *Server) listProfilesHandler(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.st.ListProfiles()
	if err != nil {
		slog.Error("listProfilesHandler: read failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list profiles"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profiles))
}
