// Package flow implements the planning conversation flows for WeekPilot.
//
// It contains the response generator, the weekly-planning lifecycle
// controller ("Bella"), and the scheduling assistant ("Dave").
package flow

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

// DefaultProfileText is rendered when no profile is stored for a user.
const DefaultProfileText = `USER PROFILE:
No profile on record. Ask the user about their role, working hours, and
priorities before proposing a schedule.`

// ProfileFormatter renders stored user profiles into prompt text.
type ProfileFormatter struct {
	store store.Store
}

// NewProfileFormatter creates a profile formatter backed by the given store.
func NewProfileFormatter(st store.Store) *ProfileFormatter {
	return &ProfileFormatter{store: st}
}

// Format renders a fixed-shape profile summary for prompt inclusion.
// A missing profile yields the default text rather than an error; store
// failures are logged and degrade to the default text as well, so prompt
// assembly never fails on profile reads.
func (f *ProfileFormatter) Format(userID string) string {
	profile, err := f.store.GetProfile(userID)
	if err != nil {
		slog.Error("ProfileFormatter.Format: profile read failed", "error", err, "userID", userID)
		return DefaultProfileText
	}
	if profile == nil {
		slog.Debug("ProfileFormatter.Format: no profile on record", "userID", userID)
		return DefaultProfileText
	}
	return RenderProfile(profile)
}

// RenderProfile renders a profile document into the fixed prompt shape.
func RenderProfile(profile *models.UserProfile) string {
	var b strings.Builder
	b.WriteString("USER PROFILE:\n")
	writeProfileLine(&b, "Name", profile.Name)
	writeProfileLine(&b, "Role", profile.Role)
	writeProfileLine(&b, "Work hours", profile.WorkHours)
	if len(profile.FocusAreas) > 0 {
		writeProfileLine(&b, "Focus areas", strings.Join(profile.FocusAreas, ", "))
	}
	writeProfileLine(&b, "Constraints", profile.Constraints)
	writeProfileLine(&b, "Timezone", profile.Timezone)
	return strings.TrimRight(b.String(), "\n")
}

func writeProfileLine(b *strings.Builder, label, value string) {
	if value == "" {
		value = "not specified"
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
