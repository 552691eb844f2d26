package flow

import (
	"strings"
	"testing"
	"time"

	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

func TestFormatFallsBackToDefault(t *testing.T) {
	st := store.NewInMemoryStore()
	formatter := NewProfileFormatter(st)

	if got := formatter.Format("nobody"); got != DefaultProfileText {
		t.Errorf("Format = %q, want the default profile text", got)
	}
}

func TestFormatRendersStoredProfile(t *testing.T) {
	st := store.NewInMemoryStore()
	now := time.Now()
	profile := models.UserProfile{
		UserID:     "user-1",
		Name:       "Sam",
		Role:       "engineering manager",
		WorkHours:  "09:00-17:30",
		FocusAreas: []string{"hiring", "platform reliability"},
		Timezone:   "Europe/Berlin",
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := st.SaveProfile(profile); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	got := NewProfileFormatter(st).Format("user-1")
	for _, want := range []string{"Sam", "engineering manager", "hiring, platform reliability", "Europe/Berlin"} {
		if !strings.Contains(got, want) {
			t.Errorf("rendered profile missing %q:\n%s", want, got)
		}
	}
	if !strings.Contains(got, "Constraints: not specified") {
		t.Errorf("blank fields should render as not specified:\n%s", got)
	}
}
