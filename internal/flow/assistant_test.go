package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

func newTestAssistant(client *fakeGenAIClient, st store.Store) *AssistantFlow {
	a := NewAssistantFlow(client, st, NewProfileFormatter(st))
	a.backoffBase = time.Millisecond
	return a
}

func TestAskValidatesInput(t *testing.T) {
	a := newTestAssistant(&fakeGenAIClient{}, store.NewInMemoryStore())
	ctx := context.Background()

	if _, err := a.Ask(ctx, "", "what is on Monday?"); !errors.Is(err, models.ErrEmptyUserID) {
		t.Errorf("err = %v, want ErrEmptyUserID", err)
	}
	if _, err := a.Ask(ctx, "user-1", ""); !errors.Is(err, models.ErrEmptyQuestion) {
		t.Errorf("err = %v, want ErrEmptyQuestion", err)
	}
}

func TestAskIncludesActivePlan(t *testing.T) {
	st := store.NewInMemoryStore()
	cmd := samplePlanCommand()
	if _, err := st.SaveWeeklyPlan(models.WeeklyPlan{
		UserID:        "user-1",
		SessionID:     "session-1",
		WeekStart:     time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		WeekEnd:       time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		WeeklyTargets: cmd.WeeklyTargets,
		Days:          cmd.Days,
		CreatedAt:     time.Now(),
	}); err != nil {
		t.Fatalf("SaveWeeklyPlan failed: %v", err)
	}

	client := &fakeGenAIClient{answer: "Your dry run starts at 09:00."}
	a := newTestAssistant(client, st)

	answer, err := a.Ask(context.Background(), "user-1", "when is the migration dry run?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if answer != "Your dry run starts at 09:00." {
		t.Errorf("answer = %q", answer)
	}
	for _, want := range []string{"migration dry run", "2026-08-31", "ship the migration"} {
		if !strings.Contains(client.lastSystem, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	if client.lastUser != "when is the migration dry run?" {
		t.Errorf("user prompt = %q", client.lastUser)
	}
}

func TestAskWithoutPlanNotesAbsence(t *testing.T) {
	client := &fakeGenAIClient{answer: "No plan yet, talk to Bella."}
	a := newTestAssistant(client, store.NewInMemoryStore())

	if _, err := a.Ask(context.Background(), "user-1", "what is scheduled?"); err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if !strings.Contains(client.lastSystem, NoActivePlanNote) {
		t.Errorf("system prompt should note the missing plan:\n%s", client.lastSystem)
	}
}

func TestAskExhaustsRetries(t *testing.T) {
	client := &fakeGenAIClient{answerErr: errors.New("upstream down")}
	a := newTestAssistant(client, store.NewInMemoryStore())

	answer, err := a.Ask(context.Background(), "user-1", "anything?")
	if !errors.Is(err, models.ErrUpstreamFailure) {
		t.Fatalf("err = %v, want ErrUpstreamFailure", err)
	}
	if answer != CannedUpstreamErrorMessage {
		t.Errorf("answer = %q, want canned error text", answer)
	}
	if client.calls != DefaultMaxAttempts {
		t.Errorf("calls = %d, want %d", client.calls, DefaultMaxAttempts)
	}
}

func TestFormatWeeklyPlanOrdersDays(t *testing.T) {
	plan := &models.WeeklyPlan{
		WeekStart: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		WeekEnd:   time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		Days: map[string]models.DayPlan{
			"friday": {Date: "2026-09-04", Tasks: []models.Task{{Time: "15:00", Task: "retro", Duration: 60, Type: models.TaskTypeWork}}},
			"monday": {Date: "2026-08-31", Tasks: []models.Task{{Time: "09:00", Task: "standup", Duration: 15, Type: models.TaskTypeWork}}},
		},
	}
	text := FormatWeeklyPlan(plan)
	monday := strings.Index(text, "Monday")
	friday := strings.Index(text, "Friday")
	if monday < 0 || friday < 0 || monday > friday {
		t.Errorf("days out of order:\n%s", text)
	}
	if !strings.Contains(text, "(60 min)") {
		t.Errorf("durations should render in minutes:\n%s", text)
	}
}
