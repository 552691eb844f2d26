package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/weekpilot/weekpilot/internal/genai"
	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

const daveSystemPrompt = `You are Dave, a pragmatic assistant who helps the user navigate their
saved weekly plan. Answer questions about what is scheduled, when, and how
to adjust around conflicts. Be concise and concrete. If no plan exists yet,
tell the user to run a planning session with Bella first.`

// NoActivePlanNote is injected into Dave's context when the user has no
// current plan.
const NoActivePlanNote = "The user has no active weekly plan."

var weekdayOrder = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// AssistantFlow answers questions against the user's active weekly plan.
// It is read-only: it never mutates sessions or plans.
type AssistantFlow struct {
	client      genai.ClientInterface
	store       store.Store
	profiles    *ProfileFormatter
	maxAttempts int
	backoffBase time.Duration
}

// NewAssistantFlow creates the plan-navigation assistant.
func NewAssistantFlow(client genai.ClientInterface, st store.Store, profiles *ProfileFormatter) *AssistantFlow {
	return &AssistantFlow{
		client:      client,
		store:       st,
		profiles:    profiles,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
	}
}

// Ask answers a single question about the user's active plan. On upstream
// exhaustion it returns the canned error text together with the wrapped
// error so callers can distinguish degraded answers.
func (a *AssistantFlow) Ask(ctx context.Context, userID, question string) (string, error) {
	if userID == "" {
		return "", models.ErrEmptyUserID
	}
	if question == "" {
		return "", models.ErrEmptyQuestion
	}

	planText := NoActivePlanNote
	plan, err := a.store.GetActiveWeeklyPlan(userID)
	if err != nil {
		slog.Warn("AssistantFlow.Ask: failed to load active plan, answering without it",
			"error", err, "userID", userID)
	} else if plan != nil {
		planText = FormatWeeklyPlan(plan)
	}

	systemPrompt := a.profiles.Format(userID) + "\n\n" + daveSystemPrompt + "\n\nCurrent weekly plan:\n" + planText

	var lastErr error
	backoff := a.backoffBase
	for attempt := 1; attempt <= a.maxAttempts; attempt++ {
		answer, err := a.client.GeneratePromptWithContext(ctx, systemPrompt, question)
		if err == nil {
			return answer, nil
		}
		lastErr = err
		slog.Warn("AssistantFlow.Ask: generation attempt failed", "error", err,
			"attempt", attempt, "userID", userID)
		if attempt == a.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return CannedUpstreamErrorMessage, fmt.Errorf("%w: %v", models.ErrUpstreamFailure, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return CannedUpstreamErrorMessage, fmt.Errorf("%w: %v", models.ErrUpstreamFailure, lastErr)
}

// FormatWeeklyPlan renders a plan as readable text, days in weekday order.
func FormatWeeklyPlan(plan *models.WeeklyPlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Week of %s to %s\n", plan.WeekStart.Format("2006-01-02"), plan.WeekEnd.Format("2006-01-02"))
	if len(plan.WeeklyTargets) > 0 {
		b.WriteString("Weekly targets:\n")
		for _, target := range plan.WeeklyTargets {
			fmt.Fprintf(&b, "- %s\n", target)
		}
	}
	for _, weekday := range weekdayOrder {
		day, ok := plan.Days[weekday]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s (%s):\n", titleCase(weekday), day.Date)
		for _, task := range day.Tasks {
			fmt.Fprintf(&b, "  %s %s", task.Time, task.Task)
			if task.Duration > 0 {
				fmt.Fprintf(&b, " (%d min)", task.Duration)
			}
			if task.Type != "" {
				fmt.Fprintf(&b, " [%s]", task.Type)
			}
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
