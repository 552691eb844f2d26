// Package flow provides the weekly-planning conversation lifecycle controller.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

// Canned assistant messages for lifecycle events.
const (
	// OpeningMessage starts every planning conversation.
	OpeningMessage = "Hi, I'm Bella! Let's plan your week. What are the main things you want to get done, and is there anything fixed on your calendar I should plan around?"
	// CompletionMessage is appended once a plan has been saved.
	CompletionMessage = "Your weekly plan is saved! I've laid out your targets across Monday to Friday. Ask Dave any time you need help navigating your schedule."
	// ForcedCompletionMessage is appended when the iteration ceiling trips.
	ForcedCompletionMessage = "We've covered a lot of ground, so I'm wrapping up this planning session here. Start a new session whenever you want to build this week's plan."
	// PlanningRetryMessage is used when a planning pass returned text-free output without a savable plan.
	PlanningRetryMessage = "I still need a little more detail before I can lay out the week. Could you confirm your main goals one more time?"
	// PlanningFailedMessage is appended when plan synthesis keeps failing.
	PlanningFailedMessage = "I wasn't able to put a weekly plan together from our conversation. I'm closing this session; please start a new one and we'll try again."
)

// System prompts for the planner.
const (
	bellaSystemPrompt = `You are Bella, a friendly weekly-planning assistant. Interview the user
about their goals and constraints for the coming work week. Once you have
enough context, call set_continuation_flag with continueConversation=false.
When asked to synthesize the plan, call save_weekly_plan with the user's
weekly targets and a realistic Monday-to-Friday schedule that respects
their profile.`

	planningInstruction = `Enough context has been collected. Build the final weekly plan now and
call save_weekly_plan. Do not ask further questions.`
)

// plannerAction is the follow-up the engine must take after a transition.
type plannerAction int

const (
	// actionNone appends the assistant text with no status change.
	actionNone plannerAction = iota
	// actionAwaitUser records the continuation decision and waits for the next human turn.
	actionAwaitUser
	// actionRunPlanning enters planning and immediately runs a synthesis pass.
	actionRunPlanning
	// actionPersistPlan persists the returned plan and completes the session.
	actionPersistPlan
)

// decide is the single dispatch point of the state machine: it maps the
// current status and the model's command to the next status plus the action
// to apply. It is pure; all effects live in the engine.
func decide(status models.SessionStatus, cmd models.PlannerCommand) (models.SessionStatus, plannerAction) {
	switch c := cmd.(type) {
	case models.SetContinuationFlagCommand:
		if c.ContinueConversation {
			return models.SessionStatusAwaitingUser, actionAwaitUser
		}
		return models.SessionStatusPlanning, actionRunPlanning
	case models.SaveWeeklyPlanCommand:
		// Honored from any non-terminal status: a model that volunteers a
		// complete plan early should not be forced through another turn.
		return models.SessionStatusCompleted, actionPersistPlan
	default:
		return status, actionNone
	}
}

// PlannerFlow owns the planning conversation state machine. Sessions are
// mutated only here; terminal sessions reject further messages.
type PlannerFlow struct {
	store     store.Store
	generator ResponseGenerator
	profiles  *ProfileFormatter
}

// NewPlannerFlow creates the lifecycle controller.
func NewPlannerFlow(st store.Store, generator ResponseGenerator, profiles *ProfileFormatter) *PlannerFlow {
	return &PlannerFlow{store: st, generator: generator, profiles: profiles}
}

// StartSession creates a new active session for the user and returns it
// together with the opening assistant message. The opening message does not
// count against the iteration ceiling.
func (f *PlannerFlow) StartSession(ctx context.Context, userID string) (*models.ConversationSession, string, error) {
	if userID == "" {
		return nil, "", models.ErrEmptyUserID
	}
	now := time.Now()
	session := &models.ConversationSession{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    models.SessionStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	appendMessage(session, models.MessageRoleAssistant, OpeningMessage)
	if err := f.store.SaveSession(*session); err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}
	slog.Info("PlannerFlow.StartSession: session created", "sessionID", session.ID, "userID", userID)
	return session, OpeningMessage, nil
}

// ProcessUserMessage runs one synchronous pass of the state machine for an
// inbound user message.
func (f *PlannerFlow) ProcessUserMessage(ctx context.Context, sessionID, userMessage string) (*models.SessionRespondResult, error) {
	session, err := f.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		slog.Debug("PlannerFlow.ProcessUserMessage: session not found", "sessionID", sessionID)
		return nil, models.ErrSessionNotFound
	}
	if session.Status.IsTerminal() {
		slog.Debug("PlannerFlow.ProcessUserMessage: session terminal", "sessionID", sessionID, "status", session.Status)
		return nil, models.ErrSessionTerminal
	}

	// The user's message is persisted up front so it survives any later
	// failure in the turn.
	appendMessage(session, models.MessageRoleUser, userMessage)
	if err := f.saveSession(session); err != nil {
		return nil, err
	}

	// Circuit breaker against runaway loops: force completion without
	// calling the generator at all.
	if session.Iteration >= models.MaxIterations {
		slog.Warn("PlannerFlow.ProcessUserMessage: iteration ceiling reached, forcing completion",
			"sessionID", session.ID, "iteration", session.Iteration)
		session.Status = models.SessionStatusCompleted
		session.ContinuationFlag = false
		return f.respond(session, ForcedCompletionMessage)
	}

	if session.Status == models.SessionStatusPlanning {
		return f.planningPass(ctx, session)
	}

	reply, err := f.generator.Generate(ctx, f.systemPrompt(session.UserID), session.Messages)
	if err != nil {
		// The user keeps their appended message; no assistant message is
		// recorded for a turn that produced nothing.
		slog.Error("PlannerFlow.ProcessUserMessage: generation failed", "error", err,
			"sessionID", session.ID, "userID", session.UserID)
		return &models.SessionRespondResult{Success: false, AssistantMessage: reply.Text}, err
	}

	next, act := decide(session.Status, reply.Command)
	session.Status = next

	switch act {
	case actionAwaitUser:
		session.ContinuationFlag = true
		text := reply.Text
		if text == "" {
			text = "Got it. What else should I know before I build the plan?"
		}
		return f.respond(session, text)

	case actionRunPlanning:
		session.ContinuationFlag = false
		if reply.Text != "" {
			appendMessage(session, models.MessageRoleAssistant, reply.Text)
		}
		if err := f.saveSession(session); err != nil {
			return nil, err
		}
		return f.planningPass(ctx, session)

	case actionPersistPlan:
		return f.completeWithPlan(session, reply.Command.(models.SaveWeeklyPlanCommand), reply.Text)

	default:
		// No recognized function call: append the text and await the next
		// human turn with no status change.
		return f.respond(session, reply.Text)
	}
}

// planningPass issues the planning-focused model call expected to produce
// save_weekly_plan. Repeated failures are bounded: after MaxPlanAttempts
// passes without a savable plan the session moves to error rather than
// sticking in planning forever.
func (f *PlannerFlow) planningPass(ctx context.Context, session *models.ConversationSession) (*models.SessionRespondResult, error) {
	prompt := f.systemPrompt(session.UserID) + "\n\n" + planningInstruction
	reply, err := f.generator.Generate(ctx, prompt, session.Messages)
	if err != nil {
		slog.Error("PlannerFlow.planningPass: generation failed", "error", err,
			"sessionID", session.ID, "userID", session.UserID)
		return &models.SessionRespondResult{Success: false, AssistantMessage: reply.Text}, err
	}

	if cmd, ok := reply.Command.(models.SaveWeeklyPlanCommand); ok {
		return f.completeWithPlan(session, cmd, reply.Text)
	}

	session.PlanAttempts++
	slog.Warn("PlannerFlow.planningPass: planning call produced no savable plan",
		"sessionID", session.ID, "planAttempts", session.PlanAttempts)

	if session.PlanAttempts >= models.MaxPlanAttempts {
		session.Status = models.SessionStatusError
		result, saveErr := f.respond(session, PlanningFailedMessage)
		if saveErr != nil {
			return nil, saveErr
		}
		result.Success = false
		return result, models.ErrPlanNotProduced
	}

	// Session stays in planning; the next user turn re-enters synthesis.
	text := reply.Text
	if text == "" {
		text = PlanningRetryMessage
	}
	return f.respond(session, text)
}

// completeWithPlan persists the plan and marks the session completed.
// WeeklyPlanID is only ever set here, immediately after a successful save.
func (f *PlannerFlow) completeWithPlan(session *models.ConversationSession, cmd models.SaveWeeklyPlanCommand, leadText string) (*models.SessionRespondResult, error) {
	weekStart, weekEnd := nextWeekBounds(time.Now())
	saved, err := f.store.SaveWeeklyPlan(models.WeeklyPlan{
		UserID:        session.UserID,
		SessionID:     session.ID,
		WeekStart:     weekStart,
		WeekEnd:       weekEnd,
		WeeklyTargets: cmd.WeeklyTargets,
		Days:          cmd.Days,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		// Leave the session in its last-written state; the next user turn
		// re-enters processing.
		slog.Error("PlannerFlow.completeWithPlan: plan save failed", "error", err,
			"sessionID", session.ID, "userID", session.UserID)
		return nil, fmt.Errorf("failed to persist weekly plan: %w", err)
	}

	session.Status = models.SessionStatusCompleted
	session.ContinuationFlag = false
	session.WeeklyPlanID = saved.ID
	session.ExtractedTargets = cmd.WeeklyTargets

	if leadText != "" {
		appendMessage(session, models.MessageRoleAssistant, leadText)
	}
	result, err := f.respond(session, CompletionMessage)
	if err != nil {
		return nil, err
	}
	slog.Info("PlannerFlow.completeWithPlan: session completed", "sessionID", session.ID,
		"userID", session.UserID, "planID", saved.ID)
	return result, nil
}

// respond appends one assistant message, counts the assistant turn, and
// persists the session.
func (f *PlannerFlow) respond(session *models.ConversationSession, text string) (*models.SessionRespondResult, error) {
	appendMessage(session, models.MessageRoleAssistant, text)
	session.Iteration++
	if err := f.saveSession(session); err != nil {
		return nil, err
	}
	return &models.SessionRespondResult{Success: true, AssistantMessage: text}, nil
}

func (f *PlannerFlow) saveSession(session *models.ConversationSession) error {
	session.UpdatedAt = time.Now()
	if err := f.store.SaveSession(*session); err != nil {
		slog.Error("PlannerFlow.saveSession failed", "error", err, "sessionID", session.ID)
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

func (f *PlannerFlow) systemPrompt(userID string) string {
	return f.profiles.Format(userID) + "\n\n" + bellaSystemPrompt
}

func appendMessage(session *models.ConversationSession, role models.MessageRole, content string) {
	session.Messages = append(session.Messages, models.SessionMessage{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Role:      role,
		Content:   content,
	})
}

// nextWeekBounds computes the upcoming Monday (today when run on a Monday)
// and the Friday four days later, at midnight in the given time's location.
func nextWeekBounds(from time.Time) (time.Time, time.Time) {
	daysUntilMonday := (int(time.Monday) - int(from.Weekday()) + 7) % 7
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location()).AddDate(0, 0, daysUntilMonday)
	return start, start.AddDate(0, 0, 4)
}
