package flow

import (
	"context"
	"testing"

	"github.com/openai/openai-go"

	"github.com/weekpilot/weekpilot/internal/genai"
	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

// scriptedGenerator plays back a fixed sequence of replies and errors, one
// per Generate call, and records the prompts it was given.
type scriptedGenerator struct {
	replies []*Reply
	errs    []error
	calls   int
	prompts []string
}

func (g *scriptedGenerator) Generate(_ context.Context, systemPrompt string, _ []models.SessionMessage) (*Reply, error) {
	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, systemPrompt)
	if i < len(g.errs) && g.errs[i] != nil {
		return &Reply{Text: CannedUpstreamErrorMessage}, g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return &Reply{Text: "ok"}, nil
}

// fakeGenAIClient satisfies genai.ClientInterface with canned responses.
type fakeGenAIClient struct {
	toolResp   *genai.ToolCallResponse
	toolErr    error
	answer     string
	answerErr  error
	calls      int
	lastSystem string
	lastUser   string
}

func (c *fakeGenAIClient) GeneratePrompt(system, user string) (string, error) {
	return c.GeneratePromptWithContext(context.Background(), system, user)
}

func (c *fakeGenAIClient) GeneratePromptWithContext(_ context.Context, system, user string) (string, error) {
	c.calls++
	c.lastSystem = system
	c.lastUser = user
	return c.answer, c.answerErr
}

func (c *fakeGenAIClient) GenerateWithMessages(_ context.Context, _ []openai.ChatCompletionMessageParamUnion) (string, error) {
	c.calls++
	return c.answer, c.answerErr
}

func (c *fakeGenAIClient) GenerateWithTools(_ context.Context, _ []openai.ChatCompletionMessageParamUnion, _ []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	c.calls++
	if c.toolErr != nil {
		return nil, c.toolErr
	}
	return c.toolResp, nil
}

var _ genai.ClientInterface = (*fakeGenAIClient)(nil)

func newTestFlow(t *testing.T, gen ResponseGenerator) (*PlannerFlow, *store.InMemoryStore) {
	t.Helper()
	st := store.NewInMemoryStore()
	return NewPlannerFlow(st, gen, NewProfileFormatter(st)), st
}

func samplePlanCommand() models.SaveWeeklyPlanCommand {
	return models.SaveWeeklyPlanCommand{
		WeeklyTargets: []string{"ship the migration", "prepare the town hall"},
		Days: map[string]models.DayPlan{
			"monday": {
				Date: "2026-08-31",
				Tasks: []models.Task{
					{Time: "09:00", Task: "migration dry run", Duration: 90, Type: models.TaskTypeWork},
					{Time: "12:30", Task: "lunch walk", Duration: 30, Type: models.TaskTypeBreak},
				},
			},
			"wednesday": {
				Date: "2026-09-02",
				Tasks: []models.Task{
					{Time: "10:00", Task: "draft town hall slides", Duration: 120, Type: models.TaskTypeWork},
				},
			},
		},
	}
}

func mustStartSession(t *testing.T, f *PlannerFlow, userID string) *models.ConversationSession {
	t.Helper()
	session, opening, err := f.StartSession(context.Background(), userID)
	if err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}
	if opening != OpeningMessage {
		t.Fatalf("unexpected opening message: %q", opening)
	}
	return session
}

func reloadSession(t *testing.T, st *store.InMemoryStore, id string) *models.ConversationSession {
	t.Helper()
	session, err := st.GetSession(id)
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if session == nil {
		t.Fatalf("session %s not found", id)
	}
	return session
}
