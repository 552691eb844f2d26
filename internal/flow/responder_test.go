package flow

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/weekpilot/weekpilot/internal/genai"
	"github.com/weekpilot/weekpilot/internal/models"
)

func newTestResponder(client genai.ClientInterface) *Responder {
	return &Responder{client: client, maxAttempts: DefaultMaxAttempts, backoffBase: time.Millisecond}
}

func TestResponderReturnsTextOnlyReply(t *testing.T) {
	client := &fakeGenAIClient{toolResp: &genai.ToolCallResponse{Content: "tell me more"}}
	r := newTestResponder(client)

	reply, err := r.Generate(context.Background(), "system", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply.Text != "tell me more" || reply.Command != nil {
		t.Errorf("unexpected reply: %+v", reply)
	}
}

func TestResponderDecodesFirstToolCall(t *testing.T) {
	client := &fakeGenAIClient{toolResp: &genai.ToolCallResponse{
		Content: "sounds good",
		ToolCalls: []genai.ToolCall{
			{ID: "call-1", Type: "function", Function: genai.FunctionCall{
				Name:      string(models.ToolSetContinuationFlag),
				Arguments: json.RawMessage(`{"continueConversation": true}`),
			}},
			{ID: "call-2", Type: "function", Function: genai.FunctionCall{
				Name:      string(models.ToolSetContinuationFlag),
				Arguments: json.RawMessage(`{"continueConversation": false}`),
			}},
		},
	}}
	r := newTestResponder(client)

	reply, err := r.Generate(context.Background(), "system", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	cmd, ok := reply.Command.(models.SetContinuationFlagCommand)
	if !ok {
		t.Fatalf("command = %T, want SetContinuationFlagCommand", reply.Command)
	}
	if !cmd.ContinueConversation {
		t.Error("expected the first tool call's arguments to win")
	}
}

func TestResponderMalformedArgumentsDegradeToText(t *testing.T) {
	client := &fakeGenAIClient{toolResp: &genai.ToolCallResponse{
		Content: "here is the plan",
		ToolCalls: []genai.ToolCall{
			{ID: "call-1", Type: "function", Function: genai.FunctionCall{
				Name:      string(models.ToolSaveWeeklyPlan),
				Arguments: json.RawMessage(`{"weeklyTargets": `),
			}},
		},
	}}
	r := newTestResponder(client)

	reply, err := r.Generate(context.Background(), "system", nil)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if reply.Command != nil {
		t.Errorf("malformed arguments must yield no command, got %T", reply.Command)
	}
	if reply.Text != "here is the plan" {
		t.Errorf("text = %q, want the model content preserved", reply.Text)
	}
}

func TestResponderExhaustsRetries(t *testing.T) {
	client := &fakeGenAIClient{toolErr: errors.New("upstream down")}
	r := newTestResponder(client)

	reply, err := r.Generate(context.Background(), "system", nil)
	if !errors.Is(err, models.ErrUpstreamFailure) {
		t.Fatalf("err = %v, want ErrUpstreamFailure", err)
	}
	if reply == nil || reply.Text != CannedUpstreamErrorMessage {
		t.Errorf("reply = %+v, want the canned error text", reply)
	}
	if client.calls != DefaultMaxAttempts {
		t.Errorf("calls = %d, want %d", client.calls, DefaultMaxAttempts)
	}
}

func TestResponderStopsOnCancelledContext(t *testing.T) {
	client := &fakeGenAIClient{toolErr: errors.New("upstream down")}
	r := &Responder{client: client, maxAttempts: DefaultMaxAttempts, backoffBase: time.Minute}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reply, err := r.Generate(ctx, "system", nil)
	if !errors.Is(err, models.ErrUpstreamFailure) {
		t.Fatalf("err = %v, want ErrUpstreamFailure", err)
	}
	if reply.Text != CannedUpstreamErrorMessage {
		t.Errorf("reply text = %q, want canned error text", reply.Text)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 before the cancelled backoff", client.calls)
	}
}

func TestBuildChatMessagesTruncatesHistory(t *testing.T) {
	history := make([]models.SessionMessage, models.HistoryWindow+5)
	for i := range history {
		history[i] = models.SessionMessage{Role: models.MessageRoleUser, Content: "m"}
	}
	messages := buildChatMessages("system", history)
	// system prompt plus the trailing window
	if len(messages) != models.HistoryWindow+1 {
		t.Errorf("messages = %d, want %d", len(messages), models.HistoryWindow+1)
	}
}

func TestPlannerToolDefinitions(t *testing.T) {
	tools := plannerToolDefinitions()
	if len(tools) != 2 {
		t.Fatalf("tools = %d, want 2", len(tools))
	}
	names := map[string]bool{}
	for _, tool := range tools {
		names[tool.Function.Name] = true
	}
	if !names[string(models.ToolSetContinuationFlag)] || !names[string(models.ToolSaveWeeklyPlan)] {
		t.Errorf("unexpected tool names: %v", names)
	}
}
