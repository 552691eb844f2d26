// Package flow provides the response generator for the planning assistant.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/weekpilot/weekpilot/internal/genai"
	"github.com/weekpilot/weekpilot/internal/models"
)

// Retry configuration for model calls.
const (
	// DefaultMaxAttempts is the total number of model call attempts per turn.
	DefaultMaxAttempts = 3
	// DefaultBackoffBase is the initial retry delay; it doubles per attempt.
	DefaultBackoffBase = time.Second
)

// CannedUpstreamErrorMessage is returned to the user whenever the model is
// unreachable after retries. The conversational surface always produces some
// textual reply.
const CannedUpstreamErrorMessage = "Sorry, I'm having trouble thinking right now. Give me a moment and send your message again."

// Reply is one generated assistant turn: the text plus at most one decoded
// command. Command is nil when the model returned no recognized function
// call or its arguments were malformed.
type Reply struct {
	Text    string
	Command models.PlannerCommand
}

// ResponseGenerator produces assistant turns. Implemented by Responder and
// by test fakes.
//
// Generate must return a non-nil Reply even when it returns an error: on
// upstream failure the Reply carries the canned error text, and callers
// dereference it without a nil check to keep the conversational surface
// responsive.
type ResponseGenerator interface {
	Generate(ctx context.Context, systemPrompt string, history []models.SessionMessage) (*Reply, error)
}

// Responder calls the hosted model with the planner function schema,
// retrying failures with exponential backoff and decoding the function
// call at this boundary. It has no side effects; persistence belongs to
// the caller.
type Responder struct {
	client      genai.ClientInterface
	maxAttempts int
	backoffBase time.Duration
}

var _ ResponseGenerator = (*Responder)(nil)

// NewResponder creates a responder with the default retry policy.
func NewResponder(client genai.ClientInterface) *Responder {
	return &Responder{
		client:      client,
		maxAttempts: DefaultMaxAttempts,
		backoffBase: DefaultBackoffBase,
	}
}

// Generate produces one assistant turn from the system prompt and the
// trailing conversation history. After retry exhaustion it returns the
// canned error text together with the error so callers can log and signal
// failure without dropping the conversational reply.
func (r *Responder) Generate(ctx context.Context, systemPrompt string, history []models.SessionMessage) (*Reply, error) {
	messages := buildChatMessages(systemPrompt, history)
	tools := plannerToolDefinitions()

	var lastErr error
	backoff := r.backoffBase
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		resp, err := r.client.GenerateWithTools(ctx, messages, tools)
		if err == nil {
			return decodeReply(resp), nil
		}
		lastErr = err
		slog.Error("Responder.Generate: model call failed", "attempt", attempt, "maxAttempts", r.maxAttempts, "error", err)

		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return &Reply{Text: CannedUpstreamErrorMessage}, fmt.Errorf("%w: %v", models.ErrUpstreamFailure, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return &Reply{Text: CannedUpstreamErrorMessage}, fmt.Errorf("%w: %v", models.ErrUpstreamFailure, lastErr)
}

// decodeReply converts the raw model response into a Reply. Only the first
// tool call is considered; malformed arguments degrade to a text-only turn.
func decodeReply(resp *genai.ToolCallResponse) *Reply {
	reply := &Reply{Text: resp.Content}
	if len(resp.ToolCalls) == 0 {
		return reply
	}
	if len(resp.ToolCalls) > 1 {
		slog.Warn("Responder.decodeReply: multiple tool calls returned, using first", "count", len(resp.ToolCalls))
	}

	call := resp.ToolCalls[0]
	cmd, err := models.DecodePlannerCommand(call.Function.Name, call.Function.Arguments)
	if err != nil {
		slog.Warn("Responder.decodeReply: dropping undecodable function call", "function", call.Function.Name, "error", err)
		return reply
	}
	reply.Command = cmd
	return reply
}

// buildChatMessages converts session history to OpenAI chat messages,
// truncated to the trailing HistoryWindow entries.
func buildChatMessages(systemPrompt string, history []models.SessionMessage) []openai.ChatCompletionMessageParamUnion {
	if len(history) > models.HistoryWindow {
		history = history[len(history)-models.HistoryWindow:]
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	messages = append(messages, openai.SystemMessage(systemPrompt))
	for _, msg := range history {
		switch msg.Role {
		case models.MessageRoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}

// plannerToolDefinitions returns the fixed two-member function schema.
func plannerToolDefinitions() []openai.ChatCompletionToolParam {
	return []openai.ChatCompletionToolParam{
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ToolSetContinuationFlag),
				Description: openai.String("Signal whether more information must be gathered before building the weekly plan. Call with continueConversation=false once enough context has been collected."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"continueConversation": map[string]interface{}{
							"type":        "boolean",
							"description": "true to keep collecting information, false to move on to plan synthesis",
						},
					},
					"required": []string{"continueConversation"},
				},
			},
		},
		{
			Type: "function",
			Function: shared.FunctionDefinitionParam{
				Name:        string(models.ToolSaveWeeklyPlan),
				Description: openai.String("Save the final weekly plan once targets and a day-by-day schedule are settled."),
				Parameters: shared.FunctionParameters{
					"type": "object",
					"properties": map[string]interface{}{
						"weeklyTargets": map[string]interface{}{
							"type":        "array",
							"items":       map[string]interface{}{"type": "string"},
							"description": "The user's free-text goals for the week",
						},
						"days": map[string]interface{}{
							"type":        "object",
							"description": "Mapping from weekday name (monday..friday) to the day's date and task list",
							"additionalProperties": map[string]interface{}{
								"type": "object",
								"properties": map[string]interface{}{
									"date": map[string]interface{}{"type": "string"},
									"tasks": map[string]interface{}{
										"type": "array",
										"items": map[string]interface{}{
											"type": "object",
											"properties": map[string]interface{}{
												"time":     map[string]interface{}{"type": "string"},
												"task":     map[string]interface{}{"type": "string"},
												"duration": map[string]interface{}{"type": "number"},
												"type": map[string]interface{}{
													"type": "string",
													"enum": []string{"routine", "work", "break", "personal", "travel"},
												},
											},
											"required": []string{"time", "task"},
										},
									},
								},
								"required": []string{"date", "tasks"},
							},
						},
					},
					"required": []string{"weeklyTargets", "days"},
				},
			},
		},
	}
}
