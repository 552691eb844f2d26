// Package models defines the core data structures for WeekPilot.
//
// It includes types for planning sessions, weekly plans, and user profiles,
// which are shared across modules.
package models

import (
	"errors"
	"time"
)

// SessionStatus represents the lifecycle state of a planning conversation.
type SessionStatus string

const (
	// SessionStatusActive indicates the session is collecting information.
	SessionStatusActive SessionStatus = "active"
	// SessionStatusAwaitingUser indicates the session is waiting for the next human turn.
	SessionStatusAwaitingUser SessionStatus = "awaiting_user"
	// SessionStatusPlanning indicates the session is ready to synthesize a final plan.
	SessionStatusPlanning SessionStatus = "planning"
	// SessionStatusCompleted indicates a plan was saved or completion was forced.
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusError indicates the session failed and accepts no further messages.
	SessionStatusError SessionStatus = "error"
)

// Validation constants for input validation
const (
	// MaxUserMessageLength defines the maximum allowed length for a user message
	MaxUserMessageLength = 4096
	// MaxIterations defines the hard ceiling on assistant turns before a
	// session is force-completed
	MaxIterations = 20
	// HistoryWindow defines how many trailing messages are sent to the model
	HistoryWindow = 10
	// MaxPlanAttempts defines how many planning-synthesis passes may fail
	// before the session is moved to error
	MaxPlanAttempts = 3
)

// Error variables for better error handling and testability
var (
	ErrEmptyUserID        = errors.New("user_id cannot be empty")
	ErrEmptySessionID     = errors.New("session_id cannot be empty")
	ErrEmptyUserMessage   = errors.New("user_message cannot be empty")
	ErrUserMessageTooLong = errors.New("user_message exceeds maximum length")
	ErrEmptyQuestion      = errors.New("question cannot be empty")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionTerminal    = errors.New("session is completed or failed and accepts no further messages")
	ErrPlanNotFound       = errors.New("weekly plan not found")
	ErrProfileNotFound    = errors.New("profile not found")
	ErrUpstreamFailure    = errors.New("model call failed after retries")
	ErrPlanNotProduced    = errors.New("planning call did not produce a savable plan")
	ErrInvalidStatus      = errors.New("invalid session status")
	ErrMissingTaskTime    = errors.New("task time is required")
	ErrMissingTaskText    = errors.New("task description is required")
	ErrInvalidTaskType    = errors.New("invalid task type")
	ErrEmptyWeeklyTargets = errors.New("weekly_targets cannot be empty")
	ErrEmptyPlanDays      = errors.New("days cannot be empty")
)

// IsValidSessionStatus checks if the given session status is supported.
func IsValidSessionStatus(s SessionStatus) bool {
	switch s {
	case SessionStatusActive, SessionStatusAwaitingUser, SessionStatusPlanning, SessionStatusCompleted, SessionStatusError:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status accepts no further messages.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusError
}

// MessageRole identifies the author of a conversation message.
type MessageRole string

const (
	// MessageRoleUser marks a message authored by the human participant.
	MessageRoleUser MessageRole = "user"
	// MessageRoleAssistant marks a message authored by the planning assistant.
	MessageRoleAssistant MessageRole = "assistant"
)

// SessionMessage is one entry in a session's append-only transcript.
type SessionMessage struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
}

// ConversationSession represents one end-to-end planning conversation.
// It is mutated only by the lifecycle controller and becomes immutable
// once it reaches a terminal status.
type ConversationSession struct {
	ID               string           `json:"session_id"`
	UserID           string           `json:"user_id"`
	Messages         []SessionMessage `json:"messages"`
	Status           SessionStatus    `json:"status"`
	Iteration        int              `json:"iteration"`
	ContinuationFlag bool             `json:"continuation_flag"`
	ExtractedTargets []string         `json:"extracted_targets,omitempty"`
	WeeklyPlanID     string           `json:"weekly_plan_id,omitempty"`
	PlanAttempts     int              `json:"plan_attempts"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// PlanStatus represents whether a weekly plan is in effect or superseded.
type PlanStatus string

const (
	// PlanStatusActive indicates the plan currently in effect for the user.
	PlanStatusActive PlanStatus = "active"
	// PlanStatusArchived indicates the plan was superseded by a newer one.
	PlanStatusArchived PlanStatus = "archived"
)

// TaskType categorizes a scheduled task.
type TaskType string

const (
	TaskTypeRoutine  TaskType = "routine"
	TaskTypeWork     TaskType = "work"
	TaskTypeBreak    TaskType = "break"
	TaskTypePersonal TaskType = "personal"
	TaskTypeTravel   TaskType = "travel"
)

// IsValidTaskType checks if the given task type is supported.
func IsValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeRoutine, TaskTypeWork, TaskTypeBreak, TaskTypePersonal, TaskTypeTravel:
		return true
	default:
		return false
	}
}

// Task is one scheduled item within a day plan.
type Task struct {
	Time     string   `json:"time"`
	Task     string   `json:"task"`
	Duration int      `json:"duration,omitempty"` // minutes
	Type     TaskType `json:"type,omitempty"`
}

// Validate checks the required fields of a Task.
func (t *Task) Validate() error {
	if t.Time == "" {
		return ErrMissingTaskTime
	}
	if t.Task == "" {
		return ErrMissingTaskText
	}
	if t.Type != "" && !IsValidTaskType(t.Type) {
		return ErrInvalidTaskType
	}
	return nil
}

// DayPlan holds the scheduled tasks for a single weekday.
type DayPlan struct {
	Date  string `json:"date"`
	Tasks []Task `json:"tasks"`
}

// Validate checks every task in the day plan.
func (d *DayPlan) Validate() error {
	for i := range d.Tasks {
		if err := d.Tasks[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// WeeklyPlan represents one produced plan. It is created once per
// successful planning session and never mutated except for its status
// when superseded.
type WeeklyPlan struct {
	ID            string             `json:"id"`
	UserID        string             `json:"user_id"`
	SessionID     string             `json:"session_id"`
	WeekStart     time.Time          `json:"week_start"`
	WeekEnd       time.Time          `json:"week_end"`
	WeeklyTargets []string           `json:"weekly_targets"`
	Days          map[string]DayPlan `json:"days"`
	Status        PlanStatus         `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// UserProfile holds the onboarding data rendered into model prompts.
type UserProfile struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name,omitempty"`
	Role        string    `json:"role,omitempty"`
	WorkHours   string    `json:"work_hours,omitempty"` // e.g., "9:00-17:00"
	FocusAreas  []string  `json:"focus_areas,omitempty"`
	Constraints string    `json:"constraints,omitempty"`
	Timezone    string    `json:"timezone,omitempty"` // e.g., "America/Toronto"
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate checks the optional fields of a UserProfile.
func (p *UserProfile) Validate() error {
	if p.UserID == "" {
		return ErrEmptyUserID
	}
	if p.Timezone != "" {
		if _, err := time.LoadLocation(p.Timezone); err != nil {
			return errors.New("invalid timezone")
		}
	}
	return nil
}

// MessageStatus represents the delivery status of an outbound chat message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records the delivery outcome of an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an incoming chat-platform message from a user.
type Response struct {
	From string `json:"from"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// API request/response types for consistent JSON handling

// CreateSessionRequest is the payload for starting a planning conversation.
type CreateSessionRequest struct {
	UserID string `json:"user_id"`
}

// Validate checks the required fields of a CreateSessionRequest.
func (r *CreateSessionRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	return nil
}

// SessionRespondRequest is the payload for one user turn in a session.
type SessionRespondRequest struct {
	SessionID   string `json:"session_id"`
	UserMessage string `json:"user_message"`
}

// Validate checks the required fields of a SessionRespondRequest.
func (r *SessionRespondRequest) Validate() error {
	if r.SessionID == "" {
		return ErrEmptySessionID
	}
	if r.UserMessage == "" {
		return ErrEmptyUserMessage
	}
	if len(r.UserMessage) > MaxUserMessageLength {
		return ErrUserMessageTooLong
	}
	return nil
}

// SessionRespondResult is returned for every user turn. Success is false
// when the assistant message is the canned upstream-failure text.
type SessionRespondResult struct {
	Success          bool   `json:"success"`
	AssistantMessage string `json:"assistant_message"`
}

// AssistantAskRequest is the payload for a scheduling question.
type AssistantAskRequest struct {
	UserID   string `json:"user_id"`
	Question string `json:"question"`
}

// Validate checks the required fields of an AssistantAskRequest.
func (r *AssistantAskRequest) Validate() error {
	if r.UserID == "" {
		return ErrEmptyUserID
	}
	if r.Question == "" {
		return ErrEmptyQuestion
	}
	if len(r.Question) > MaxUserMessageLength {
		return ErrUserMessageTooLong
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Convenience functions for common response patterns

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
