package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/weekpilot/weekpilot/internal/models"
)

// DefaultUnhandledMessage is sent when no hook claims an inbound message.
const DefaultUnhandledMessage = "I don't have an open planning conversation with you. Say \"plan my week\" to start one."

// ResponseAction processes one inbound message from a user. It returns true
// when the message was handled; unhandled messages fall through to the
// default reply.
type ResponseAction func(ctx context.Context, from, responseText string, timestamp int64) (handled bool, err error)

// ResponseHandler routes inbound messages to per-user hooks. A hook is
// registered for the lifetime of a planning conversation and unregistered
// when the session reaches a terminal status.
type ResponseHandler struct {
	hooks          map[string]ResponseAction
	mu             sync.RWMutex
	msgService     Service
	defaultMessage string
}

// NewResponseHandler creates a response handler on top of the given transport.
func NewResponseHandler(msgService Service) *ResponseHandler {
	return &ResponseHandler{
		hooks:          make(map[string]ResponseAction),
		msgService:     msgService,
		defaultMessage: DefaultUnhandledMessage,
	}
}

// RegisterHook installs the response action for a recipient, replacing any
// previous hook.
func (rh *ResponseHandler) RegisterHook(recipient string, action ResponseAction) error {
	canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		slog.Error("ResponseHandler.RegisterHook: validation failed", "error", err, "recipient", recipient)
		return fmt.Errorf("invalid recipient: %w", err)
	}

	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.hooks[canonical] = action

	slog.Debug("ResponseHandler.RegisterHook: hook registered", "recipient", canonical)
	return nil
}

// UnregisterHook removes the response action for a recipient.
func (rh *ResponseHandler) UnregisterHook(recipient string) error {
	canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		slog.Error("ResponseHandler.UnregisterHook: validation failed", "error", err, "recipient", recipient)
		return fmt.Errorf("invalid recipient: %w", err)
	}

	rh.mu.Lock()
	defer rh.mu.Unlock()
	delete(rh.hooks, canonical)

	slog.Debug("ResponseHandler.UnregisterHook: hook unregistered", "recipient", canonical)
	return nil
}

// IsHookRegistered reports whether a hook exists for the recipient.
func (rh *ResponseHandler) IsHookRegistered(recipient string) bool {
	canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(recipient)
	if err != nil {
		return false
	}

	rh.mu.RLock()
	defer rh.mu.RUnlock()
	_, exists := rh.hooks[canonical]
	return exists
}

// HookCount returns the number of registered hooks.
func (rh *ResponseHandler) HookCount() int {
	rh.mu.RLock()
	defer rh.mu.RUnlock()
	return len(rh.hooks)
}

// SetDefaultMessage overrides the reply sent for unhandled messages.
func (rh *ResponseHandler) SetDefaultMessage(message string) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	rh.defaultMessage = message
}

// ProcessResponse routes one inbound message: a registered hook gets first
// claim; unhandled or unhooked messages get the default reply.
func (rh *ResponseHandler) ProcessResponse(ctx context.Context, response models.Response) error {
	canonical, err := rh.msgService.ValidateAndCanonicalizeRecipient(response.From)
	if err != nil {
		slog.Error("ResponseHandler.ProcessResponse: validation failed", "error", err, "from", response.From)
		return fmt.Errorf("invalid sender: %w", err)
	}

	rh.mu.RLock()
	action, hasHook := rh.hooks[canonical]
	defaultMessage := rh.defaultMessage
	rh.mu.RUnlock()

	if hasHook {
		handled, err := action(ctx, canonical, response.Body, response.Time)
		if err != nil {
			slog.Error("ResponseHandler.ProcessResponse: hook failed", "error", err, "from", canonical)
			return fmt.Errorf("hook execution failed: %w", err)
		}
		if handled {
			return nil
		}
		slog.Debug("ResponseHandler.ProcessResponse: hook declined message", "from", canonical)
	}

	if err := rh.msgService.SendMessage(ctx, canonical, defaultMessage); err != nil {
		slog.Error("ResponseHandler.ProcessResponse: default reply failed", "error", err, "from", canonical)
		return fmt.Errorf("failed to send default response: %w", err)
	}
	return nil
}

// Start consumes the transport's response stream until the context ends or
// the channel closes.
func (rh *ResponseHandler) Start(ctx context.Context) {
	slog.Info("ResponseHandler.Start: response processing started")

	go func() {
		defer slog.Info("ResponseHandler: response processing stopped")
		for {
			select {
			case response, ok := <-rh.msgService.Responses():
				if !ok {
					return
				}
				if err := rh.ProcessResponse(ctx, response); err != nil {
					slog.Error("ResponseHandler: failed to process response", "error", err, "from", response.From)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
