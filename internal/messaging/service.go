// Package messaging defines the pluggable chat delivery abstraction and the
// stateful routing of inbound user responses.
package messaging

import (
	"context"

	"github.com/weekpilot/weekpilot/internal/models"
)

// Service is a chat transport. Implementations canonicalize their own
// recipient identifiers (Slack user IDs, channel IDs) and surface inbound
// traffic on the Responses channel.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a
	// recipient identifier according to the transport's rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a plain-text message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins background processing; Stop tears it down.
	Start(ctx context.Context) error
	Stop() error

	// Receipts streams delivery outcomes for outbound messages.
	Receipts() <-chan models.Receipt

	// Responses streams inbound user messages.
	Responses() <-chan models.Response
}
