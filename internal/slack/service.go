// Package slack implements the Slack chat transport: outbound delivery via
// the Web API and inbound delivery via the Events API webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/slack-go/slack"

	"github.com/weekpilot/weekpilot/internal/flow"
	"github.com/weekpilot/weekpilot/internal/messaging"
	"github.com/weekpilot/weekpilot/internal/models"
)

// Sentinel errors for recipient validation.
var (
	ErrEmptyRecipient   = errors.New("recipient is empty")
	ErrInvalidRecipient = errors.New("recipient is not a Slack user or channel ID")
)

// Slack IDs: users start with U or W, channels and DMs with C, D, or G.
var recipientPattern = regexp.MustCompile(`^[UWCDG][A-Z0-9]{2,}$`)

const channelBufferSize = 64

// webAPI is the slice of the Slack Web API the service uses. The concrete
// *slack.Client satisfies it; tests inject a fake.
type webAPI interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Service delivers messages through Slack and surfaces inbound events
// accepted by the webhook handler.
type Service struct {
	api       webAPI
	receipts  chan models.Receipt
	responses chan models.Response
}

var _ messaging.Service = (*Service)(nil)

// NewService creates a Slack transport using the given bot token.
func NewService(botToken string) *Service {
	return newServiceWithAPI(slack.New(botToken))
}

func newServiceWithAPI(api webAPI) *Service {
	return &Service{
		api:       api,
		receipts:  make(chan models.Receipt, channelBufferSize),
		responses: make(chan models.Response, channelBufferSize),
	}
}

// ValidateAndCanonicalizeRecipient upcases and validates a Slack ID.
func (s *Service) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	canonical := strings.ToUpper(strings.TrimSpace(recipient))
	if canonical == "" {
		return "", ErrEmptyRecipient
	}
	if !recipientPattern.MatchString(canonical) {
		return "", fmt.Errorf("%w: %s", ErrInvalidRecipient, recipient)
	}
	return canonical, nil
}

// SendMessage posts a plain-text message and records a delivery receipt.
func (s *Service) SendMessage(ctx context.Context, to, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	_, _, err = s.api.PostMessageContext(ctx, canonical, slack.MsgOptionText(body, false))
	if err != nil {
		slog.Error("Service.SendMessage: post failed", "error", err, "to", canonical)
		s.emitReceipt(canonical, models.MessageStatusFailed)
		return fmt.Errorf("failed to send Slack message: %w", err)
	}
	s.emitReceipt(canonical, models.MessageStatusSent)
	return nil
}

// SendWeeklyPlan posts a plan as Block Kit blocks, falling back to the text
// rendering for clients that cannot display blocks.
func (s *Service) SendWeeklyPlan(ctx context.Context, to string, plan *models.WeeklyPlan) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	_, _, err = s.api.PostMessageContext(ctx, canonical,
		slack.MsgOptionBlocks(planBlocks(plan)...),
		slack.MsgOptionText(flow.FormatWeeklyPlan(plan), false),
	)
	if err != nil {
		slog.Error("Service.SendWeeklyPlan: post failed", "error", err, "to", canonical)
		s.emitReceipt(canonical, models.MessageStatusFailed)
		return fmt.Errorf("failed to send weekly plan: %w", err)
	}
	s.emitReceipt(canonical, models.MessageStatusSent)
	return nil
}

// Start is a no-op: inbound traffic arrives through the webhook handler.
func (s *Service) Start(ctx context.Context) error {
	slog.Info("Service.Start: Slack transport ready")
	return nil
}

// Stop closes the event channels.
func (s *Service) Stop() error {
	close(s.receipts)
	close(s.responses)
	return nil
}

// Receipts streams delivery outcomes.
func (s *Service) Receipts() <-chan models.Receipt { return s.receipts }

// Responses streams inbound user messages.
func (s *Service) Responses() <-chan models.Response { return s.responses }

// enqueueResponse hands an accepted inbound event to the response stream.
// It drops on a full buffer rather than blocking the webhook request.
func (s *Service) enqueueResponse(response models.Response) bool {
	select {
	case s.responses <- response:
		return true
	default:
		slog.Warn("Service.enqueueResponse: response buffer full, dropping event", "from", response.From)
		return false
	}
}

func (s *Service) emitReceipt(to string, status models.MessageStatus) {
	select {
	case s.receipts <- models.Receipt{To: to, Status: status, Time: time.Now().Unix()}:
	default:
		slog.Debug("Service.emitReceipt: receipt buffer full, dropping", "to", to)
	}
}

// planBlocks renders a weekly plan as Block Kit blocks, days in order.
func planBlocks(plan *models.WeeklyPlan) []slack.Block {
	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
			fmt.Sprintf("Week of %s", plan.WeekStart.Format("Jan 2")), false, false)),
	}
	if len(plan.WeeklyTargets) > 0 {
		var targets strings.Builder
		targets.WriteString("*Weekly targets*\n")
		for _, target := range plan.WeeklyTargets {
			fmt.Fprintf(&targets, "• %s\n", target)
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, strings.TrimRight(targets.String(), "\n"), false, false), nil, nil))
	}
	for _, weekday := range []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"} {
		day, ok := plan.Days[weekday]
		if !ok {
			continue
		}
		var section strings.Builder
		fmt.Fprintf(&section, "*%s%s* (%s)\n", strings.ToUpper(weekday[:1]), weekday[1:], day.Date)
		for _, task := range day.Tasks {
			fmt.Fprintf(&section, "`%s` %s", task.Time, task.Task)
			if task.Duration > 0 {
				fmt.Fprintf(&section, " _(%d min)_", task.Duration)
			}
			section.WriteString("\n")
		}
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, strings.TrimRight(section.String(), "\n"), false, false), nil, nil))
	}
	return blocks
}
