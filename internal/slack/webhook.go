package slack

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

// maxEventBodyBytes bounds webhook request bodies.
const maxEventBodyBytes = 1 << 20

// WebhookHandler verifies and deduplicates Slack Events API deliveries and
// forwards accepted message events to the transport's response stream.
type WebhookHandler struct {
	signingSecret string
	service       *Service
	dedup         store.DedupRepo
}

// NewWebhookHandler creates an Events API handler.
func NewWebhookHandler(signingSecret string, service *Service, dedup store.DedupRepo) *WebhookHandler {
	return &WebhookHandler{signingSecret: signingSecret, service: service, dedup: dedup}
}

// ServeHTTP handles POST /slack/events. Slack retries deliveries, so the
// handler replies 200 quickly and relies on the durable dedup store to keep
// replays from reaching the conversation engine twice.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBodyBytes))
	if err != nil {
		slog.Error("WebhookHandler: failed to read body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	// Signature check covers v0:timestamp:body and rejects stale timestamps.
	verifier, err := slack.NewSecretsVerifier(r.Header, h.signingSecret)
	if err != nil {
		slog.Warn("WebhookHandler: signature header invalid", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if _, err := verifier.Write(body); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := verifier.Ensure(); err != nil {
		slog.Warn("WebhookHandler: signature mismatch", "error", err)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	event, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		slog.Error("WebhookHandler: failed to parse event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	switch event.Type {
	case slackevents.URLVerification:
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, challenge.Challenge)

	case slackevents.CallbackEvent:
		h.handleCallback(event)
		w.WriteHeader(http.StatusOK)

	default:
		slog.Debug("WebhookHandler: ignoring event", "type", event.Type)
		w.WriteHeader(http.StatusOK)
	}
}

func (h *WebhookHandler) handleCallback(event slackevents.EventsAPIEvent) {
	message, ok := event.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		slog.Debug("WebhookHandler: ignoring inner event", "type", event.InnerEvent.Type)
		return
	}
	// Bot echoes and message edits would loop the conversation engine.
	if message.BotID != "" || message.User == "" || message.SubType != "" {
		return
	}

	eventKey := fmt.Sprintf("%s:%s:%s", message.Channel, message.User, message.TimeStamp)
	inserted, err := h.dedup.RecordInbound(eventKey, message.User)
	if err != nil {
		slog.Error("WebhookHandler: dedup check failed", "error", err, "eventKey", eventKey)
		return
	}
	if !inserted {
		slog.Debug("WebhookHandler: duplicate delivery rejected", "eventKey", eventKey)
		return
	}

	if !h.service.enqueueResponse(models.Response{
		From: message.User,
		Body: message.Text,
		Time: eventUnixSeconds(message.TimeStamp),
	}) {
		// The event was accepted but not handed off. Drop the dedup record
		// so Slack's retry of this delivery is not rejected as a replay.
		if err := h.dedup.DeleteInbound(eventKey); err != nil {
			slog.Error("WebhookHandler: failed to release dropped event", "error", err, "eventKey", eventKey)
		}
		return
	}
	if err := h.dedup.MarkProcessed(eventKey); err != nil {
		slog.Warn("WebhookHandler: failed to mark event processed", "error", err, "eventKey", eventKey)
	}
}

// eventUnixSeconds parses the integer second part of a Slack event
// timestamp such as "1726000000.000200".
func eventUnixSeconds(ts string) int64 {
	seconds, _, _ := strings.Cut(ts, ".")
	parsed, err := strconv.ParseInt(seconds, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
