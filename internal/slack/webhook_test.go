package slack

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/weekpilot/weekpilot/internal/models"
	"github.com/weekpilot/weekpilot/internal/store"
)

const testSigningSecret = "8f742231b10e8888abcd99yyyzzz85a5"

// signRequest attaches a valid Slack signature for the given body.
func signRequest(t *testing.T, req *http.Request, body []byte) {
	t.Helper()
	timestamp := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", "v0="+hex.EncodeToString(mac.Sum(nil)))
	req.Header.Set("Content-Type", "application/json")
}

func newTestHandler() (*WebhookHandler, *Service, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	service := newServiceWithAPI(nil)
	return NewWebhookHandler(testSigningSecret, service, st), service, st
}

func postEvent(t *testing.T, handler *WebhookHandler, body []byte, sign bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	if sign {
		signRequest(t, req, body)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func messageEventBody(t *testing.T, channel, user, text, ts string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"type": "event_callback",
		"event": map[string]any{
			"type":    "message",
			"channel": channel,
			"user":    user,
			"text":    text,
			"ts":      ts,
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return body
}

func TestWebhookRejectsUnsignedRequest(t *testing.T) {
	handler, _, _ := newTestHandler()
	rec := postEvent(t, handler, messageEventBody(t, "D1", "U1", "hi", "1.0"), false)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookRejectsTamperedBody(t *testing.T) {
	handler, _, _ := newTestHandler()
	body := messageEventBody(t, "D1", "U1", "hi", "1.0")
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	signRequest(t, req, []byte("different body"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestWebhookAnswersURLVerification(t *testing.T) {
	handler, _, _ := newTestHandler()
	body, err := json.Marshal(map[string]any{
		"type":      "url_verification",
		"challenge": "challenge-token",
	})
	if err != nil {
		t.Fatalf("marshal challenge: %v", err)
	}
	rec := postEvent(t, handler, body, true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "challenge-token" {
		t.Errorf("body = %q, want the challenge echoed", rec.Body.String())
	}
}

func TestWebhookForwardsMessageEvent(t *testing.T) {
	handler, service, _ := newTestHandler()

	rec := postEvent(t, handler, messageEventBody(t, "D1", "U123", "plan my week", "1726000000.000200"), true)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case response := <-service.Responses():
		if response.From != "U123" || response.Body != "plan my week" {
			t.Errorf("unexpected response: %+v", response)
		}
		if response.Time != 1726000000 {
			t.Errorf("time = %d, want 1726000000", response.Time)
		}
	default:
		t.Fatal("expected a forwarded response")
	}
}

func TestWebhookRejectsDuplicateDelivery(t *testing.T) {
	handler, service, st := newTestHandler()
	body := messageEventBody(t, "D1", "U123", "plan my week", "1726000000.000200")

	for i := 0; i < 2; i++ {
		if rec := postEvent(t, handler, body, true); rec.Code != http.StatusOK {
			t.Fatalf("delivery %d: status = %d, want 200", i+1, rec.Code)
		}
	}

	forwarded := 0
	for {
		select {
		case <-service.Responses():
			forwarded++
			continue
		default:
		}
		break
	}
	if forwarded != 1 {
		t.Errorf("forwarded = %d, want exactly 1 after a replay", forwarded)
	}

	inserted, err := st.RecordInbound("D1:U123:1726000000.000200", "U123")
	if err != nil {
		t.Fatalf("RecordInbound failed: %v", err)
	}
	if inserted {
		t.Error("event key should be recorded durably")
	}
}

func TestWebhookReleasesDroppedEventForRetry(t *testing.T) {
	handler, service, _ := newTestHandler()
	body := messageEventBody(t, "D1", "U123", "plan my week", "1726000000.000200")

	// Fill the response buffer so the delivery is accepted but not handed off.
	for i := 0; i < channelBufferSize; i++ {
		service.responses <- models.Response{From: "U999", Body: "filler"}
	}
	if rec := postEvent(t, handler, body, true); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	for i := 0; i < channelBufferSize; i++ {
		if response := <-service.Responses(); response.From != "U999" {
			t.Fatalf("dropped event was forwarded anyway: %+v", response)
		}
	}

	// Slack retries the delivery; it must not be rejected as a replay.
	if rec := postEvent(t, handler, body, true); rec.Code != http.StatusOK {
		t.Fatalf("retry status = %d, want 200", rec.Code)
	}
	select {
	case response := <-service.Responses():
		if response.From != "U123" || response.Body != "plan my week" {
			t.Errorf("unexpected response: %+v", response)
		}
	default:
		t.Fatal("retried delivery should be forwarded after the drop")
	}
}

func TestWebhookIgnoresBotMessages(t *testing.T) {
	handler, service, _ := newTestHandler()
	body, err := json.Marshal(map[string]any{
		"type": "event_callback",
		"event": map[string]any{
			"type":    "message",
			"channel": "D1",
			"bot_id":  "B999",
			"text":    "I am a bot",
			"ts":      "2.0",
		},
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	if rec := postEvent(t, handler, body, true); rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	select {
	case response := <-service.Responses():
		t.Errorf("bot message must not be forwarded: %+v", response)
	default:
	}
}

func TestEventUnixSeconds(t *testing.T) {
	if got := eventUnixSeconds("1726000000.000200"); got != 1726000000 {
		t.Errorf("got %d", got)
	}
	if got := eventUnixSeconds("garbage"); got != 0 {
		t.Errorf("got %d, want 0 for unparseable input", got)
	}
}
