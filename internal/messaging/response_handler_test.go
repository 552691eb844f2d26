package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/weekpilot/weekpilot/internal/models"
)

// fakeService is an in-memory transport that records sent messages and lets
// tests feed inbound responses.
type fakeService struct {
	sent      []models.Response
	responses chan models.Response
	receipts  chan models.Receipt
	sendErr   error
}

func newFakeService() *fakeService {
	return &fakeService{
		responses: make(chan models.Response, 8),
		receipts:  make(chan models.Receipt, 8),
	}
}

func (s *fakeService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	trimmed := strings.TrimSpace(recipient)
	if trimmed == "" {
		return "", errors.New("empty recipient")
	}
	return strings.ToUpper(trimmed), nil
}

func (s *fakeService) SendMessage(_ context.Context, to, body string) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, models.Response{From: to, Body: body})
	return nil
}

func (s *fakeService) Start(context.Context) error { return nil }

func (s *fakeService) Stop() error { return nil }

func (s *fakeService) Receipts() <-chan models.Receipt { return s.receipts }

func (s *fakeService) Responses() <-chan models.Response { return s.responses }

var _ Service = (*fakeService)(nil)

func TestRegisterHookCanonicalizesRecipient(t *testing.T) {
	svc := newFakeService()
	rh := NewResponseHandler(svc)

	if err := rh.RegisterHook(" u123 ", func(context.Context, string, string, int64) (bool, error) {
		return true, nil
	}); err != nil {
		t.Fatalf("RegisterHook failed: %v", err)
	}
	if !rh.IsHookRegistered("U123") {
		t.Error("hook should be reachable via the canonical form")
	}
	if !rh.IsHookRegistered("u123") {
		t.Error("hook lookup should canonicalize first")
	}
	if rh.HookCount() != 1 {
		t.Errorf("HookCount = %d, want 1", rh.HookCount())
	}
}

func TestRegisterHookRejectsInvalidRecipient(t *testing.T) {
	rh := NewResponseHandler(newFakeService())
	if err := rh.RegisterHook("  ", nil); err == nil {
		t.Error("expected an error for an empty recipient")
	}
}

func TestProcessResponseRoutesToHook(t *testing.T) {
	svc := newFakeService()
	rh := NewResponseHandler(svc)

	var gotFrom, gotBody string
	if err := rh.RegisterHook("U123", func(_ context.Context, from, body string, _ int64) (bool, error) {
		gotFrom, gotBody = from, body
		return true, nil
	}); err != nil {
		t.Fatalf("RegisterHook failed: %v", err)
	}

	err := rh.ProcessResponse(context.Background(), models.Response{From: "u123", Body: "tuesday works", Time: 42})
	if err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if gotFrom != "U123" || gotBody != "tuesday works" {
		t.Errorf("hook saw from=%q body=%q", gotFrom, gotBody)
	}
	if len(svc.sent) != 0 {
		t.Errorf("handled message must not trigger the default reply, sent=%v", svc.sent)
	}
}

func TestProcessResponseFallsBackToDefault(t *testing.T) {
	svc := newFakeService()
	rh := NewResponseHandler(svc)

	if err := rh.ProcessResponse(context.Background(), models.Response{From: "U999", Body: "hello"}); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if len(svc.sent) != 1 || svc.sent[0].Body != DefaultUnhandledMessage {
		t.Errorf("expected the default reply, sent=%v", svc.sent)
	}
}

func TestProcessResponseUnhandledHookFallsThrough(t *testing.T) {
	svc := newFakeService()
	rh := NewResponseHandler(svc)

	if err := rh.RegisterHook("U123", func(context.Context, string, string, int64) (bool, error) {
		return false, nil
	}); err != nil {
		t.Fatalf("RegisterHook failed: %v", err)
	}
	if err := rh.ProcessResponse(context.Background(), models.Response{From: "U123", Body: "??"}); err != nil {
		t.Fatalf("ProcessResponse failed: %v", err)
	}
	if len(svc.sent) != 1 {
		t.Errorf("unhandled message should get the default reply, sent=%v", svc.sent)
	}
}

func TestProcessResponseHookErrorPropagates(t *testing.T) {
	svc := newFakeService()
	rh := NewResponseHandler(svc)
	hookErr := errors.New("session save failed")

	if err := rh.RegisterHook("U123", func(context.Context, string, string, int64) (bool, error) {
		return false, hookErr
	}); err != nil {
		t.Fatalf("RegisterHook failed: %v", err)
	}
	if err := rh.ProcessResponse(context.Background(), models.Response{From: "U123", Body: "x"}); !errors.Is(err, hookErr) {
		t.Errorf("err = %v, want wrapped hook error", err)
	}
}

func TestUnregisterHook(t *testing.T) {
	svc := newFakeService()
	rh := NewResponseHandler(svc)

	if err := rh.RegisterHook("U123", func(context.Context, string, string, int64) (bool, error) {
		return true, nil
	}); err != nil {
		t.Fatalf("RegisterHook failed: %v", err)
	}
	if err := rh.UnregisterHook("U123"); err != nil {
		t.Fatalf("UnregisterHook failed: %v", err)
	}
	if rh.IsHookRegistered("U123") {
		t.Error("hook should be gone after unregistering")
	}
}
