package slack

import (
	"context"
	"errors"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"

	"github.com/weekpilot/weekpilot/internal/models"
)

type fakeWebAPI struct {
	calls   int
	lastTo  string
	postErr error
}

func (f *fakeWebAPI) PostMessageContext(_ context.Context, channelID string, _ ...slackapi.MsgOption) (string, string, error) {
	f.calls++
	f.lastTo = channelID
	if f.postErr != nil {
		return "", "", f.postErr
	}
	return channelID, "1726000000.000300", nil
}

func TestValidateAndCanonicalizeRecipient(t *testing.T) {
	service := newServiceWithAPI(&fakeWebAPI{})
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"U0123ABC", "U0123ABC", nil},
		{" u0123abc ", "U0123ABC", nil},
		{"D024BE91L", "D024BE91L", nil},
		{"W012A3CDE", "W012A3CDE", nil},
		{"", "", ErrEmptyRecipient},
		{"  ", "", ErrEmptyRecipient},
		{"bob@example.com", "", ErrInvalidRecipient},
		{"X0123", "", ErrInvalidRecipient},
	}
	for _, tt := range tests {
		got, err := service.ValidateAndCanonicalizeRecipient(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%q: err = %v, want %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSendMessageEmitsReceipt(t *testing.T) {
	api := &fakeWebAPI{}
	service := newServiceWithAPI(api)

	if err := service.SendMessage(context.Background(), "u123", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	if api.lastTo != "U123" {
		t.Errorf("posted to %q, want canonical U123", api.lastTo)
	}
	select {
	case receipt := <-service.Receipts():
		if receipt.To != "U123" || receipt.Status != models.MessageStatusSent {
			t.Errorf("unexpected receipt: %+v", receipt)
		}
	default:
		t.Fatal("expected a sent receipt")
	}
}

func TestSendMessageFailureEmitsFailedReceipt(t *testing.T) {
	api := &fakeWebAPI{postErr: errors.New("channel_not_found")}
	service := newServiceWithAPI(api)

	if err := service.SendMessage(context.Background(), "U123", "hello"); err == nil {
		t.Fatal("expected an error")
	}
	select {
	case receipt := <-service.Receipts():
		if receipt.Status != models.MessageStatusFailed {
			t.Errorf("receipt status = %s, want failed", receipt.Status)
		}
	default:
		t.Fatal("expected a failed receipt")
	}
}

func TestSendWeeklyPlanPostsBlocks(t *testing.T) {
	api := &fakeWebAPI{}
	service := newServiceWithAPI(api)
	plan := &models.WeeklyPlan{
		WeekStart:     time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		WeekEnd:       time.Date(2026, 9, 4, 0, 0, 0, 0, time.UTC),
		WeeklyTargets: []string{"ship the migration"},
		Days: map[string]models.DayPlan{
			"monday": {Date: "2026-08-31", Tasks: []models.Task{{Time: "09:00", Task: "dry run", Duration: 90}}},
		},
	}
	if err := service.SendWeeklyPlan(context.Background(), "D1ABCDEF", plan); err != nil {
		t.Fatalf("SendWeeklyPlan failed: %v", err)
	}
	if api.calls != 1 {
		t.Errorf("calls = %d, want 1", api.calls)
	}
}

func TestPlanBlocksOrder(t *testing.T) {
	plan := &models.WeeklyPlan{
		WeekStart: time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		Days: map[string]models.DayPlan{
			"friday": {Date: "2026-09-04", Tasks: []models.Task{{Time: "15:00", Task: "retro"}}},
			"monday": {Date: "2026-08-31", Tasks: []models.Task{{Time: "09:00", Task: "standup"}}},
		},
	}
	blocks := planBlocks(plan)
	// header plus one section per populated day
	if len(blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(blocks))
	}
	if _, ok := blocks[0].(*slackapi.HeaderBlock); !ok {
		t.Errorf("first block = %T, want header", blocks[0])
	}
}
