package notify

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/alanyoungcy/execbot/internal/domain"
)

type fakeSender struct {
	name     string
	err      error
	messages []string
}

func (s *fakeSender) Send(_ context.Context, title, message string) error {
	s.messages = append(s.messages, title+"|"+message)
	return s.err
}

func (s *fakeSender) Name() string { return s.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventRunComplete}, testLogger())

	if err := n.Notify(context.Background(), EventFill, "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.messages) != 0 {
		t.Fatalf("filtered event delivered: %v", sender.messages)
	}

	if err := n.Notify(context.Background(), EventRunComplete, "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(sender.messages))
	}
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	if err := n.Notify(context.Background(), EventError, "t", "m"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(sender.messages))
	}
}

func TestNotifyContinuesPastFailingSender(t *testing.T) {
	broken := &fakeSender{name: "broken", err: errors.New("boom")}
	healthy := &fakeSender{name: "healthy"}
	n := NewNotifier([]Sender{broken, healthy}, nil, testLogger())

	err := n.Notify(context.Background(), EventFill, "t", "m")
	if err == nil {
		t.Fatal("expected combined error")
	}
	if len(healthy.messages) != 1 {
		t.Fatalf("healthy sender messages = %d, want 1", len(healthy.messages))
	}
}

func TestNotifyRunCompleteMessage(t *testing.T) {
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	summary := domain.SummaryRow{
		BaseBalance:    "11",
		QuoteBalance:   "8900",
		VolumeBaseSum:  "1",
		VolumeQuoteSum: "1100",
		FeeBaseSum:     "0.001",
		FeeQuoteSum:    "0",
	}
	if err := n.NotifyRunComplete(context.Background(), "BTCUSDT", summary); err != nil {
		t.Fatalf("notify: %v", err)
	}
	got := sender.messages[0]
	want := "Run complete: BTCUSDT|base=11 quote=8900 traded_base=1 traded_quote=1100 fee_base=0.001 fee_quote=0"
	if got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}
