package telegram

import (
	"context"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"starcast/internal/transport"
	"starcast/pkg/logx"
)

// idlePoller delivers nothing and returns once the bot asks it to stop.
type idlePoller struct{}

func (idlePoller) Poll(_ *tele.Bot, _ chan tele.Update, stop chan struct{}) { <-stop }

func offlineAdapter(t *testing.T) *Adapter {
	t.Helper()
	b, err := tele.NewBot(tele.Settings{Token: "test-token", Offline: true, Poller: idlePoller{}})
	if err != nil {
		t.Fatalf("NewBot: %v", err)
	}
	return &Adapter{cfg: Config{Token: "test-token"}, log: logx.Nop(), bot: b}
}

func TestStartStopShutsDownCleanly(t *testing.T) {
	t.Parallel()
	a := offlineAdapter(t)
	out := make(chan transport.Update, 1)

	if err := a.Start(context.Background(), out); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Both run goroutines must have exited; a second Stop is a no-op.
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()
	a := offlineAdapter(t)
	if err := a.Stop(context.Background()); err != nil {
		t.Fatalf("Stop before Start: %v", err)
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("want error for empty token")
	}
}
