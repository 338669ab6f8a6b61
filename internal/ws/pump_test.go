package ws

import (
	"context"
	"io"
	"testing"
	"time"

	"log/slog"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/store"
)

func TestPumpForwardsEventsAndStopsOnChannelClose(t *testing.T) {
	hub := NewHub()
	defer hub.Stop()

	client := &recordingClient{}
	hub.Register("u1", client)

	events := make(chan store.Event, 4)
	done := make(chan struct{})
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	go func() {
		Pump(context.Background(), hub, "u1", events, logger)
		close(done)
	}()

	events <- store.Event{Kind: store.EventTasks, TeamID: "team-1"}
	waitFor(t, func() bool { return client.frameCount() == 1 })

	// Closing the channel is how a closed session releases its pump; the
	// goroutine must exit instead of parking forever.
	close(events)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop after the event channel closed")
	}
}
