package ws

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"log/slog"
)

type nopFlusher struct{}

func (nopFlusher) Flush() {}

func TestSSEClientIdleClockTracksDataFramesOnly(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	c := NewSSEClient(&buf, nopFlusher{}, logger)

	start := c.LastActivity()
	if err := c.Heartbeat(); err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if !c.LastActivity().Equal(start) {
		t.Fatal("heartbeat advanced the idle clock")
	}

	time.Sleep(time.Millisecond)
	if err := c.Send([]byte(`{"kind":"chat"}`)); err != nil {
		t.Fatalf("send: %v", err)
	}
	if !c.LastActivity().After(start) {
		t.Fatal("data frame did not advance the idle clock")
	}
	if !strings.Contains(buf.String(), "data: {\"kind\":\"chat\"}") {
		t.Fatalf("unexpected stream output: %q", buf.String())
	}
}
