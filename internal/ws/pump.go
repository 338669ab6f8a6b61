package ws

import (
	"context"
	"encoding/json"

	"log/slog"

	"github.com/norbi07011/zzp-werkplsats-nowy-sub005/internal/store"
)

// Pump drains a store's event channel and fans each event out to the
// owning user's registered clients. It returns when the context is
// cancelled or the channel drains after the store closes.
func Pump(ctx context.Context, hub *Hub, userID string, events <-chan store.Event, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				logger.Warn("encoding state event failed", "error", err)
				continue
			}
			hub.Broadcast(userID, payload)
		}
	}
}
