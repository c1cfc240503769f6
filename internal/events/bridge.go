package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// bridgeTimeout bounds a single bus publish made on the stream's goroutine.
const bridgeTimeout = 5 * time.Second

// Bridge subscribes to stream and republishes every event on the bus under
// model.Topic(e). Publish failures are logged and the event is dropped;
// the bus is best-effort. Cancel the returned subscription to detach.
func Bridge(stream *Stream, pub Publisher, logger *slog.Logger) *Subscription {
	if logger == nil {
		logger = slog.Default()
	}
	return stream.Subscribe(func(e model.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), bridgeTimeout)
		defer cancel()
		topic := model.Topic(e)
		if err := pub.Publish(ctx, topic, e); err != nil {
			logger.Warn("failed to publish event to bus", "topic", topic, "event_id", e.ID, "err", err)
		}
	})
}
