package store

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

const (
	defaultArchiveQueue = 1024
	archiveBatchSize    = 100
	archiveFlushEvery   = time.Second
	archiveDrainTimeout = 5 * time.Second
)

// Archiver copies stream events into a Store off the stream's goroutine.
// Events are queued by Listen and written in batches by Run. When the
// queue is full, new events are dropped and counted.
type Archiver struct {
	store  Store
	queue  chan model.Event
	logger *slog.Logger

	dropped atomic.Int64
	written atomic.Int64
}

// NewArchiver returns an Archiver with room for queueSize pending events.
// queueSize 0 uses a default.
func NewArchiver(s Store, queueSize int, logger *slog.Logger) *Archiver {
	if queueSize <= 0 {
		queueSize = defaultArchiveQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: s, queue: make(chan model.Event, queueSize), logger: logger}
}

// Listen enqueues e without blocking. It is an events.Listener.
func (a *Archiver) Listen(e model.Event) {
	select {
	case a.queue <- e:
	default:
		a.dropped.Add(1)
		a.logger.Warn("archive queue full, dropping event", "event_id", e.ID)
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (a *Archiver) Dropped() int64 { return a.dropped.Load() }

// Written returns how many events have been handed to the store.
func (a *Archiver) Written() int64 { return a.written.Load() }

// Run writes queued events until ctx is done, then drains what is left.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(archiveFlushEvery)
	defer ticker.Stop()

	var batch []model.Event
	for {
		select {
		case e := <-a.queue:
			batch = append(batch, e)
			if len(batch) >= archiveBatchSize {
				batch = a.flush(ctx, batch)
			}
		case <-ticker.C:
			batch = a.flush(ctx, batch)
		case <-ctx.Done():
		drain:
			for {
				select {
				case e := <-a.queue:
					batch = append(batch, e)
				default:
					break drain
				}
			}
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveDrainTimeout)
			a.flush(drainCtx, batch)
			cancel()
			return nil
		}
	}
}

// flush writes batch, newest first. The store may keep the slice, so the
// caller starts a fresh one.
func (a *Archiver) flush(ctx context.Context, batch []model.Event) []model.Event {
	if len(batch) == 0 {
		return batch
	}
	slices.Reverse(batch)
	if err := a.store.UpsertEvents(ctx, batch); err != nil {
		a.logger.Error("archiving events failed", "count", len(batch), "err", err)
	} else {
		a.written.Add(int64(len(batch)))
	}
	return nil
}
