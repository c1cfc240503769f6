package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// PollingSource is the poller's Fetcher for the Events API. Each fetch asks
// for events created at or after the newest one it has seen, plus any still
// in progress, so repeated polls only return what changed.
type PollingSource struct {
	api      EventLister
	pageSize int
	logger   *slog.Logger

	mu    sync.Mutex
	start time.Time
	// cursor holds just the events PollingCursor needs: those created at
	// the newest timestamp and those still in progress. Newest first.
	cursor []model.Event
}

// NewPollingSource returns a source that, until it has seen any event, polls
// for events created at or after start. pageSize 0 uses the API default.
func NewPollingSource(api EventLister, start time.Time, pageSize int, logger *slog.Logger) *PollingSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &PollingSource{
		api:      api,
		pageSize: pageSize,
		logger:   logger,
		start:    start.UTC(),
	}
}

// Seed loads the newest page of events and primes the polling cursor with
// it. Callers typically hand the result to the cache without publishing it;
// these events predate the poller.
func (s *PollingSource) Seed(ctx context.Context) ([]model.Event, error) {
	f := model.EventFilter{}
	page, err := s.api.ListEvents(ctx, &ListEventsRequest{Filter: f.APIFilter(), PageSize: s.pageSize})
	if err != nil {
		return nil, fmt.Errorf("loading initial events: %w", err)
	}
	events := s.accept(page.Data)
	s.mu.Lock()
	s.cursor = trimCursor(model.MergeEvents(nil, events))
	s.mu.Unlock()
	return events, nil
}

// Fetch implements poller.Fetcher. Malformed events are logged and dropped.
func (s *PollingSource) Fetch(ctx context.Context) ([]model.Event, error) {
	s.mu.Lock()
	since, inProgress, seenAtSince := model.PollingCursor(s.cursor, s.start)
	s.mu.Unlock()

	req := &ListEventsRequest{
		Filter:   model.PollingFilter(since, inProgress, seenAtSince),
		PageSize: s.pageSize,
	}
	page, err := s.api.ListEvents(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("polling events: %w", err)
	}

	events := s.accept(page.Data)
	s.mu.Lock()
	s.cursor = trimCursor(model.MergeEvents(s.cursor, events))
	s.mu.Unlock()
	return events, nil
}

// Cursor returns the values the next fetch will filter on.
func (s *PollingSource) Cursor() (since time.Time, inProgress, seenAtSince []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.PollingCursor(s.cursor, s.start)
}

func (s *PollingSource) accept(events []model.Event) []model.Event {
	out := make([]model.Event, 0, len(events))
	for _, e := range events {
		if err := model.ValidateEvent(&e); err != nil {
			s.logger.Warn("dropping malformed event", "event_id", e.ID, "err", err)
			continue
		}
		out = append(out, e)
	}
	return out
}

func trimCursor(events []model.Event) []model.Event {
	var newest time.Time
	for _, e := range events {
		newest = model.MostRecentCreated(newest, e)
	}
	out := events[:0:0]
	for _, e := range events {
		if model.IsInProgress(e) || e.Created.Equal(newest) {
			out = append(out, e)
		}
	}
	return out
}
