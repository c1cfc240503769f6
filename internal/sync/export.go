package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version     string    `json:"version"`
	Type        string    `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	EventCount  int       `json:"event_count"`
	UnseenCount int       `json:"unseen_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes every event in the store as JSONL to w: a header line,
// then one "event" record per event in ascending id order.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) error {
	events, _, err := s.ListEvents(ctx, model.EventFilter{Sort: "id"})
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:     "1",
		Type:        "header",
		Timestamp:   time.Now().UTC(),
		EventCount:  len(events),
		UnseenCount: model.CountUnseen(events),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, e := range events {
		if err := enc.Encode(record{Type: "event", Data: e}); err != nil {
			return fmt.Errorf("encode event %d: %w", e.ID, err)
		}
	}
	return nil
}
