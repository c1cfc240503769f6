package store

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// recordingStore is a Store that keeps every upserted batch.
type recordingStore struct {
	mu      sync.Mutex
	batches [][]int64
	err     error
}

func (r *recordingStore) UpsertEvents(ctx context.Context, events []model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	ids := make([]int64, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	r.batches = append(r.batches, ids)
	return nil
}

func (r *recordingStore) all() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int64
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recordingStore) GetEvent(context.Context, int64) (*model.Event, error) {
	return nil, ErrNotFound
}

func (r *recordingStore) ListEvents(context.Context, model.EventFilter) ([]model.Event, int, error) {
	return nil, 0, nil
}

func (r *recordingStore) MarkSeen(context.Context, int64) (int, error) { return 0, nil }

func (r *recordingStore) Close() error { return nil }

func TestArchiver_DrainsOnShutdown(t *testing.T) {
	rs := &recordingStore{}
	a := NewArchiver(rs, 10, nil)
	for id := int64(1); id <= 3; id++ {
		a.Listen(model.Event{ID: id})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := rs.all(); !slices.Equal(got, []int64{3, 2, 1}) {
		t.Errorf("archived %v, want [3 2 1] (newest first)", got)
	}
	if a.Written() != 3 {
		t.Errorf("written = %d, want 3", a.Written())
	}
}

func TestArchiver_DropsWhenFull(t *testing.T) {
	a := NewArchiver(&recordingStore{}, 2, nil)
	for id := int64(1); id <= 5; id++ {
		a.Listen(model.Event{ID: id})
	}
	if a.Dropped() != 3 {
		t.Errorf("dropped = %d, want 3", a.Dropped())
	}
}

func TestArchiver_WritesWhileRunning(t *testing.T) {
	rs := &recordingStore{}
	a := NewArchiver(rs, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = a.Run(ctx)
	}()

	a.Listen(model.Event{ID: 1})
	deadline := time.Now().Add(3 * time.Second)
	for len(rs.all()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	if got := rs.all(); !slices.Equal(got, []int64{1}) {
		t.Errorf("archived %v, want [1]", got)
	}
}

func TestArchiver_StoreErrorIsLogged(t *testing.T) {
	rs := &recordingStore{err: errors.New("connection reset")}
	a := NewArchiver(rs, 4, nil)
	a.Listen(model.Event{ID: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if a.Written() != 0 {
		t.Errorf("written = %d after a failed upsert", a.Written())
	}
}
