package events

import (
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// collector records the ids a listener sees.
type collector struct {
	mu  sync.Mutex
	ids []int64
}

func (c *collector) listen(e model.Event) {
	c.mu.Lock()
	c.ids = append(c.ids, e.ID)
	c.mu.Unlock()
}

func (c *collector) got() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.ids)
}

func batch(ids ...int64) []model.Event {
	out := make([]model.Event, len(ids))
	for i, id := range ids {
		out[i] = model.Event{ID: id, Action: model.ActionLinodeBoot, Status: model.StatusStarted}
	}
	return out
}

func TestStream_PublishBatchEmitsOldestFirst(t *testing.T) {
	s := NewStream(nil)
	var c collector
	s.Subscribe(c.listen)

	s.PublishBatch(batch(5, 4, 3))

	if got := c.got(); !slices.Equal(got, []int64{3, 4, 5}) {
		t.Errorf("got %v, want [3 4 5]", got)
	}
}

func TestStream_EmptyBatchEmitsNothing(t *testing.T) {
	s := NewStream(nil)
	calls := 0
	s.Subscribe(func(model.Event) { calls++ })

	s.PublishBatch(nil)
	s.PublishBatch([]model.Event{})

	if calls != 0 {
		t.Errorf("listener called %d times, want 0", calls)
	}
}

func TestStream_EveryListenerSeesEverySequence(t *testing.T) {
	s := NewStream(nil)
	var a, b collector
	s.Subscribe(a.listen)
	s.Subscribe(b.listen)

	s.PublishBatch(batch(2, 1))
	s.Publish(model.Event{ID: 9})

	want := []int64{1, 2, 9}
	if got := a.got(); !slices.Equal(got, want) {
		t.Errorf("first listener got %v, want %v", got, want)
	}
	if got := b.got(); !slices.Equal(got, want) {
		t.Errorf("second listener got %v, want %v", got, want)
	}
}

func TestStream_LateSubscriberSeesOnlyLaterEvents(t *testing.T) {
	s := NewStream(nil)
	s.PublishBatch(batch(1))

	var c collector
	s.Subscribe(c.listen)
	s.PublishBatch(batch(3, 2))

	if got := c.got(); !slices.Equal(got, []int64{2, 3}) {
		t.Errorf("got %v, want [2 3]", got)
	}
}

func TestStream_Cancel(t *testing.T) {
	s := NewStream(nil)
	var c collector
	sub := s.Subscribe(c.listen)
	if !strings.HasPrefix(sub.ID, "sub-") {
		t.Errorf("subscription id = %q, want sub- prefix", sub.ID)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}

	s.Publish(model.Event{ID: 1})
	sub.Cancel()
	sub.Cancel()
	s.Publish(model.Event{ID: 2})

	if got := c.got(); !slices.Equal(got, []int64{1}) {
		t.Errorf("got %v, want [1]", got)
	}
	if s.Len() != 0 {
		t.Errorf("Len after cancel = %d, want 0", s.Len())
	}
}

func TestStream_CancelFromInsideListener(t *testing.T) {
	s := NewStream(nil)
	var seen []int64
	var sub *Subscription
	sub = s.Subscribe(func(e model.Event) {
		seen = append(seen, e.ID)
		sub.Cancel()
	})

	s.PublishBatch(batch(3, 2, 1))

	if !slices.Equal(seen, []int64{1}) {
		t.Errorf("got %v, want only the first event", seen)
	}
}

func TestStream_ListenerRepublishesOffGoroutine(t *testing.T) {
	s := NewStream(nil)
	var c collector
	s.Subscribe(c.listen)

	var wg sync.WaitGroup
	s.Subscribe(func(e model.Event) {
		if e.ID >= 100 {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Publish(model.Event{ID: e.ID + 100})
		}()
	})

	s.PublishBatch(batch(2, 1))
	wg.Wait()

	got := c.got()
	if len(got) != 4 || !slices.Equal(got[:2], []int64{1, 2}) {
		t.Fatalf("got %v, want the batch 1,2 followed by both follow-ups", got)
	}
	follow := slices.Sorted(slices.Values(got[2:]))
	if !slices.Equal(follow, []int64{101, 102}) {
		t.Errorf("follow-ups = %v, want [101 102]", follow)
	}
}

func TestStream_PanickingListenerDoesNotStopOthers(t *testing.T) {
	s := NewStream(nil)
	s.Subscribe(func(model.Event) { panic("boom") })
	var c collector
	s.Subscribe(c.listen)

	s.PublishBatch(batch(2, 1))

	if got := c.got(); !slices.Equal(got, []int64{1, 2}) {
		t.Errorf("got %v, want [1 2]", got)
	}
}

func TestStream_ConcurrentBatchesDoNotInterleave(t *testing.T) {
	s := NewStream(nil)
	var c collector
	s.Subscribe(c.listen)

	var wg sync.WaitGroup
	for base := int64(0); base < 4; base++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Newest first: base*10+4 ... base*10+0.
			s.PublishBatch(batch(base*10+4, base*10+3, base*10+2, base*10+1, base*10))
		}()
	}
	wg.Wait()

	got := c.got()
	if len(got) != 20 {
		t.Fatalf("got %d events, want 20", len(got))
	}
	for i := 0; i < len(got); i += 5 {
		run := got[i : i+5]
		for j := 1; j < len(run); j++ {
			if run[j] != run[j-1]+1 {
				t.Fatalf("batch interleaved or out of order: %v", got)
			}
		}
	}
}
