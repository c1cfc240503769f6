package events

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/alfredjeanlab/cmevents/internal/idgen"
	"github.com/alfredjeanlab/cmevents/internal/model"
)

// Listener receives events from a Stream. Listeners run on the publishing
// goroutine and must not block for long. A listener must not call Publish
// or PublishBatch on the stream delivering to it: publishing holds the
// stream's publish lock, which is not reentrant. Hand the event to another
// goroutine instead; it is emitted once the current batch finishes.
type Listener func(model.Event)

// Stream is a push-based broadcast of events to any number of listeners.
// Events are delivered synchronously, in emission order, to every listener
// registered at the time each event is emitted.
type Stream struct {
	mu        sync.RWMutex
	listeners []subscriber

	// publishMu keeps batches from interleaving when several goroutines
	// publish at once.
	publishMu sync.Mutex

	logger *slog.Logger
}

type subscriber struct {
	id string
	fn Listener
}

// NewStream returns an empty Stream. A nil logger uses slog.Default().
func NewStream(logger *slog.Logger) *Stream {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stream{logger: logger}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID     string
	stream *Stream
	once   sync.Once
}

// Cancel removes the listener. It is safe to call more than once and from
// inside the listener itself.
func (s *Subscription) Cancel() {
	s.once.Do(func() { s.stream.remove(s.ID) })
}

// Subscribe registers fn for every event emitted from now on.
func (s *Stream) Subscribe(fn Listener) *Subscription {
	id := idgen.MustGenerate(idgen.PrefixSubscription)
	s.mu.Lock()
	s.listeners = append(s.listeners, subscriber{id: id, fn: fn})
	s.mu.Unlock()
	return &Subscription{ID: id, stream: s}
}

func (s *Stream) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = slices.DeleteFunc(s.listeners, func(l subscriber) bool { return l.id == id })
}

// Len returns the number of registered listeners.
func (s *Stream) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.listeners)
}

// Publish emits a single event.
func (s *Stream) Publish(e model.Event) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.emit(e)
}

// PublishBatch emits a fetched batch. The Events API returns newest first;
// listeners see the batch oldest first, one event at a time. An empty batch
// emits nothing.
func (s *Stream) PublishBatch(batch []model.Event) {
	if len(batch) == 0 {
		return
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	for i := len(batch) - 1; i >= 0; i-- {
		s.emit(batch[i])
	}
}

func (s *Stream) emit(e model.Event) {
	s.mu.RLock()
	snapshot := slices.Clone(s.listeners)
	s.mu.RUnlock()

	for _, l := range snapshot {
		s.deliver(l, e)
	}
}

// deliver isolates listener panics so one bad consumer cannot stop the rest.
func (s *Stream) deliver(l subscriber, e model.Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("event listener panicked", "subscription", l.id, "event_id", e.ID, "panic", r)
		}
	}()
	l.fn(e)
}
