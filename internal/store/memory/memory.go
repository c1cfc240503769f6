// Package memory implements store.Store as an in-process event cache that
// follows the event stream.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/paginate"
	"github.com/alfredjeanlab/cmevents/internal/store"
)

// DefaultCapacity bounds the cache when New is given 0.
const DefaultCapacity = 5000

// Cache keeps the newest events, newest first. New ids are prepended and
// known ids replaced in place, so an event that progresses keeps its
// position.
type Cache struct {
	mu         sync.RWMutex
	events     []model.Event
	inProgress map[int64]int
	capacity   int
}

var _ store.Store = (*Cache)(nil)

// New returns an empty cache holding at most capacity events.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{inProgress: map[int64]int{}, capacity: capacity}
}

// Listen folds one event into the cache. It is an events.Listener.
func (c *Cache) Listen(e model.Event) {
	c.Apply([]model.Event{e})
}

// Apply folds a newest-first batch into the cache.
func (c *Cache) Apply(batch []model.Event) {
	if len(batch) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	incoming := make(map[int64]bool, len(batch))
	for _, e := range batch {
		incoming[e.ID] = true
	}
	stillSeen := make(map[int64]bool)
	for _, e := range c.events {
		if e.Seen && incoming[e.ID] {
			stillSeen[e.ID] = true
		}
	}

	merged := model.MergeEvents(c.events, batch)
	for i := range merged {
		if stillSeen[merged[i].ID] {
			merged[i].Seen = true
		}
	}
	merged = model.MarkDeleted(merged)
	if len(merged) > c.capacity {
		for _, e := range merged[c.capacity:] {
			delete(c.inProgress, e.ID)
		}
		merged = merged[:c.capacity:c.capacity]
	}
	c.events = merged
	c.inProgress = model.UpdateInProgress(c.inProgress, batch)
}

func (c *Cache) indexOf(id int64) int {
	return slices.IndexFunc(c.events, func(e model.Event) bool { return e.ID == id })
}

// Events returns a copy of every cached event, newest first.
func (c *Cache) Events() []model.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.events)
}

// Len returns the number of cached events.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

// Unseen returns the number of cached events not yet seen.
func (c *Cache) Unseen() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.CountUnseen(c.events)
}

// InProgress returns event id to percent complete for every event still
// running.
func (c *Cache) InProgress() map[int64]int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return maps.Clone(c.inProgress)
}

func (c *Cache) UpsertEvents(ctx context.Context, events []model.Event) error {
	c.Apply(events)
	return nil
}

func (c *Cache) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i := c.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("event %d: %w", id, store.ErrNotFound)
	}
	e := c.events[i]
	return &e, nil
}

func (c *Cache) ListEvents(ctx context.Context, filter model.EventFilter) ([]model.Event, int, error) {
	c.mu.RLock()
	var matched []model.Event
	for _, e := range c.events {
		if filter.Matches(e) {
			matched = append(matched, e)
		}
	}
	c.mu.RUnlock()

	slices.SortStableFunc(matched, store.Comparator(filter.Sort))

	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = paginate.All
	}
	return paginate.CreateDisplayPage[model.Event](filter.Page, pageSize)(matched), len(matched), nil
}

func (c *Cache) MarkSeen(ctx context.Context, upToID int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := range c.events {
		if c.events[i].ID <= upToID && !c.events[i].Seen {
			c.events[i].Seen = true
			n++
		}
	}
	return n, nil
}

// Close is a no-op.
func (c *Cache) Close() error { return nil }
