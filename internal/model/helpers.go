package model

import (
	"strings"
	"time"
)

// TopicPrefix is prepended to every bus topic derived from an event.
const TopicPrefix = "cloud.events"

// IsInProgress reports whether the event carries a completion percentage
// below 100.
func IsInProgress(e Event) bool {
	return e.PercentComplete != nil && *e.PercentComplete < 100
}

// IsCompleted reports whether the event reached 100 percent.
func IsCompleted(e Event) bool {
	return e.PercentComplete != nil && *e.PercentComplete == 100
}

// CountUnseen returns the number of events not yet marked seen.
func CountUnseen(events []Event) int {
	n := 0
	for _, e := range events {
		if !e.Seen {
			n++
		}
	}
	return n
}

// MostRecentCreated returns the later of t and the event's creation time.
func MostRecentCreated(t time.Time, e Event) time.Time {
	if e.Created.After(t) {
		return e.Created.Time
	}
	return t
}

// FindByEntity returns the index of the first event whose primary entity
// matches entity by id and type, or -1.
func FindByEntity(events []Event, entity Entity) int {
	for i, e := range events {
		if e.Entity != nil && e.Entity.ID == entity.ID && e.Entity.Type == entity.Type {
			return i
		}
	}
	return -1
}

// IsPrimaryEntity reports whether the event's entity has the given id.
func IsPrimaryEntity(e Event, id int64) bool {
	return e.Entity != nil && e.Entity.ID == id
}

// IsSecondaryEntity reports whether the event's secondary entity has the
// given id.
func IsSecondaryEntity(e Event, id int64) bool {
	return e.SecondaryEntity != nil && e.SecondaryEntity.ID == id
}

// MergeEvents folds incoming into prev, both newest-first. Events whose id is
// already present replace the old copy in place; the rest are prepended in
// their incoming order. prev is not modified.
func MergeEvents(prev, incoming []Event) []Event {
	index := make(map[int64]int, len(prev))
	for i, e := range prev {
		index[e.ID] = i
	}

	updated := make([]Event, len(prev))
	copy(updated, prev)

	var fresh []Event
	freshIndex := make(map[int64]int)
	for _, e := range incoming {
		if i, ok := index[e.ID]; ok {
			updated[i] = e
			continue
		}
		if i, ok := freshIndex[e.ID]; ok {
			fresh[i] = e
			continue
		}
		freshIndex[e.ID] = len(fresh)
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return updated
	}
	return append(fresh, updated...)
}

// UpdateInProgress returns a copy of inProgress (event id to percent
// complete) with in-progress events from events added and events that have
// since finished removed. Ids absent from events are left alone.
func UpdateInProgress(inProgress map[int64]int, events []Event) map[int64]int {
	out := make(map[int64]int, len(inProgress))
	for id, pct := range inProgress {
		out[id] = pct
	}
	for _, e := range events {
		if IsInProgress(e) {
			out[e.ID] = *e.PercentComplete
		} else {
			delete(out, e.ID)
		}
	}
	return out
}

// MarkDeleted returns a copy of events in which every event whose entity was
// removed by a delete action in the same list carries Deleted set to that
// delete event's creation time.
func MarkDeleted(events []Event) []Event {
	type key struct {
		id  int64
		typ string
	}
	deletedAt := make(map[key]Timestamp)
	for _, e := range events {
		if e.Entity == nil || !e.Action.IsDelete() {
			continue
		}
		k := key{e.Entity.ID, e.Entity.Type}
		if prev, ok := deletedAt[k]; !ok || e.Created.After(prev.Time) {
			deletedAt[k] = e.Created
		}
	}

	out := make([]Event, len(events))
	copy(out, events)
	if len(deletedAt) == 0 {
		return out
	}
	for i := range out {
		if out[i].Entity == nil {
			continue
		}
		if ts, ok := deletedAt[key{out[i].Entity.ID, out[i].Entity.Type}]; ok {
			stamp := ts
			out[i].Deleted = &stamp
		}
	}
	return out
}

// Topic returns the bus topic for an event:
// cloud.events.<entity type>.<action>. Events without an entity use
// "account" as the type.
func Topic(e Event) string {
	typ := "account"
	if e.Entity != nil && e.Entity.Type != "" {
		typ = sanitizeTopicSegment(e.Entity.Type)
	}
	action := sanitizeTopicSegment(string(e.Action))
	if action == "" {
		action = "unknown"
	}
	return TopicPrefix + "." + typ + "." + action
}

// sanitizeTopicSegment removes characters that would split or wildcard a
// NATS subject segment.
func sanitizeTopicSegment(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
