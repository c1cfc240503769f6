package model

import (
	"slices"
	"time"
)

// APIFilter is the JSON document sent in the X-Filter header. Keys prefixed
// with "+" are operators ("+or", "+and", "+gte", "+order_by", ...).
type APIFilter map[string]any

// EventFilter holds criteria for listing events, locally or from the API.
type EventFilter struct {
	Status     []EventStatus `json:"status,omitempty"`
	Action     []EventAction `json:"action,omitempty"`
	EntityType string        `json:"entity_type,omitempty"`
	EntityID   *int64        `json:"entity_id,omitempty"`
	Unseen     bool          `json:"unseen,omitempty"`
	Sort       string        `json:"sort,omitempty"` // e.g. "-id", "created"; prefix "-" = descending
	Page       int           `json:"page,omitempty"`
	PageSize   int           `json:"page_size,omitempty"`
}

// Matches reports whether e satisfies every criterion in f. Sort and paging
// fields are ignored.
func (f EventFilter) Matches(e Event) bool {
	if len(f.Status) > 0 && !slices.Contains(f.Status, e.Status) {
		return false
	}
	if len(f.Action) > 0 && !slices.Contains(f.Action, e.Action) {
		return false
	}
	if f.EntityType != "" && (e.Entity == nil || e.Entity.Type != f.EntityType) {
		return false
	}
	if f.EntityID != nil && !IsPrimaryEntity(e, *f.EntityID) && !IsSecondaryEntity(e, *f.EntityID) {
		return false
	}
	if f.Unseen && e.Seen {
		return false
	}
	return true
}

// APIFilter translates the matching criteria into an X-Filter document.
// Criteria the API cannot express (Unseen, EntityID on secondary entities)
// are left for Matches to apply client-side.
func (f EventFilter) APIFilter() APIFilter {
	out := APIFilter{}
	if len(f.Action) == 1 {
		out["action"] = string(f.Action[0])
	} else if len(f.Action) > 1 {
		var or []APIFilter
		for _, a := range f.Action {
			or = append(or, APIFilter{"action": string(a)})
		}
		out["+or"] = or
	}
	if f.EntityType != "" {
		out["entity.type"] = f.EntityType
	}
	if f.EntityID != nil {
		out["entity.id"] = *f.EntityID
	}
	out["+order_by"] = "id"
	out["+order"] = "desc"
	return out
}

// PollingFilter builds the filter the poller uses to ask for anything new
// since the last fetch: events created at or after since, plus every event
// still in progress (whose percentage may have moved). Events already seen at
// exactly since are excluded so they are not delivered twice.
func PollingFilter(since time.Time, inProgress []int64, seenAtSince []int64) APIFilter {
	or := []APIFilter{
		{"created": APIFilter{"+gte": since.UTC().Format(TimestampLayout)}},
	}
	for _, id := range sortedIDs(inProgress) {
		or = append(or, APIFilter{"id": id})
	}

	f := APIFilter{
		"+or":       or,
		"+order_by": "id",
		"+order":    "desc",
	}
	if len(seenAtSince) > 0 {
		var and []APIFilter
		for _, id := range sortedIDs(seenAtSince) {
			and = append(and, APIFilter{"id": APIFilter{"+neq": id}})
		}
		f["+and"] = and
	}
	return f
}

// PollingCursor extracts, from events already known (newest-first), the
// values PollingFilter needs: the newest creation time (or fallback when
// events is empty), the ids of in-progress events, and the ids of events
// created at exactly that time.
func PollingCursor(events []Event, fallback time.Time) (since time.Time, inProgress, seenAtSince []int64) {
	since = fallback
	for _, e := range events {
		since = MostRecentCreated(since, e)
	}
	for _, e := range events {
		if IsInProgress(e) {
			inProgress = append(inProgress, e.ID)
		}
		if e.Created.Equal(since) && !IsInProgress(e) {
			seenAtSince = append(seenAtSince, e.ID)
		}
	}
	return since, inProgress, seenAtSince
}

func sortedIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}
