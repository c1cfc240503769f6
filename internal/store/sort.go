package store

import (
	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/orderby"
)

// SortFields lists the fields a listing can be sorted by.
var SortFields = []string{"id", "created", "status", "action", "entity_type", "percent_complete", "seen"}

// SortKey returns the value of field on e for orderby comparison.
func SortKey(field string) (func(model.Event) any, bool) {
	switch field {
	case "id":
		return func(e model.Event) any { return e.ID }, true
	case "created":
		return func(e model.Event) any { return e.Created }, true
	case "status":
		return func(e model.Event) any { return e.Status }, true
	case "action":
		return func(e model.Event) any { return e.Action }, true
	case "entity_type":
		return func(e model.Event) any {
			if e.Entity == nil {
				return nil
			}
			return e.Entity.Type
		}, true
	case "percent_complete":
		return func(e model.Event) any { return e.PercentComplete }, true
	case "seen":
		return func(e model.Event) any { return e.Seen }, true
	}
	return nil, false
}

// Comparator parses a sort clause such as "-created" into an event
// comparator. Unknown fields fall back to DefaultSort.
func Comparator(clause string) func(a, b model.Event) int {
	field, order := orderby.ParseSort(clause)
	key, ok := SortKey(field)
	if !ok {
		field, order = orderby.ParseSort(DefaultSort)
		key, _ = SortKey(field)
	}
	return orderby.By(key, order)
}
