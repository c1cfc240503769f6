// Package store defines where events live once they have been published:
// the in-memory cache every serve process keeps, and the optional Postgres
// archive.
package store

import (
	"context"
	"errors"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// ErrNotFound is returned when a lookup matches no event.
var ErrNotFound = errors.New("event not found")

// DefaultSort orders listings newest first.
const DefaultSort = "-id"

// Store defines the persistence interface for events.
type Store interface {
	// UpsertEvents inserts events, replacing any stored copy with the same
	// id. A stored event that is already seen stays seen.
	UpsertEvents(ctx context.Context, events []model.Event) error

	// GetEvent returns ErrNotFound (possibly wrapped) for an unknown id.
	GetEvent(ctx context.Context, id int64) (*model.Event, error)

	// ListEvents returns the page of events matching filter and the total
	// number of matches. Pages are 1-indexed and clamped into range; a
	// PageSize below 1 returns every match.
	ListEvents(ctx context.Context, filter model.EventFilter) ([]model.Event, int, error)

	// MarkSeen marks every event with id <= upToID as seen and returns how
	// many changed.
	MarkSeen(ctx context.Context, upToID int64) (int, error)

	Close() error
}
