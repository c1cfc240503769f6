// Package client provides HTTP/JSON clients for the cloud Events API and for
// a running cmev server, plus the polling source that feeds the poller.
package client

import (
	"context"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// EventLister is the part of the Events API the polling source needs.
// APIClient implements it.
type EventLister interface {
	ListEvents(ctx context.Context, req *ListEventsRequest) (*model.EventPage, error)
}

// ListEventsRequest selects one page of events from the Events API.
type ListEventsRequest struct {
	// Filter is sent JSON-encoded in the X-Filter header. Nil or empty
	// sends no header.
	Filter model.APIFilter

	// Page is 1-indexed; 0 leaves the server default.
	Page int
	// PageSize of 0 leaves the server default.
	PageSize int
}

// MarkSeenResponse is returned by a cmev server after marking events seen.
type MarkSeenResponse struct {
	ID     int64 `json:"id"`
	Marked int   `json:"marked"`
}

// HealthResponse is the body of GET /v1/health on a cmev server.
type HealthResponse struct {
	Status string `json:"status"`
	Stale  bool   `json:"stale"`
}
