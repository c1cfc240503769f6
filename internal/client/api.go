package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alfredjeanlab/cmevents/internal/model"
	"golang.org/x/time/rate"
)

// DefaultRequestsPerMinute is the Events API's published limit for
// /account/events.
const DefaultRequestsPerMinute = 400

const eventsPath = "/account/events"

// minPageSize is the smallest page_size the API accepts.
const minPageSize = 25

// APIClient talks to the cloud Events API (e.g. https://api.linode.com/v4).
type APIClient struct {
	t transport
}

// NewAPIClient creates a client for the API rooted at baseURL. Requests are
// throttled to requestsPerMinute; 0 or less disables throttling.
func NewAPIClient(baseURL, token string, requestsPerMinute int) *APIClient {
	t := newTransport(baseURL, token)
	if requestsPerMinute > 0 {
		every := time.Minute / time.Duration(requestsPerMinute)
		t.limiter = rate.NewLimiter(rate.Every(every), max(1, requestsPerMinute/60))
	}
	return &APIClient{t: t}
}

// Close is a no-op for the HTTP client.
func (c *APIClient) Close() error { return nil }

// ListEvents returns one page of the account's events.
func (c *APIClient) ListEvents(ctx context.Context, req *ListEventsRequest) (*model.EventPage, error) {
	if req == nil {
		req = &ListEventsRequest{}
	}
	q := url.Values{}
	if req.Page > 0 {
		q.Set("page", strconv.Itoa(req.Page))
	}
	if req.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(req.PageSize))
	}
	path := eventsPath
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var header http.Header
	if len(req.Filter) > 0 {
		data, err := json.Marshal(req.Filter)
		if err != nil {
			return nil, fmt.Errorf("encoding filter: %w", err)
		}
		header = http.Header{"X-Filter": []string{string(data)}}
	}

	var page model.EventPage
	if err := c.t.doJSON(ctx, http.MethodGet, path, header, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetEvent fetches a single event.
func (c *APIClient) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	var e model.Event
	if err := c.t.doJSON(ctx, http.MethodGet, eventPath(id), nil, nil, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// MarkEventSeen marks the event and every earlier event as seen.
func (c *APIClient) MarkEventSeen(ctx context.Context, id int64) error {
	return c.t.doJSON(ctx, http.MethodPost, eventPath(id)+"/seen", nil, struct{}{}, nil)
}

// Health checks that the API is reachable and accepts the token by
// requesting the smallest page of events.
func (c *APIClient) Health(ctx context.Context) error {
	if _, err := c.ListEvents(ctx, &ListEventsRequest{PageSize: minPageSize}); err != nil {
		return fmt.Errorf("events API health: %w", err)
	}
	return nil
}

func eventPath(id int64) string {
	return eventsPath + "/" + strconv.FormatInt(id, 10)
}
