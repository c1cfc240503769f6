package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/alfredjeanlab/cmevents/internal/model"
	"github.com/alfredjeanlab/cmevents/internal/poller"
)

// ServerClient talks to a running cmev server's /v1 API.
type ServerClient struct {
	t transport
}

// NewServerClient creates a client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewServerClient(baseURL, token string) *ServerClient {
	return &ServerClient{t: newTransport(baseURL, token)}
}

// Close is a no-op for the HTTP client.
func (c *ServerClient) Close() error { return nil }

// ListEvents returns one page of the server's cached events.
func (c *ServerClient) ListEvents(ctx context.Context, f *model.EventFilter) (*model.EventPage, error) {
	path := "/v1/events"
	if q := filterQuery(f); len(q) > 0 {
		path += "?" + q.Encode()
	}
	var page model.EventPage
	if err := c.t.doJSON(ctx, http.MethodGet, path, nil, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func filterQuery(f *model.EventFilter) url.Values {
	q := url.Values{}
	if f == nil {
		return q
	}
	if len(f.Status) > 0 {
		s := make([]string, len(f.Status))
		for i, v := range f.Status {
			s[i] = string(v)
		}
		q.Set("status", strings.Join(s, ","))
	}
	if len(f.Action) > 0 {
		s := make([]string, len(f.Action))
		for i, v := range f.Action {
			s[i] = string(v)
		}
		q.Set("action", strings.Join(s, ","))
	}
	if f.EntityType != "" {
		q.Set("entity_type", f.EntityType)
	}
	if f.EntityID != nil {
		q.Set("entity_id", strconv.FormatInt(*f.EntityID, 10))
	}
	if f.Unseen {
		q.Set("unseen", "true")
	}
	if f.Sort != "" {
		q.Set("sort", f.Sort)
	}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(f.PageSize))
	}
	return q
}

// MarkSeen marks id and every earlier event seen, upstream and in the
// server's cache.
func (c *ServerClient) MarkSeen(ctx context.Context, id int64) (*MarkSeenResponse, error) {
	var resp MarkSeenResponse
	path := "/v1/events/" + strconv.FormatInt(id, 10) + "/seen"
	if err := c.t.doJSON(ctx, http.MethodPost, path, nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PollerState returns the server's poller snapshot.
func (c *ServerClient) PollerState(ctx context.Context) (*poller.State, error) {
	var s poller.State
	if err := c.t.doJSON(ctx, http.MethodGet, "/v1/poller", nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ResetPoller signals activity: the server's poller drops its backoff and
// fetches on the next tick.
func (c *ServerClient) ResetPoller(ctx context.Context) (*poller.State, error) {
	var s poller.State
	if err := c.t.doJSON(ctx, http.MethodPost, "/v1/poller/reset", nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health checks the server. It succeeds even when the feed is stale; check
// HealthResponse.Stale.
func (c *ServerClient) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.t.doJSON(ctx, http.MethodGet, "/v1/health", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
