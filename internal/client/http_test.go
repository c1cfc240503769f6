package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// testHandler captures the incoming request details and returns a canned response.
type testHandler struct {
	// captured from the request
	method      string
	path        string
	query       string
	body        string
	contentType string
	auth        string
	filter      string
	calls       int

	// canned response
	statusCode   int
	responseBody string
}

func (h *testHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	h.method = r.Method
	h.path = r.URL.Path
	h.query = r.URL.RawQuery
	h.contentType = r.Header.Get("Content-Type")
	h.auth = r.Header.Get("Authorization")
	h.filter = r.Header.Get("X-Filter")
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		h.body = string(data)
	}

	w.Header().Set("Content-Type", "application/json")
	if h.statusCode != 0 {
		w.WriteHeader(h.statusCode)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	if h.responseBody != "" {
		_, _ = w.Write([]byte(h.responseBody))
	}
}

func newTestAPIClient(h http.Handler) (*APIClient, *httptest.Server) {
	srv := httptest.NewServer(h)
	return NewAPIClient(srv.URL, "", 0), srv
}

func TestAPIError_Envelope(t *testing.T) {
	h := &testHandler{
		statusCode:   http.StatusUnauthorized,
		responseBody: `{"errors":[{"reason":"Invalid Token"},{"reason":"must be positive","field":"page"}]}`,
	}
	c, srv := newTestAPIClient(h)
	defer srv.Close()

	_, err := c.ListEvents(context.Background(), nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", apiErr.StatusCode)
	}
	if len(apiErr.Reasons) != 2 || apiErr.Reasons[0] != "Invalid Token" || apiErr.Reasons[1] != "page: must be positive" {
		t.Errorf("reasons = %q", apiErr.Reasons)
	}
	if got, want := apiErr.Error(), "HTTP 401: Invalid Token; page: must be positive"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestAPIError_PlainBody(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
		want string
	}{
		{"text", "upstream exploded\n", "upstream exploded"},
		{"empty", "", "Bad Gateway"},
		{"json without envelope", `{"error":"nope"}`, `{"error":"nope"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := &testHandler{statusCode: http.StatusBadGateway, responseBody: tc.body}
			c, srv := newTestAPIClient(h)
			defer srv.Close()

			err := c.MarkEventSeen(context.Background(), 1)
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if len(apiErr.Reasons) != 1 || apiErr.Reasons[0] != tc.want {
				t.Errorf("reasons = %q, want [%q]", apiErr.Reasons, tc.want)
			}
		})
	}
}

func TestTransport_BearerToken(t *testing.T) {
	h := &testHandler{responseBody: `{"data":[],"page":1,"pages":1,"results":0}`}
	srv := httptest.NewServer(h)
	defer srv.Close()

	if _, err := NewAPIClient(srv.URL, "s3cret", 0).ListEvents(context.Background(), nil); err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if h.auth != "Bearer s3cret" {
		t.Errorf("Authorization = %q, want %q", h.auth, "Bearer s3cret")
	}

	if _, err := NewAPIClient(srv.URL, "", 0).ListEvents(context.Background(), nil); err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if h.auth != "" {
		t.Errorf("Authorization = %q, want none without a token", h.auth)
	}
}

func TestTransport_TrailingSlash(t *testing.T) {
	h := &testHandler{responseBody: `{}`}
	srv := httptest.NewServer(h)
	defer srv.Close()

	c := NewAPIClient(srv.URL+"/v4/", "", 0)
	if err := c.MarkEventSeen(context.Background(), 3); err != nil {
		t.Fatalf("MarkEventSeen: %v", err)
	}
	if h.path != "/v4/account/events/3/seen" {
		t.Errorf("path = %q", h.path)
	}
}

func TestTransport_MalformedResponse(t *testing.T) {
	h := &testHandler{responseBody: `{"data":[{"id":"not a number"}]}`}
	c, srv := newTestAPIClient(h)
	defer srv.Close()

	_, err := c.ListEvents(context.Background(), nil)
	if err == nil {
		t.Fatal("expected decode error")
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		t.Errorf("decode failure reported as API error: %v", err)
	}
}

func TestTransport_RateLimiterHonorsContext(t *testing.T) {
	h := &testHandler{responseBody: `{}`}
	c, srv := newTestAPIClient(h)
	defer srv.Close()
	c.t.limiter = rate.NewLimiter(rate.Every(time.Hour), 1)

	if err := c.MarkEventSeen(context.Background(), 1); err != nil {
		t.Fatalf("first request: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.MarkEventSeen(ctx, 2); err == nil {
		t.Fatal("expected rate limiter to refuse a second request within the deadline")
	}
	if h.calls != 1 {
		t.Errorf("server saw %d requests, want 1", h.calls)
	}
}

func TestNewAPIClient_Limiter(t *testing.T) {
	if c := NewAPIClient("http://x", "", 0); c.t.limiter != nil {
		t.Error("limiter set with throttling disabled")
	}
	c := NewAPIClient("http://x", "", DefaultRequestsPerMinute)
	if c.t.limiter == nil {
		t.Fatal("limiter not set")
	}
	if got, want := c.t.limiter.Limit(), rate.Every(150*time.Millisecond); got != want {
		t.Errorf("limit = %v, want %v", got, want)
	}
	if got := c.t.limiter.Burst(); got != 6 {
		t.Errorf("burst = %d, want 6", got)
	}
}
