package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultTimeout = 30 * time.Second

// APIError is a non-2xx response. Reasons come from the standard error
// envelope {"errors":[{"reason":"..."}]}; when the body is not an envelope,
// the raw body (or status text) is the only reason.
type APIError struct {
	StatusCode int
	Reasons    []string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, strings.Join(e.Reasons, "; "))
}

// ErrorEnvelope is the error body shape shared by the Events API and cmev
// servers.
type ErrorEnvelope struct {
	Errors []ErrorReason `json:"errors"`
}

// ErrorReason is one entry of an ErrorEnvelope.
type ErrorReason struct {
	Reason string `json:"reason"`
	Field  string `json:"field,omitempty"`
}

func newAPIError(status int, body []byte) *APIError {
	var env ErrorEnvelope
	if json.Unmarshal(body, &env) == nil && len(env.Errors) > 0 {
		reasons := make([]string, 0, len(env.Errors))
		for _, r := range env.Errors {
			if r.Field != "" {
				reasons = append(reasons, r.Field+": "+r.Reason)
			} else {
				reasons = append(reasons, r.Reason)
			}
		}
		return &APIError{StatusCode: status, Reasons: reasons}
	}
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{StatusCode: status, Reasons: []string{msg}}
}

// transport carries the request plumbing both clients share.
type transport struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newTransport(baseURL, token string) transport {
	return transport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

// doJSON performs an HTTP request with optional JSON body and decodes the
// JSON response into result. If result is nil the response body is
// discarded. header may be nil.
func (t *transport) doJSON(ctx context.Context, method, path string, header http.Header, body any, result any) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return newAPIError(resp.StatusCode, respBody)
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
