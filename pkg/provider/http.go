package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxResponseBody = 64 << 10

// httpStatusError is a non-2xx response from a backend.
type httpStatusError struct {
	Status int
	Body   string
}

func (e *httpStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned status %d", e.Status)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.Status, e.Body)
}

// postJSON sends body as JSON and returns the raw response. Transport errors
// and 5xx responses count against the breaker; anything else counts as a
// healthy backend even when the request itself was rejected.
func postJSON(ctx context.Context, o *options, url string, header http.Header, body any) (int, []byte, error) {
	if !o.breaker.Allow() {
		return 0, nil, ErrCircuitOpen
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		o.breaker.RecordFailure()
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if resp.StatusCode >= 500 {
		o.breaker.RecordFailure()
	} else {
		o.breaker.RecordSuccess()
	}
	return resp.StatusCode, data, nil
}

// sanitize shortens a response body for error messages.
func sanitize(body []byte) string {
	s := strings.ReplaceAll(strings.TrimSpace(string(body)), "\n", " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}
