// Package source provides metric snapshot sources for the evaluation loop.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domain "github.com/oncallops/flare/pkg/types"
)

const defaultTimeout = 10 * time.Second

// HTTPSource pulls a metric snapshot from an HTTP endpoint returning a flat
// JSON object: {"cpu_usage": 92.5, "region": "us-east-1", ...}. Numbers
// decode as float64, which is what condition evaluation expects.
type HTTPSource struct {
	url     string
	client  *http.Client
	headers map[string]string
}

// HTTPOption configures an HTTPSource.
type HTTPOption func(*HTTPSource)

// WithClient overrides the HTTP client.
func WithClient(c *http.Client) HTTPOption {
	return func(s *HTTPSource) {
		s.client = c
	}
}

// WithHeader adds a request header, e.g. an authorization token.
func WithHeader(key, value string) HTTPOption {
	return func(s *HTTPSource) {
		s.headers[key] = value
	}
}

func NewHTTPSource(url string, opts ...HTTPOption) *HTTPSource {
	s := &HTTPSource{
		url:     url,
		client:  &http.Client{Timeout: defaultTimeout},
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot fetches and decodes the current metric values. String arrays
// stay as []any of strings, which the evaluator accepts as string sets.
func (s *HTTPSource) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("building snapshot request: %w", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot endpoint returned %s", resp.Status)
	}

	var snap domain.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}
