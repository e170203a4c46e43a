package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/josemimbre/cachedict/column"
)

// HTTP is a Source fetching attribute values from an HTTP endpoint with a
// small JSON batch protocol. Transient failures are retried with backoff by
// the underlying retryable client.
//
// Request body:
//
//	{"keys": [...], "attributes": ["name", ...]}
//
// Response body:
//
//	{"rows": [{"key": ..., "values": [...]}, ...]}
//
// Keys absent from the response are treated as misses.
type HTTP[K comparable] struct {
	client   *retryablehttp.Client
	endpoint string
}

// HTTPOption configures an HTTP source.
type HTTPOption[K comparable] func(*HTTP[K])

// WithHTTPClient replaces the default retryable client.
func WithHTTPClient[K comparable](client *retryablehttp.Client) HTTPOption[K] {
	return func(h *HTTP[K]) {
		if client != nil {
			h.client = client
		}
	}
}

// NewHTTP creates an HTTP source posting batch requests to endpoint.
func NewHTTP[K comparable](endpoint string, opts ...HTTPOption[K]) (*HTTP[K], error) {
	if endpoint == "" {
		return nil, fmt.Errorf("source: http source needs an endpoint")
	}

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil

	h := &HTTP[K]{
		client:   client,
		endpoint: endpoint,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

type httpFetchRequest[K comparable] struct {
	Keys       []K      `json:"keys"`
	Attributes []string `json:"attributes"`
}

type httpFetchResponse[K comparable] struct {
	Rows []httpRow[K] `json:"rows"`
}

type httpRow[K comparable] struct {
	Key    K     `json:"key"`
	Values []any `json:"values"`
}

// FetchColumns implements Source.
func (h *HTTP[K]) FetchColumns(ctx context.Context, keys []K, req *column.FetchRequest) (map[K][]any, error) {
	attrs := req.Attributes()
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}

	body, err := json.Marshal(httpFetchRequest[K]{Keys: keys, Attributes: names})
	if err != nil {
		return nil, fmt.Errorf("source: encode http request: %w", err)
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("source: build http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("source: http fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("source: http fetch: status %d: %s", resp.StatusCode, payload)
	}

	var decoded httpFetchResponse[K]
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("source: decode http response: %w", err)
	}

	out := make(map[K][]any, len(decoded.Rows))
	for _, r := range decoded.Rows {
		if len(r.Values) != len(attrs) {
			return nil, fmt.Errorf("source: http row for key %v has %d values, want %d", r.Key, len(r.Values), len(attrs))
		}
		row := make([]any, len(attrs))
		for i, a := range attrs {
			v, err := column.NormalizeValue(a.Type, r.Values[i])
			if err != nil {
				return nil, fmt.Errorf("source: http key %v attribute %q: %w", r.Key, a.Name, err)
			}
			row[i] = v
		}
		out[r.Key] = row
	}

	return out, nil
}

// Close implements Source.
func (h *HTTP[K]) Close() error {
	h.client.HTTPClient.CloseIdleConnections()
	return nil
}
