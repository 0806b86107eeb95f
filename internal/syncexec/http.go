package syncexec

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/toolhive-sync-scheduler/internal/httpclient"
)

// syncRequest is the payload posted to the engine
type syncRequest struct {
	ItemCount       int  `json:"itemCount"`
	ForceReclassify bool `json:"forceReclassify"`
}

// HTTPOption configures the HTTP executor
type HTTPOption func(*httpExecutor)

// WithHTTPClient overrides the HTTP client
func WithHTTPClient(client httpclient.Client) HTTPOption {
	return func(e *httpExecutor) {
		e.client = client
	}
}

// WithTimeout bounds each request. By default a sync attempt runs until the
// engine answers.
func WithTimeout(timeout time.Duration) HTTPOption {
	return func(e *httpExecutor) {
		e.client = httpclient.NewDefaultClient(timeout)
	}
}

type httpExecutor struct {
	endpoint string
	client   httpclient.Client
}

// NewHTTPExecutor creates an executor that triggers syncs through the engine's HTTP API
func NewHTTPExecutor(endpoint string, opts ...HTTPOption) Executor {
	e := &httpExecutor{
		endpoint: endpoint,
		client:   httpclient.NewDefaultClient(httpclient.NoTimeout),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *httpExecutor) Sync(ctx context.Context, itemCount int, forceReclassify bool) (*Result, error) {
	requestID := uuid.NewString()
	slog.DebugContext(ctx, "Triggering sync engine",
		"endpoint", e.endpoint,
		"request_id", requestID,
		"item_count", itemCount)

	body, err := e.client.PostJSON(ctx, e.endpoint,
		syncRequest{ItemCount: itemCount, ForceReclassify: forceReclassify},
		map[string]string{httpclient.RequestIDHeader: requestID},
	)
	if err != nil {
		return nil, fmt.Errorf("sync request %s failed: %w", requestID, err)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode sync response for request %s: %w", requestID, err)
	}
	return &result, nil
}
