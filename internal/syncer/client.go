// Package syncer delivers aggregated session metrics to the remote endpoint
// and reconciles the queue from the response.
package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agentsync/internal/model"
)

const (
	metricsPath    = "/v1/metrics"
	requestTimeout = 10 * time.Second
	maxBodySize    = 1 << 20 // 1 MB
)

// ErrNoEndpoint indicates no endpoint URL is configured.
var ErrNoEndpoint = errors.New("syncer: no endpoint configured")

// Response is the endpoint's answer to one send. The success flag and
// message are the only fields the syncer depends on; everything else in the
// body is advisory.
type Response struct {
	StatusCode int
	Success    bool
	Message    string
}

// Transport sends one aggregated metric object. A returned error means the
// request never completed (timeout, connection refused) and is retryable.
type Transport interface {
	Send(ctx context.Context, agg model.AggregatedMetrics) (Response, error)
}

// Client posts aggregates to the remote metrics endpoint. The bearer token
// is supplied opaquely by a collaborator and never inspected.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the given endpoint. Returns nil when the
// endpoint is empty.
func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{},
	}
}

// Send posts the aggregate and parses the response envelope.
func (c *Client) Send(ctx context.Context, agg model.AggregatedMetrics) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(agg)
	if err != nil {
		return Response{}, fmt.Errorf("syncer: encoding metrics: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+metricsPath, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("syncer: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("syncer: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	result := Response{StatusCode: resp.StatusCode}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		// The POST completed; classification runs on the status code.
		return result, nil
	}

	var envelope struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		result.Success = envelope.Success
		result.Message = envelope.Message
	}
	if result.StatusCode >= 200 && result.StatusCode < 300 && len(body) == 0 {
		result.Success = true
	}
	return result, nil
}

// NopTransport performs no network call and always reports success. It backs
// dry-run mode: the full aggregation and state transition logic runs against
// it for local verification.
type NopTransport struct{}

// Send implements Transport.
func (NopTransport) Send(_ context.Context, _ model.AggregatedMetrics) (Response, error) {
	return Response{StatusCode: http.StatusOK, Success: true, Message: "dry run"}, nil
}
