// Package anilist implements gateway.QueryService for the AniList GraphQL API.
package anilist

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	gateway "github.com/mediagate/mediagate/internal"
	"github.com/mediagate/mediagate/internal/telemetry"
)

const (
	// DefaultEndpoint is the public AniList GraphQL endpoint.
	DefaultEndpoint = "https://graphql.anilist.co"

	maxResponseBytes = 4 << 20
	maxErrorBytes    = 4096
)

var _ gateway.QueryService = (*Client)(nil)

// Client posts templated GraphQL queries to AniList. It is safe for
// concurrent use.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a Client for endpoint. If endpoint is empty it defaults to
// DefaultEndpoint; a nil client gets a pooled transport and the given timeout.
func New(endpoint string, client *http.Client, timeout time.Duration) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Transport: NewTransport(nil)}
	}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return &Client{endpoint: endpoint, http: client}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// Execute runs the named query template with vars and returns the raw
// response body. Non-200 replies become *gateway.UpstreamError; network
// failures wrap gateway.ErrUnavailable.
func (c *Client) Execute(ctx context.Context, name string, vars map[string]any) (json.RawMessage, error) {
	query, err := Template(name)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.Tracer("mediagate/anilist").Start(ctx, "anilist."+name)
	defer span.End()
	span.SetAttributes(attribute.String("graphql.operation.name", name))

	body, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, fmt.Errorf("anilist: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anilist: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		return nil, fmt.Errorf("%w: anilist %s: %v", gateway.ErrUnavailable, name, err)
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
		return nil, parseUpstreamError(name, resp)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: anilist %s: read response: %v", gateway.ErrUnavailable, name, err)
	}
	if !gjson.ValidBytes(data) {
		span.SetStatus(codes.Error, "invalid json")
		return nil, fmt.Errorf("%w: anilist %s", gateway.ErrMalformedResponse, name)
	}
	return data, nil
}

// parseUpstreamError reads up to 4KB from the response body into an UpstreamError.
func parseUpstreamError(name string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBytes))
	return &gateway.UpstreamError{Query: name, StatusCode: resp.StatusCode, Body: string(body)}
}
