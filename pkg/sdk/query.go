package ragline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// Query asks a question over the caller's documents and returns the grounded
// answer with its citations.
func (c *Client) Query(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	var resp QueryResponse
	if err := c.doJSON(ctx, "POST", "/v1/query", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Messages returns a conversation's turns oldest first.
func (c *Client) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	var resp struct {
		Items []Message `json:"items"`
	}
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.do(ctx, "GET", path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Usage returns the caller's aggregated usage ledger.
func (c *Client) Usage(ctx context.Context) (*UsageSummary, error) {
	var s UsageSummary
	if err := c.do(ctx, "GET", "/v1/usage", nil, "", &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Health returns the service health report. A degraded service responds with
// 503 but still carries the full report, so the body is decoded either way.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/healthz", nil)
	if err != nil {
		return nil, fmt.Errorf("ragline: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ragline: GET /healthz: %w", err)
	}
	defer resp.Body.Close()

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("ragline: decode health report: %w", err)
	}
	return &h, nil
}
