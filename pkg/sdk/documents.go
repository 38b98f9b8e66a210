package ragline

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/url"
)

// Upload stores a file and queues it for processing.
func (c *Client) Upload(ctx context.Context, filename string, data []byte) (*Document, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("ragline: build upload: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("ragline: build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("ragline: build upload: %w", err)
	}

	var doc Document
	if err := c.do(ctx, "POST", "/v1/documents", &body, mw.FormDataContentType(), &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Documents lists the caller's documents. status is optional
// (uploaded, processing, completed, error).
func (c *Client) Documents(ctx context.Context, status string) ([]Document, error) {
	path := "/v1/documents"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Document `json:"items"`
	}
	if err := c.do(ctx, "GET", path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Document returns one document by id.
func (c *Client) Document(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := c.do(ctx, "GET", "/v1/documents/"+url.PathEscape(id), nil, "", &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DownloadURL returns a short-lived presigned URL for the original file.
func (c *Client) DownloadURL(ctx context.Context, id string) (string, error) {
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, "GET", "/v1/documents/"+url.PathEscape(id)+"/download", nil, "", &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// Process queues a document for processing. Returns *APIError with
// CodeAlreadyProcessing when a run is already in flight.
func (c *Client) Process(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/v1/documents/"+url.PathEscape(id)+"/process", nil, "", nil)
}

// Retry redrives a failed document. Returns *APIError with CodeRetryLimit
// once the retry budget is exhausted.
func (c *Client) Retry(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "/v1/documents/"+url.PathEscape(id)+"/retry", nil, "", nil)
}

// Analyze returns an LLM analysis of a processed document. kind is one of
// AnalysisSummary, AnalysisEntities, AnalysisSentiment.
func (c *Client) Analyze(ctx context.Context, id, kind string) (*Analysis, error) {
	path := "/v1/documents/" + url.PathEscape(id) + "/analysis?kind=" + url.QueryEscape(kind)
	var a Analysis
	if err := c.do(ctx, "GET", path, nil, "", &a); err != nil {
		return nil, err
	}
	return &a, nil
}
