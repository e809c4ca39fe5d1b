package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/okian/visiontags/internal/domain/types"
)

// HTTPClient talks to the service API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
	user    string
	model   string
}

// newHTTPClient creates a new HTTP client with the configured timeout.
func newHTTPClient(config *Config) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: config.Timeout},
		baseURL: config.BaseURL,
		user:    config.User,
		model:   config.Model,
	}
}

// StatusError reports a non-2xx answer.
type StatusError struct {
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Path, e.Status, e.Body)
}

// do sends req and decodes a JSON answer into out.
func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s: read body: %w", req.URL.Path, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &StatusError{Path: req.URL.Path, Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s: decode: %w", req.URL.Path, err)
	}
	return nil
}

// Health checks GET /health.
func (c *HTTPClient) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, nil)
}

// Analyze uploads a PNG to POST /analyze.
func (c *HTTPClient) Analyze(ctx context.Context, pngData []byte) (types.Analysis, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "sample.png")
	if err != nil {
		return types.Analysis{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(pngData); err != nil {
		return types.Analysis{}, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return types.Analysis{}, fmt.Errorf("failed to close form: %w", err)
	}

	target := c.baseURL + "/analyze"
	if c.model != "" {
		target += "?model=" + url.QueryEscape(c.model)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return types.Analysis{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.user != "" {
		req.Header.Set("X-User", c.user)
	}

	var out types.Analysis
	err = c.do(req, &out)
	return out, err
}

// Feedback posts a ground-truth label.
func (c *HTTPClient) Feedback(ctx context.Context, id, label string) error {
	data, err := json.Marshal(types.Feedback{PredictionID: id, TrueLabel: label})
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/feedback", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.user != "" {
		req.Header.Set("X-User", c.user)
	}
	return c.do(req, nil)
}

// Neighbors fetches GET /neighbors/{id}?k=.
func (c *HTTPClient) Neighbors(ctx context.Context, id string, k int) ([]types.Neighbor, error) {
	target := c.baseURL + "/neighbors/" + url.PathEscape(id) + "?k=" + strconv.Itoa(k)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	var out []types.Neighbor
	err = c.do(req, &out)
	return out, err
}

// Points fetches GET /embeddings/points?limit=. limit <= 0 asks for the
// whole window.
func (c *HTTPClient) Points(ctx context.Context, limit int) (types.Points, error) {
	target := c.baseURL + "/embeddings/points"
	if limit > 0 {
		target += "?limit=" + strconv.Itoa(limit)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return types.Points{}, fmt.Errorf("failed to create request: %w", err)
	}
	var out types.Points
	err = c.do(req, &out)
	return out, err
}

// Summary fetches GET /metrics/summary?window=.
func (c *HTTPClient) Summary(ctx context.Context, window int) (types.Summary, error) {
	target := c.baseURL + "/metrics/summary"
	if window > 0 {
		target += "?window=" + strconv.Itoa(window)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return types.Summary{}, fmt.Errorf("failed to create request: %w", err)
	}
	var out types.Summary
	err = c.do(req, &out)
	return out, err
}
