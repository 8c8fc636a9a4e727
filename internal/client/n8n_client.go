package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"workflow-dashboard/internal/model"
)

const (
	n8nAPIKeyHeader  = "X-N8N-API-KEY"
	maxN8NBodyBytes  = 4 << 20
	maxN8NErrorBytes = 4 << 10
)

var ErrN8NUnavailable = errors.New("n8n unreachable")

// N8NError is a non-2xx answer from an n8n instance.
type N8NError struct {
	StatusCode int
	Body       string
}

func (e *N8NError) Error() string {
	return fmt.Sprintf("n8n returned %d: %s", e.StatusCode, e.Body)
}

// N8NClient talks to the public REST API of user-owned n8n instances.
type N8NClient struct {
	http   *http.Client
	logger *zap.Logger
}

func NewN8NClient(timeout time.Duration, logger *zap.Logger) *N8NClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &N8NClient{
		http:   &http.Client{Timeout: timeout},
		logger: logger,
	}
}

type workflowList struct {
	Data []model.Workflow `json:"data"`
}

// ListWorkflows returns the workflows visible to apiKey on the instance at baseURL.
func (c *N8NClient) ListWorkflows(ctx context.Context, baseURL, apiKey string) ([]model.Workflow, error) {
	var out workflowList
	if err := c.do(ctx, http.MethodGet, baseURL, "/api/v1/workflows", apiKey, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		out.Data = []model.Workflow{}
	}
	return out.Data, nil
}

// SetWorkflowActive activates or deactivates one workflow and returns it as updated.
func (c *N8NClient) SetWorkflowActive(ctx context.Context, baseURL, apiKey, workflowID string, active bool) (*model.Workflow, error) {
	action := "deactivate"
	if active {
		action = "activate"
	}
	path := "/api/v1/workflows/" + url.PathEscape(workflowID) + "/" + action

	var wf model.Workflow
	if err := c.do(ctx, http.MethodPost, baseURL, path, apiKey, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

func (c *N8NClient) do(ctx context.Context, method, baseURL, path, apiKey string, out interface{}) error {
	endpoint := strings.TrimRight(baseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to build n8n request: %w", err)
	}
	req.Header.Set(n8nAPIKeyHeader, apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("n8n request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return fmt.Errorf("%w: %v", ErrN8NUnavailable, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("n8n request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(startTime)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxN8NErrorBytes))
		return &N8NError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxN8NBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("%w: invalid response body: %v", ErrN8NUnavailable, err)
	}
	return nil
}
