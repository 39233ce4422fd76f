// Package apiclient is the HTTP client for the remote workflow service.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/soochol/flowboard/internal/flow"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Token      string
	RetryCount int // retries for idempotent reads
	Debug      bool
}

// Client talks to the remote workflow service. It implements
// ports.WorkflowStore, ports.ExecutionRemote and ports.Authenticator.
type Client struct {
	http    *resty.Client
	baseURL string

	mu    sync.RWMutex
	token string
}

// New creates a Client.
func New(opts Options) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	hc := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(retryCondition).
		SetDebug(opts.Debug)
	if opts.Timeout > 0 {
		hc.SetTimeout(opts.Timeout)
	}
	return &Client{http: hc, baseURL: baseURL, token: opts.Token}
}

// retryCondition retries reads on network errors and server-side failures.
// Writes are never retried: a repeated launch would start a second run.
func retryCondition(r *resty.Response, err error) bool {
	if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
		return false
	}
	if err != nil {
		return true
	}
	code := r.StatusCode()
	return code >= 500 || code == http.StatusTooManyRequests || code == http.StatusRequestTimeout
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// do sends a request and decodes a JSON response into result. It reports
// false when the server answered with an empty success (204), in which
// case result is left untouched.
func (c *Client) do(ctx context.Context, method, path string, body, result any) (bool, error) {
	req := c.http.R().SetContext(ctx)
	if tok := c.Token(); tok != "" {
		req.SetAuthToken(tok)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return false, fmt.Errorf("%s %s: %w", method, path, err)
	}
	slog.Debug("api request", "method", method, "path", path, "status", resp.StatusCode())

	if !resp.IsSuccess() {
		return false, newAPIError(resp.StatusCode(), resp.Body())
	}
	if resp.StatusCode() == http.StatusNoContent || len(resp.Body()) == 0 {
		return false, nil
	}
	if result != nil {
		if err := json.Unmarshal(resp.Body(), result); err != nil {
			return false, fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return true, nil
}

// ListWorkflows returns all workflows owned by the caller.
func (c *Client) ListWorkflows(ctx context.Context) ([]flow.WorkflowRecord, error) {
	var out []flow.WorkflowRecord
	if _, err := c.do(ctx, http.MethodGet, "/workflow/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetWorkflow fetches one workflow.
func (c *Client) GetWorkflow(ctx context.Context, id int64) (*flow.WorkflowRecord, error) {
	var out flow.WorkflowRecord
	ok, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/workflow/%d", id), nil, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// CreateWorkflow stores a new workflow.
func (c *Client) CreateWorkflow(ctx context.Context, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	var out flow.WorkflowRecord
	ok, err := c.do(ctx, http.MethodPost, "/workflow/", w, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// ReplaceWorkflow overwrites the name, nodes and edges of a workflow.
func (c *Client) ReplaceWorkflow(ctx context.Context, id int64, w flow.WorkflowWrite) (*flow.WorkflowRecord, error) {
	var out flow.WorkflowRecord
	ok, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/workflow/%d", id), w, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}

// DeleteWorkflow removes a workflow.
func (c *Client) DeleteWorkflow(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/workflow/%d", id), nil, nil)
	return err
}

// StartExecution asks the remote side to run a workflow.
func (c *Client) StartExecution(ctx context.Context, workflowID int64) (*flow.LaunchResponse, error) {
	var out flow.LaunchResponse
	ok, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/execution/workflow/%d", workflowID), nil, &out)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("start execution: empty response")
	}
	return &out, nil
}

// ListExecutions returns the runs of a workflow, newest first.
func (c *Client) ListExecutions(ctx context.Context, workflowID int64) ([]flow.ExecutionRecord, error) {
	var out []flow.ExecutionRecord
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/execution/workflow/%d", workflowID), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetExecution fetches the current state of a run.
func (c *Client) GetExecution(ctx context.Context, executionID int64) (*flow.ExecutionRecord, error) {
	var out flow.ExecutionRecord
	ok, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/execution/%d", executionID), nil, &out)
	if err != nil || !ok {
		return nil, err
	}
	return &out, nil
}
