package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loom/pkg/retry"
)

// HTTPClient talks to the tracking service's REST API. Reads are wrapped
// with the read-heavy retry preset and writes with the default preset;
// StartSession is never retried because the service enforces uniqueness.
type HTTPClient struct {
	baseURL string
	token   string
	hc      *http.Client

	readPolicy  retry.Policy
	writePolicy retry.Policy
}

// NewHTTPClient creates a client for the service at baseURL authenticating
// with the given bearer token.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		hc:          &http.Client{Timeout: 30 * time.Second},
		readPolicy:  retry.ReadHeavyPolicy(),
		writePolicy: retry.DefaultPolicy(),
	}
}

// do performs one request attempt and decodes a JSON response into out
// (when out is non-nil). Non-2xx responses become APIError with the body
// preserved; transport failures become classified RequestErrors.
func (c *HTTPClient) do(ctx context.Context, op, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("tracker %s: encode request: %w", op, err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("tracker %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return newRequestError(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return newRequestError(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("tracker %s: decode response: %w", op, err)
		}
	}
	return nil
}

// doRetry wraps do with the given retry policy.
func (c *HTTPClient) doRetry(ctx context.Context, policy retry.Policy, op, method, path string, body, out any) error {
	_, err := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.do(ctx, op, method, path, body, out)
	})
	return err
}

func (c *HTTPClient) createItem(ctx context.Context, op, path string, spec ItemSpec) (*Item, error) {
	var item Item
	if err := c.doRetry(ctx, c.writePolicy, op, http.MethodPost, path, spec, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateEpic creates an epic.
func (c *HTTPClient) CreateEpic(ctx context.Context, spec ItemSpec) (*Item, error) {
	return c.createItem(ctx, "create epic", "/api/epics", spec)
}

// CreateFeature creates a feature under an epic.
func (c *HTTPClient) CreateFeature(ctx context.Context, spec ItemSpec) (*Item, error) {
	return c.createItem(ctx, "create feature", "/api/features", spec)
}

// CreateTask creates a task under a feature.
func (c *HTTPClient) CreateTask(ctx context.Context, spec ItemSpec) (*Item, error) {
	return c.createItem(ctx, "create task", "/api/tasks", spec)
}

// GetExecutionPlan fetches the phased plan for an epic.
func (c *HTTPClient) GetExecutionPlan(ctx context.Context, epicID string) (*ExecutionPlan, error) {
	var plan ExecutionPlan
	path := fmt.Sprintf("/api/epics/%s/execution-plan", url.PathEscape(epicID))
	if err := c.doRetry(ctx, c.readPolicy, "get execution plan", http.MethodGet, path, nil, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// GetProgressSummary fetches epic-level progress.
func (c *HTTPClient) GetProgressSummary(ctx context.Context, epicID string) (*ProgressSummary, error) {
	var sum ProgressSummary
	path := fmt.Sprintf("/api/epics/%s/progress", url.PathEscape(epicID))
	if err := c.doRetry(ctx, c.readPolicy, "get progress summary", http.MethodGet, path, nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

// ItemStatus fetches the current status of a single work item.
func (c *HTTPClient) ItemStatus(ctx context.Context, typ ItemType, id string) (string, error) {
	var item Item
	path := fmt.Sprintf("/api/%ss/%s", typ, url.PathEscape(id))
	if err := c.doRetry(ctx, c.readPolicy, "get item", http.MethodGet, path, nil, &item); err != nil {
		return "", err
	}
	return item.Status, nil
}

// StartWork marks an item in progress.
func (c *HTTPClient) StartWork(ctx context.Context, typ ItemType, id string) error {
	path := fmt.Sprintf("/api/%ss/%s/start", typ, url.PathEscape(id))
	return c.doRetry(ctx, c.writePolicy, "start work", http.MethodPost, path, nil, nil)
}

// CompleteWork marks an item completed with an optional summary.
func (c *HTTPClient) CompleteWork(ctx context.Context, typ ItemType, id, summary string) error {
	path := fmt.Sprintf("/api/%ss/%s/complete", typ, url.PathEscape(id))
	body := map[string]string{}
	if summary != "" {
		body["summary"] = summary
	}
	return c.doRetry(ctx, c.writePolicy, "complete work", http.MethodPost, path, body, nil)
}

// ReportBlocker records a blocker on an item.
func (c *HTTPClient) ReportBlocker(ctx context.Context, typ ItemType, id, reason string) error {
	path := fmt.Sprintf("/api/%ss/%s/blocker", typ, url.PathEscape(id))
	return c.doRetry(ctx, c.writePolicy, "report blocker", http.MethodPost, path, map[string]string{"reason": reason}, nil)
}

// StartSession opens a work session for an epic. Not retried: the service
// rejects a duplicate start and that rejection must surface as-is.
func (c *HTTPClient) StartSession(ctx context.Context, epicID string) (*WorkSession, error) {
	var ws WorkSession
	path := fmt.Sprintf("/api/epics/%s/sessions/start", url.PathEscape(epicID))
	if err := c.do(ctx, "start session", http.MethodPost, path, nil, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// EndSession closes the epic's work session with closing notes.
func (c *HTTPClient) EndSession(ctx context.Context, epicID string, notes SessionNotes) error {
	path := fmt.Sprintf("/api/epics/%s/sessions/end", url.PathEscape(epicID))
	return c.doRetry(ctx, c.writePolicy, "end session", http.MethodPost, path, notes, nil)
}

// ListTeams lists teams visible to the token.
func (c *HTTPClient) ListTeams(ctx context.Context) ([]Team, error) {
	var teams []Team
	if err := c.doRetry(ctx, c.readPolicy, "list teams", http.MethodGet, "/api/teams", nil, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}
