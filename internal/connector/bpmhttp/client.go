// Package bpmhttp implements connector.SystemConnector against the REST
// API of an external BPM engine. One Client per configured system; the
// task id namespace is scoped to the client's base URL.
package bpmhttp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/roach88/taskbridge/internal/connector"
	"github.com/roach88/taskbridge/internal/httpx"
)

// Options configures a Client. URL is required; everything else has a
// usable default.
type Options struct {
	URL        string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client talks to one BPM engine over HTTP.
type Client struct {
	wire *httpx.Client
}

// StatusError is the non-2xx error surfaced by the HTTP layer.
type StatusError = httpx.StatusError

var _ connector.SystemConnector = (*Client)(nil)

// New creates a client for one BPM system.
func New(opts Options) (*Client, error) {
	wire, err := httpx.New(httpx.Options{
		BaseURL:    opts.URL,
		Token:      opts.Token,
		HTTPClient: opts.HTTPClient,
		Timeout:    opts.Timeout,
		MaxRetries: opts.MaxRetries,
		BaseDelay:  opts.BaseDelay,
		MaxDelay:   opts.MaxDelay,
	})
	if err != nil {
		return nil, fmt.Errorf("bpmhttp: %w", err)
	}
	return &Client{wire: wire}, nil
}

// Provider returns a connector.SystemProvider constructing one client
// per option set. Registered by the main package.
func Provider(optss ...Options) connector.SystemProvider {
	return func() ([]connector.SystemConnector, error) {
		systems := make([]connector.SystemConnector, 0, len(optss))
		for _, opts := range optss {
			c, err := New(opts)
			if err != nil {
				return nil, err
			}
			systems = append(systems, c)
		}
		return systems, nil
	}
}

func (c *Client) SystemURL() string { return c.wire.BaseURL() }

// bpmTask is the engine's wire representation of a task.
type bpmTask struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Assignee    string `json:"assignee"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
	Priority    int    `json:"priority"`
	Due         string `json:"due"`
	Created     string `json:"created"`
}

// taskTimeLayout is the engine's timestamp format. RFC 3339 is tried
// first for engines that emit it.
const taskTimeLayout = "2006-01-02T15:04:05.000-0700"

func (c *Client) ListCandidateTasks(ctx context.Context, since time.Time) ([]connector.ExternalTask, error) {
	query := url.Values{}
	if !since.IsZero() {
		query.Set("createdAfter", since.UTC().Format(taskTimeLayout))
	}

	var wire []bpmTask
	if err := c.wire.DoJSON(ctx, http.MethodGet, "/task", query, nil, &wire); err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	tasks := make([]connector.ExternalTask, 0, len(wire))
	for _, w := range wire {
		tasks = append(tasks, connector.ExternalTask{
			ID:          w.ID,
			SystemURL:   c.wire.BaseURL(),
			Name:        w.Name,
			Assignee:    w.Assignee,
			Description: w.Description,
			Owner:       w.Owner,
			Priority:    strconv.Itoa(w.Priority),
			Due:         w.Due,
			CreatedAt:   parseTaskTime(w.Created),
		})
	}
	return tasks, nil
}

func (c *Client) FetchVariables(ctx context.Context, taskID string) (string, error) {
	var raw json.RawMessage
	path := "/task/" + url.PathEscape(taskID) + "/variables"
	if err := c.wire.DoJSON(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return "", fmt.Errorf("fetching variables for task %s: %w", taskID, err)
	}
	return string(raw), nil
}

func (c *Client) Claim(ctx context.Context, task connector.ExternalTask) error {
	path := "/task/" + url.PathEscape(task.ID) + "/claim"
	body := map[string]string{"userId": task.Assignee}
	if err := c.wire.DoJSON(ctx, http.MethodPost, path, nil, body, nil); err != nil {
		return fmt.Errorf("claiming task %s: %w", task.ID, err)
	}
	return nil
}

func (c *Client) Complete(ctx context.Context, task connector.ExternalTask) error {
	path := "/task/" + url.PathEscape(task.ID) + "/complete"
	if err := c.wire.DoJSON(ctx, http.MethodPost, path, nil, map[string]string{}, nil); err != nil {
		return fmt.Errorf("completing task %s: %w", task.ID, err)
	}
	return nil
}

func parseTaskTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse(taskTimeLayout, s); err == nil {
		return t
	}
	return time.Time{}
}
