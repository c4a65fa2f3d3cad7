// Package centralhttp implements connector.CentralConnector against the
// REST API of the central task service. Conversion of external tasks to
// creation requests also lives here, since the mapping is owned by the
// central side of the bridge.
package centralhttp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/roach88/taskbridge/internal/connector"
	"github.com/roach88/taskbridge/internal/httpx"
)

// Options configures a Client. URL is required. Workbasket and
// Classifier are stamped onto every creation request.
type Options struct {
	URL        string
	Token      string
	Workbasket string
	Classifier string
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Client talks to the central task service over HTTP.
type Client struct {
	wire       *httpx.Client
	workbasket string
	classifier string
}

// StatusError is the non-2xx error surfaced by the HTTP layer.
type StatusError = httpx.StatusError

var _ connector.CentralConnector = (*Client)(nil)

// New creates a client for the central task service.
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
		return nil, fmt.Errorf("centralhttp: %w", err)
	}
	return &Client{
		wire:       wire,
		workbasket: opts.Workbasket,
		classifier: opts.Classifier,
	}, nil
}

// Provider returns a connector.CentralProvider constructing one client.
// Registered by the main package.
func Provider(opts Options) connector.CentralProvider {
	return func() ([]connector.CentralConnector, error) {
		c, err := New(opts)
		if err != nil {
			return nil, err
		}
		return []connector.CentralConnector{c}, nil
	}
}

// centralTask is the service's wire representation of a task.
type centralTask struct {
	TaskID        string `json:"taskId"`
	ExternalID    string `json:"externalId"`
	SystemURL     string `json:"systemUrl"`
	Assignee      string `json:"assignee"`
	CallbackState string `json:"callbackState"`
}

func (c *Client) ListClaimedCandidates(ctx context.Context) ([]connector.CentralTask, error) {
	query := url.Values{}
	query.Set("callbackState", string(connector.CallbackStateClaimed))

	var wire []centralTask
	if err := c.wire.DoJSON(ctx, http.MethodGet, "/tasks", query, nil, &wire); err != nil {
		return nil, fmt.Errorf("listing claimed tasks: %w", err)
	}
	return fromWire(wire), nil
}

func (c *Client) ListCompletedCandidates(ctx context.Context, since time.Time) ([]connector.CentralTask, error) {
	query := url.Values{}
	query.Set("callbackState", string(connector.CallbackStateCompletePending))
	if !since.IsZero() {
		query.Set("completedAfter", since.UTC().Format(time.RFC3339))
	}

	var wire []centralTask
	if err := c.wire.DoJSON(ctx, http.MethodGet, "/tasks", query, nil, &wire); err != nil {
		return nil, fmt.Errorf("listing completed tasks: %w", err)
	}
	return fromWire(wire), nil
}

// Convert maps an enriched external task to a creation request. Tasks
// without an id or a name cannot be represented centrally and fail with
// a ConversionError.
func (c *Client) Convert(task connector.ExternalTask) (connector.CentralTaskRequest, error) {
	if task.ID == "" {
		return connector.CentralTaskRequest{}, &connector.ConversionError{
			SystemURL: task.SystemURL,
			TaskID:    task.ID,
			Reason:    "external task id is empty",
		}
	}
	if task.Name == "" {
		return connector.CentralTaskRequest{}, &connector.ConversionError{
			SystemURL: task.SystemURL,
			TaskID:    task.ID,
			Reason:    "task name is required",
		}
	}
	return connector.CentralTaskRequest{
		ExternalID: task.ID,
		SystemURL:  task.SystemURL,
		Name:       task.Name,
		Workbasket: c.workbasket,
		Classifier: c.classifier,
		Variables:  task.Variables,
	}, nil
}

func (c *Client) Create(ctx context.Context, req connector.CentralTaskRequest) (string, error) {
	var created struct {
		TaskID string `json:"taskId"`
	}
	if err := c.wire.DoJSON(ctx, http.MethodPost, "/tasks", nil, req, &created); err != nil {
		return "", &connector.CreationError{
			SystemURL: req.SystemURL,
			TaskID:    req.ExternalID,
			Err:       err,
		}
	}
	if created.TaskID == "" {
		return "", &connector.CreationError{
			SystemURL: req.SystemURL,
			TaskID:    req.ExternalID,
			Err:       fmt.Errorf("central service returned no task id"),
		}
	}
	return created.TaskID, nil
}

func (c *Client) SetCallbackState(ctx context.Context, centralIDs []string, state connector.CallbackState) error {
	if len(centralIDs) == 0 {
		return nil
	}
	body := struct {
		TaskIDs []string `json:"taskIds"`
		State   string   `json:"callbackState"`
	}{TaskIDs: centralIDs, State: string(state)}

	if err := c.wire.DoJSON(ctx, http.MethodPost, "/tasks/callback-state", nil, body, nil); err != nil {
		return fmt.Errorf("setting callback state %s: %w", state, err)
	}
	return nil
}

func fromWire(wire []centralTask) []connector.CentralTask {
	tasks := make([]connector.CentralTask, 0, len(wire))
	for _, w := range wire {
		tasks = append(tasks, connector.CentralTask{
			CentralID:     w.TaskID,
			ExternalID:    w.ExternalID,
			SystemURL:     w.SystemURL,
			Assignee:      w.Assignee,
			CallbackState: connector.CallbackState(w.CallbackState),
		})
	}
	return tasks
}
