package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/taskbridge/internal/connector"
	"github.com/roach88/taskbridge/internal/ledger"
)

// fakeSystem is an in-memory SystemConnector with scriptable failures.
type fakeSystem struct {
	mu  sync.Mutex
	url string

	tasks     []connector.ExternalTask
	variables map[string]string

	listErr      error
	variablesErr error
	claimErr     error
	completeErr  error

	listCalls    int
	claimedIDs   []string
	completedIDs []string
}

func newFakeSystem(url string, tasks ...connector.ExternalTask) *fakeSystem {
	return &fakeSystem{url: url, tasks: tasks, variables: map[string]string{}}
}

func (s *fakeSystem) SystemURL() string { return s.url }

func (s *fakeSystem) ListCandidateTasks(ctx context.Context, since time.Time) ([]connector.ExternalTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []connector.ExternalTask
	for _, t := range s.tasks {
		if t.CreatedAt.IsZero() || !t.CreatedAt.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeSystem) FetchVariables(ctx context.Context, taskID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.variablesErr != nil {
		return "", s.variablesErr
	}
	return s.variables[taskID], nil
}

func (s *fakeSystem) Claim(ctx context.Context, task connector.ExternalTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimErr != nil {
		return s.claimErr
	}
	s.claimedIDs = append(s.claimedIDs, task.ID)
	return nil
}

func (s *fakeSystem) Complete(ctx context.Context, task connector.ExternalTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completeErr != nil {
		return s.completeErr
	}
	s.completedIDs = append(s.completedIDs, task.ID)
	return nil
}

// fakeCentral is an in-memory CentralConnector recording created tasks and
// callback-state changes.
type fakeCentral struct {
	mu sync.Mutex

	claimed   []connector.CentralTask
	completed []connector.CentralTask

	convertErr error
	createErr  error
	stateErr   error

	created     []connector.CentralTaskRequest
	stateCalls  []stateCall
	nextCentral int
}

type stateCall struct {
	ids   []string
	state connector.CallbackState
}

func (c *fakeCentral) ListClaimedCandidates(ctx context.Context) ([]connector.CentralTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]connector.CentralTask(nil), c.claimed...), nil
}

func (c *fakeCentral) ListCompletedCandidates(ctx context.Context, since time.Time) ([]connector.CentralTask, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]connector.CentralTask(nil), c.completed...), nil
}

func (c *fakeCentral) Convert(task connector.ExternalTask) (connector.CentralTaskRequest, error) {
	if c.convertErr != nil {
		return connector.CentralTaskRequest{}, c.convertErr
	}
	return connector.CentralTaskRequest{
		ExternalID: task.ID,
		SystemURL:  task.SystemURL,
		Name:       task.Name,
		Variables:  task.Variables,
	}, nil
}

func (c *fakeCentral) Create(ctx context.Context, req connector.CentralTaskRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.nextCentral++
	c.created = append(c.created, req)
	return fmt.Sprintf("central-%d", c.nextCentral), nil
}

func (c *fakeCentral) SetCallbackState(ctx context.Context, centralIDs []string, state connector.CallbackState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stateErr != nil {
		return c.stateErr
	}
	c.stateCalls = append(c.stateCalls, stateCall{ids: centralIDs, state: state})
	return nil
}

func (c *fakeCentral) createdIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.created))
	for _, req := range c.created {
		ids = append(ids, req.ExternalID)
	}
	return ids
}

// flakyLedger wraps a real ledger and fails RegisterCreated a scripted
// number of times. Used to simulate the create-then-ledger crash window.
type flakyLedger struct {
	ledger.Ledger
	mu                   sync.Mutex
	registerFailuresLeft int
}

func (f *flakyLedger) RegisterCreated(ctx context.Context, systemURL, externalID, centralID string, createdAt time.Time) error {
	f.mu.Lock()
	fail := f.registerFailuresLeft > 0
	if fail {
		f.registerFailuresLeft--
	}
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("simulated storage fault")
	}
	return f.Ledger.RegisterCreated(ctx, systemURL, externalID, centralID, createdAt)
}

func newTestLedger(t *testing.T) *ledger.SQLiteLedger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.db")
	l, err := ledger.OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestEngine(t *testing.T, central *fakeCentral, led ledger.Ledger, systems ...connector.SystemConnector) *Engine {
	t.Helper()
	reg, err := connector.NewRegistry(central, systems...)
	require.NoError(t, err)
	return New(reg, led)
}
