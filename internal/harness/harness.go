// Package harness provides a conformance harness for the sync engine.
//
// A scenario scripts the external systems and the central store, then
// runs job cycles against a fresh in-memory ledger. Every externally
// visible action the engine takes is appended to a trace, and the trace
// is compared against a golden file. Scenarios exercise the real engine
// and the real SQLite ledger; only the connectors are scripted.
package harness

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/taskbridge/internal/connector"
	"github.com/roach88/taskbridge/internal/engine"
	"github.com/roach88/taskbridge/internal/ledger"
)

// TraceEvent is one externally visible action taken during a scenario.
type TraceEvent struct {
	Type       string   `json:"type"`
	Job        string   `json:"job,omitempty"`
	SystemURL  string   `json:"system_url,omitempty"`
	ExternalID string   `json:"external_id,omitempty"`
	CentralID  string   `json:"central_id,omitempty"`
	CentralIDs []string `json:"central_ids,omitempty"`
	State      string   `json:"state,omitempty"`
	Assignee   string   `json:"assignee,omitempty"`
	Processed  int      `json:"processed,omitempty"`
	Skipped    int      `json:"skipped,omitempty"`
	Failed     int      `json:"failed,omitempty"`
}

// Result holds the trace and the final ledger statistics of one run.
type Result struct {
	Trace []TraceEvent
	Stats ledger.Stats
}

// trace collects events from the scripted connectors. Connector calls
// may come from concurrent jobs in principle; the harness runs cycles
// sequentially, but the fakes lock anyway to match connector contracts.
type trace struct {
	mu     sync.Mutex
	events []TraceEvent
}

func (tr *trace) add(ev TraceEvent) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.events = append(tr.events, ev)
}

// scriptedSystem implements connector.SystemConnector from a SystemScript.
type scriptedSystem struct {
	url   string
	tasks []connector.ExternalTask
	vars  map[string]string
	trace *trace
}

func newScriptedSystem(script SystemScript, tr *trace) *scriptedSystem {
	s := &scriptedSystem{
		url:   script.URL,
		vars:  make(map[string]string, len(script.Tasks)),
		trace: tr,
	}
	for _, t := range script.Tasks {
		s.tasks = append(s.tasks, connector.ExternalTask{
			ID:       t.ID,
			Name:     t.Name,
			Assignee: t.Assignee,
		})
		if t.Variables != "" {
			s.vars[t.ID] = t.Variables
		}
	}
	return s
}

func (s *scriptedSystem) SystemURL() string { return s.url }

func (s *scriptedSystem) ListCandidateTasks(ctx context.Context, since time.Time) ([]connector.ExternalTask, error) {
	// Scripted tasks carry no creation time; every poll re-offers the
	// full list, which is exactly the overlap behavior dedup must absorb.
	return append([]connector.ExternalTask(nil), s.tasks...), nil
}

func (s *scriptedSystem) FetchVariables(ctx context.Context, taskID string) (string, error) {
	return s.vars[taskID], nil
}

func (s *scriptedSystem) Claim(ctx context.Context, task connector.ExternalTask) error {
	s.trace.add(TraceEvent{
		Type:       "system_claim",
		SystemURL:  s.url,
		ExternalID: task.ID,
		Assignee:   task.Assignee,
	})
	return nil
}

func (s *scriptedSystem) Complete(ctx context.Context, task connector.ExternalTask) error {
	s.trace.add(TraceEvent{
		Type:       "system_complete",
		SystemURL:  s.url,
		ExternalID: task.ID,
	})
	return nil
}

// scriptedCentral implements connector.CentralConnector from a
// CentralScript. Created tasks get sequential ids for stable traces.
type scriptedCentral struct {
	claimed   []connector.CentralTask
	completed []connector.CentralTask
	trace     *trace
	nextID    int
}

func newScriptedCentral(script CentralScript, tr *trace) *scriptedCentral {
	c := &scriptedCentral{trace: tr}
	for _, t := range script.Claimed {
		c.claimed = append(c.claimed, connector.CentralTask{
			CentralID:     t.CentralID,
			ExternalID:    t.ExternalID,
			SystemURL:     t.SystemURL,
			Assignee:      t.Assignee,
			CallbackState: connector.CallbackStateClaimed,
		})
	}
	for _, t := range script.Completed {
		c.completed = append(c.completed, connector.CentralTask{
			CentralID:     t.CentralID,
			ExternalID:    t.ExternalID,
			SystemURL:     t.SystemURL,
			CallbackState: connector.CallbackStateCompletePending,
		})
	}
	return c
}

func (c *scriptedCentral) ListClaimedCandidates(ctx context.Context) ([]connector.CentralTask, error) {
	return append([]connector.CentralTask(nil), c.claimed...), nil
}

func (c *scriptedCentral) ListCompletedCandidates(ctx context.Context, since time.Time) ([]connector.CentralTask, error) {
	return append([]connector.CentralTask(nil), c.completed...), nil
}

func (c *scriptedCentral) Convert(task connector.ExternalTask) (connector.CentralTaskRequest, error) {
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
		Variables:  task.Variables,
	}, nil
}

func (c *scriptedCentral) Create(ctx context.Context, req connector.CentralTaskRequest) (string, error) {
	c.nextID++
	id := fmt.Sprintf("central-%d", c.nextID)
	c.trace.add(TraceEvent{
		Type:       "central_create",
		SystemURL:  req.SystemURL,
		ExternalID: req.ExternalID,
		CentralID:  id,
	})
	return id, nil
}

func (c *scriptedCentral) SetCallbackState(ctx context.Context, centralIDs []string, state connector.CallbackState) error {
	ids := append([]string(nil), centralIDs...)
	sort.Strings(ids)
	c.trace.add(TraceEvent{
		Type:       "callback_state",
		CentralIDs: ids,
		State:      string(state),
	})
	return nil
}

// Run executes a scenario against a fresh in-memory ledger and returns
// the trace plus the final ledger statistics.
func Run(scenario *Scenario) (*Result, error) {
	led, err := ledger.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory ledger: %w", err)
	}
	defer led.Close()

	tr := &trace{}
	central := newScriptedCentral(scenario.Central, tr)
	systems := make([]connector.SystemConnector, 0, len(scenario.Systems))
	for _, script := range scenario.Systems {
		systems = append(systems, newScriptedSystem(script, tr))
	}

	reg, err := connector.NewRegistry(central, systems...)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}
	eng := engine.New(reg, led)

	ctx := context.Background()
	bodies := map[string]func(context.Context) (engine.Report, error){
		"create":   eng.CreateCentralTasks,
		"claim":    eng.PropagateClaims,
		"complete": eng.PropagateCompletions,
		"purge":    eng.Purge,
	}

	for i, cycle := range scenario.Cycles {
		body, ok := bodies[cycle]
		if !ok {
			return nil, fmt.Errorf("cycles[%d]: unknown job %q", i, cycle)
		}
		report, err := body(ctx)
		if err != nil {
			return nil, fmt.Errorf("cycles[%d] (%s): %w", i, cycle, err)
		}
		tr.add(TraceEvent{
			Type:      "report",
			Job:       report.Job,
			Processed: report.Processed,
			Skipped:   report.Skipped,
			Failed:    report.Failed,
		})
	}

	stats, err := led.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading final ledger stats: %w", err)
	}
	return &Result{Trace: tr.events, Stats: stats}, nil
}
