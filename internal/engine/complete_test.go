package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskbridge/internal/connector"
)

func TestPropagateCompletions_PushesAndAcknowledges(t *testing.T) {
	sys := newFakeSystem("http://bpm:8080")
	central := &fakeCentral{completed: []connector.CentralTask{
		{CentralID: "c1", ExternalID: "T1", SystemURL: "http://bpm:8080"},
		{CentralID: "c2", ExternalID: "T2", SystemURL: "http://bpm:8080"},
	}}
	led := newTestLedger(t)
	e := newTestEngine(t, central, led, sys)

	report, err := e.PropagateCompletions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Processed)
	assert.ElementsMatch(t, []string{"T1", "T2"}, sys.completedIDs)

	// Both marked completed in the ledger.
	completed, err := led.CompletedIDs(context.Background(), []string{"T1", "T2"})
	require.NoError(t, err)
	assert.True(t, completed["T1"] && completed["T2"])

	// One acknowledgment call moving both to COMPLETE.
	require.Len(t, central.stateCalls, 1)
	assert.ElementsMatch(t, []string{"c1", "c2"}, central.stateCalls[0].ids)
	assert.Equal(t, connector.CallbackStateComplete, central.stateCalls[0].state)
}

func TestPropagateCompletions_AlreadyCompletedSkipped(t *testing.T) {
	sys := newFakeSystem("http://bpm:8080")
	central := &fakeCentral{completed: []connector.CentralTask{
		{CentralID: "c1", ExternalID: "T1", SystemURL: "http://bpm:8080"},
	}}
	led := newTestLedger(t)
	require.NoError(t, led.MarkCompleted(context.Background(), "T1", time.Now()))
	e := newTestEngine(t, central, led, sys)

	report, err := e.PropagateCompletions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, sys.completedIDs, "external complete is never called twice")
}

func TestPropagateCompletions_LedgerWrittenBeforeExternalCall(t *testing.T) {
	sys := newFakeSystem("http://bpm:8080")
	sys.completeErr = errors.New("bpm rejected completion")
	central := &fakeCentral{completed: []connector.CentralTask{
		{CentralID: "c1", ExternalID: "T1", SystemURL: "http://bpm:8080"},
	}}
	led := newTestLedger(t)
	e := newTestEngine(t, central, led, sys)

	report, err := e.PropagateCompletions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	// Ledger-first ordering: the mark exists even though the external call
	// failed. This is the accepted direction of inconsistency.
	completed, err := led.CompletedIDs(context.Background(), []string{"T1"})
	require.NoError(t, err)
	assert.True(t, completed["T1"])

	// No acknowledgment for the failed item.
	assert.Empty(t, central.stateCalls)
}

func TestPropagateCompletions_MissingConnectorIsConfigError(t *testing.T) {
	sys := newFakeSystem("http://bpm:8080")
	central := &fakeCentral{completed: []connector.CentralTask{
		{CentralID: "c1", ExternalID: "T1", SystemURL: "http://unknown:8080"},
		{CentralID: "c2", ExternalID: "T2", SystemURL: "http://bpm:8080"},
	}}
	e := newTestEngine(t, central, newTestLedger(t), sys)

	report, err := e.PropagateCompletions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed, "remaining items still processed")
	require.Len(t, report.Failures, 1)
	assert.Equal(t, ErrCodeConfiguration, report.Failures[0].Code)
	assert.Equal(t, "T1", report.Failures[0].TaskID)
}
