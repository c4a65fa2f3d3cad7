package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/taskbridge/internal/connector"
)

func TestDedupCreations_ExactSetDifference(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, led.RegisterCreated(ctx, "http://bpm:8080", "A", "c1", time.Now()))
	require.NoError(t, led.RegisterCreated(ctx, "http://bpm:8080", "C", "c2", time.Now()))

	central := &fakeCentral{}
	e := newTestEngine(t, central, led)

	candidates := []connector.ExternalTask{{ID: "A"}, {ID: "B"}, {ID: "C"}, {ID: "D"}}
	delta, err := e.dedupCreations(ctx, "http://bpm:8080", candidates)
	require.NoError(t, err)

	ids := make([]string, 0, len(delta))
	for _, d := range delta {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"B", "D"}, ids, "exactly the non-ledgered ids, input order preserved")
}

func TestDedupCreations_Idempotent(t *testing.T) {
	led := newTestLedger(t)
	central := &fakeCentral{}
	e := newTestEngine(t, central, led)
	ctx := context.Background()

	candidates := []connector.ExternalTask{{ID: "A"}, {ID: "B"}}
	first, err := e.dedupCreations(ctx, "http://bpm:8080", candidates)
	require.NoError(t, err)
	second, err := e.dedupCreations(ctx, "http://bpm:8080", candidates)
	require.NoError(t, err)
	assert.Equal(t, first, second, "unchanged ledger state gives identical deltas")
}

func TestDedupCreations_EmptyInput(t *testing.T) {
	e := newTestEngine(t, &fakeCentral{}, newTestLedger(t))

	delta, err := e.dedupCreations(context.Background(), "http://bpm:8080", nil)
	require.NoError(t, err)
	assert.Empty(t, delta)
}

func TestDedupCompletions_UsesCompletionRecords(t *testing.T) {
	led := newTestLedger(t)
	ctx := context.Background()
	require.NoError(t, led.MarkCompleted(ctx, "T1", time.Now()))

	// A creation row for T2 must NOT hide it from completion dedup; the two
	// directions are keyed on different ledger series.
	require.NoError(t, led.RegisterCreated(ctx, "http://bpm:8080", "T2", "c2", time.Now()))

	e := newTestEngine(t, &fakeCentral{}, led)
	candidates := []connector.CentralTask{
		{CentralID: "c1", ExternalID: "T1"},
		{CentralID: "c2", ExternalID: "T2"},
	}
	delta, err := e.dedupCompletions(ctx, candidates)
	require.NoError(t, err)
	require.Len(t, delta, 1)
	assert.Equal(t, "T2", delta[0].ExternalID)
}
