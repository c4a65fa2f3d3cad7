package engine

import (
	"context"

	"github.com/roach88/taskbridge/internal/connector"
)

// dedupCreations filters candidates down to those without a created_tasks
// row for the system. Duplicate ids within the input collapse to one
// occurrence. Pure query; no side effects.
func (e *Engine) dedupCreations(ctx context.Context, systemURL string, candidates []connector.ExternalTask) ([]connector.ExternalTask, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := collectIDs(len(candidates), func(i int) string { return candidates[i].ID })

	existing, err := e.ledger.ExistingIDs(ctx, systemURL, ids)
	if err != nil {
		return nil, ledgerErr(err, systemURL, "")
	}

	seen := make(map[string]bool, len(candidates))
	delta := make([]connector.ExternalTask, 0, len(candidates))
	for _, c := range candidates {
		if existing[c.ID] || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		delta = append(delta, c)
	}
	return delta, nil
}

// dedupCompletions filters completion candidates down to those not yet
// marked completed in the ledger. Symmetric to dedupCreations but keyed on
// completion records rather than creation ids.
func (e *Engine) dedupCompletions(ctx context.Context, candidates []connector.CentralTask) ([]connector.CentralTask, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	ids := collectIDs(len(candidates), func(i int) string { return candidates[i].ExternalID })

	completed, err := e.ledger.CompletedIDs(ctx, ids)
	if err != nil {
		return nil, ledgerErr(err, "", "")
	}

	seen := make(map[string]bool, len(candidates))
	delta := make([]connector.CentralTask, 0, len(candidates))
	for _, c := range candidates {
		if completed[c.ExternalID] || seen[c.ExternalID] {
			continue
		}
		seen[c.ExternalID] = true
		delta = append(delta, c)
	}
	return delta, nil
}

func collectIDs(n int, id func(i int) string) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, id(i))
	}
	return ids
}
