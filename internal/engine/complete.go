package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/taskbridge/internal/connector"
)

// PropagateCompletions pushes completions recorded in the central store out
// to the owning external systems.
//
// Per item the ledger is written BEFORE the external complete call. A crash
// between the two leaves the external task uncompleted while the ledger says
// otherwise, a bounded inconsistency left to reconciliation. The reverse
// order would instead risk double-completion on retry, which is worse:
// external completion is frequently non-idempotent.
func (e *Engine) PropagateCompletions(ctx context.Context) (Report, error) {
	report := Report{Job: "propagate-completions"}
	defer report.log()

	central := e.registry.Central()

	since, err := e.completionWindow(ctx)
	if err != nil {
		return report, err
	}

	candidates, err := central.ListCompletedCandidates(ctx, since)
	if err != nil {
		report.fail(classify(err, "", ""))
		return report, nil
	}

	delta, err := e.dedupCompletions(ctx, candidates)
	if err != nil {
		return report, err
	}
	report.Skipped += len(candidates) - len(delta)

	var acknowledged []string
	for _, task := range delta {
		if err := e.completeOne(ctx, task); err != nil {
			if abortsBatch(err) {
				report.fail(classify(err, task.SystemURL, task.ExternalID))
				return report, err
			}
			report.fail(classify(err, task.SystemURL, task.ExternalID))
			continue
		}
		report.Processed++
		acknowledged = append(acknowledged, task.CentralID)
	}

	if len(acknowledged) > 0 {
		if err := central.SetCallbackState(ctx, acknowledged, connector.CallbackStateComplete); err != nil {
			// Propagation itself succeeded; only the acknowledgment is
			// missing. The ledger keeps these ids out of the next delta.
			report.fail(classify(err, "", ""))
		}
	}
	return report, nil
}

// completeOne propagates a single completion: ledger first, external second.
func (e *Engine) completeOne(ctx context.Context, task connector.CentralTask) error {
	sys, err := e.registry.System(task.SystemURL)
	if err != nil {
		return classify(err, task.SystemURL, task.ExternalID)
	}

	if err := e.ledger.MarkCompleted(ctx, task.ExternalID, e.now()); err != nil {
		return ledgerErr(err, task.SystemURL, task.ExternalID)
	}

	external := connector.ExternalTask{ID: task.ExternalID, SystemURL: task.SystemURL}
	if err := sys.Complete(ctx, external); err != nil {
		// Ledger already claims completion; surfaced for reconciliation
		// rather than retried, to avoid double-completing on a false alarm.
		slog.Error("external completion failed after ledger write",
			"system_url", task.SystemURL,
			"task_id", task.ExternalID,
			"error", err,
		)
		return classify(err, task.SystemURL, task.ExternalID)
	}

	slog.Info("completion propagated",
		"system_url", task.SystemURL,
		"task_id", task.ExternalID,
	)
	return nil
}
