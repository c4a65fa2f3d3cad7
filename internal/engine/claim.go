package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/taskbridge/internal/connector"
)

// PropagateClaims mirrors claims made in the central store into the owning
// external systems, then acknowledges the propagated ones by moving their
// callback state to ClaimedAcknowledged.
//
// A task whose claim fails stays in state Claimed and is re-listed next
// cycle; a task whose system URL no connector serves is a configuration
// failure, surfaced per item. Neither stops the rest of the batch.
func (e *Engine) PropagateClaims(ctx context.Context) (Report, error) {
	report := Report{Job: "propagate-claims"}
	defer report.log()

	central := e.registry.Central()

	candidates, err := central.ListClaimedCandidates(ctx)
	if err != nil {
		report.fail(classify(err, "", ""))
		return report, nil
	}

	var acknowledged []string
	for _, task := range candidates {
		if err := e.claimOne(ctx, task); err != nil {
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
		if err := central.SetCallbackState(ctx, acknowledged, connector.CallbackStateClaimedAcknowledged); err != nil {
			// The claims stand in the external systems; unacknowledged tasks
			// are re-listed and re-claimed next cycle, which the external
			// claim operation tolerates for an unchanged assignee.
			report.fail(classify(err, "", ""))
		}
	}
	return report, nil
}

// claimOne claims a single task in its external system and stamps the
// claim time onto the ledger row.
func (e *Engine) claimOne(ctx context.Context, task connector.CentralTask) error {
	sys, err := e.registry.System(task.SystemURL)
	if err != nil {
		return classify(err, task.SystemURL, task.ExternalID)
	}

	external := connector.ExternalTask{
		ID:        task.ExternalID,
		SystemURL: task.SystemURL,
		Assignee:  task.Assignee,
	}
	if err := sys.Claim(ctx, external); err != nil {
		return classify(err, task.SystemURL, task.ExternalID)
	}

	if err := e.ledger.MarkClaimed(ctx, task.SystemURL, task.ExternalID, e.now()); err != nil {
		return ledgerErr(err, task.SystemURL, task.ExternalID)
	}

	slog.Info("claim propagated",
		"system_url", task.SystemURL,
		"task_id", task.ExternalID,
		"assignee", task.Assignee,
	)
	return nil
}
