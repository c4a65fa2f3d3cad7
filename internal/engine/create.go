package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/taskbridge/internal/connector"
)

// CreateCentralTasks runs one creation cycle: for every registered external
// system, poll candidates since the watermark window, drop already-ledgered
// ids, and mirror the remainder into the central store.
//
// A connector whose list call fails is skipped for this cycle (its watermark
// does not advance); the other connectors still run. Per-item conversion and
// creation failures are folded into the report. Only a ledger failure aborts
// the cycle, because without a working ledger continued creation could no
// longer be deduplicated.
func (e *Engine) CreateCentralTasks(ctx context.Context) (Report, error) {
	report := Report{Job: "create-central-tasks"}
	defer report.log()

	central := e.registry.Central()
	for _, systemURL := range e.systemURLs() {
		sys, err := e.registry.System(systemURL)
		if err != nil {
			report.fail(classify(err, systemURL, ""))
			continue
		}

		candidates, err := e.pollCandidates(ctx, sys)
		if err != nil {
			if abortsBatch(err) {
				return report, err
			}
			report.fail(classify(err, systemURL, ""))
			continue
		}

		delta, err := e.dedupCreations(ctx, systemURL, candidates)
		if err != nil {
			return report, err
		}
		report.Skipped += len(candidates) - len(delta)

		for _, task := range delta {
			if err := e.createOne(ctx, task, sys, central); err != nil {
				if abortsBatch(err) {
					report.fail(classify(err, systemURL, task.ID))
					return report, err
				}
				report.fail(classify(err, systemURL, task.ID))
				continue
			}
			report.Processed++
		}
	}
	return report, nil
}

// createOne mirrors a single external task into the central store:
// enrich with variables, convert, create, then register the ledger row.
//
// The ledger write happens strictly after creation succeeds. A crash between
// the two leaves a central task without a ledger row; the next poll then
// re-offers the external id and a duplicate central task can result. This is
// the one accepted inconsistency window; the central store offers no
// idempotent creation to close it.
func (e *Engine) createOne(ctx context.Context, task connector.ExternalTask, sys connector.SystemConnector, central connector.CentralConnector) error {
	task.SystemURL = sys.SystemURL()

	if task.Variables == "" {
		variables, err := sys.FetchVariables(ctx, task.ID)
		if err != nil {
			return classify(err, task.SystemURL, task.ID)
		}
		task.Variables = variables
	}

	req, err := central.Convert(task)
	if err != nil {
		return classify(err, task.SystemURL, task.ID)
	}

	centralID, err := central.Create(ctx, req)
	if err != nil {
		return classify(err, task.SystemURL, task.ID)
	}

	if err := e.ledger.RegisterCreated(ctx, task.SystemURL, task.ID, centralID, e.now()); err != nil {
		// The central task now exists unledgered; the id will be re-offered
		// next cycle. Surfaced loudly rather than swallowed.
		slog.Error("central task created but ledger write failed; id will be re-offered",
			"system_url", task.SystemURL,
			"task_id", task.ID,
			"central_id", centralID,
			"error", err,
		)
		return ledgerErr(err, task.SystemURL, task.ID)
	}

	slog.Info("central task created",
		"system_url", task.SystemURL,
		"task_id", task.ID,
		"central_id", centralID,
	)
	return nil
}
