package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/taskbridge/internal/connector"
)

// lowerBound computes the poll window's lower bound from the last recorded
// watermark. An absent watermark means the system has never been polled and
// the window opens at the beginning of time.
//
// The slack overlap is intentional: a task that became visible mid-poll but
// was not yet ledgered when the watermark was recorded must be re-offered.
// Re-offering is safe only because dedup removes anything already ledgered.
func (e *Engine) lowerBound(watermark time.Time, ok bool) time.Time {
	if !ok {
		return time.Time{}
	}
	return watermark.Add(-e.slack)
}

// pollCandidates runs one windowed poll against a system connector and, on
// success, advances the watermark to the poll's issue time.
//
// The watermark is stamped with the time the poll was issued, not the time
// results arrived or processing finished. That keeps the next cycle's
// re-offer window bounded by the slack alone, no matter how long this
// cycle's delta takes to process.
func (e *Engine) pollCandidates(ctx context.Context, sys connector.SystemConnector) ([]connector.ExternalTask, error) {
	systemURL := sys.SystemURL()

	watermark, ok, err := e.ledger.LatestPoll(ctx, systemURL)
	if err != nil {
		return nil, ledgerErr(err, systemURL, "")
	}
	lower := e.lowerBound(watermark, ok)

	issuedAt := e.now()
	candidates, err := sys.ListCandidateTasks(ctx, lower)
	if err != nil {
		// Watermark stays put; the next cycle retries the same window.
		return nil, classify(err, systemURL, "")
	}
	slog.Debug("candidates retrieved",
		"system_url", systemURL,
		"since", lower,
		"count", len(candidates),
	)

	if err := e.ledger.RecordPoll(ctx, systemURL, issuedAt); err != nil {
		return nil, ledgerErr(err, systemURL, "")
	}
	return candidates, nil
}

// completionWindow computes the lower bound for polling completed central
// tasks: the newest propagated completion minus slack, or a fixed lookback
// when nothing has ever been propagated.
func (e *Engine) completionWindow(ctx context.Context) (time.Time, error) {
	latest, ok, err := e.ledger.LatestCompletion(ctx)
	if err != nil {
		return time.Time{}, ledgerErr(err, "", "")
	}
	if !ok {
		return e.now().Add(-e.completionLookback), nil
	}
	return latest.Add(-e.slack), nil
}
