package engine

import (
	"context"
	"log/slog"
)

// Purge removes ledger rows older than the configured retention age.
// Maintenance only: retention never affects the correctness of the sync,
// as long as it trails far behind the poll window.
func (e *Engine) Purge(ctx context.Context) (Report, error) {
	report := Report{Job: "purge-ledger"}
	defer report.log()

	cutoff := e.now().Add(-e.retentionAge)
	removed, err := e.ledger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return report, ledgerErr(err, "", "")
	}
	report.Processed = int(removed)

	slog.Info("ledger purged", "cutoff", cutoff, "rows_removed", removed)
	return report, nil
}
