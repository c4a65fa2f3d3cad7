package cli

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/taskbridge/internal/config"
	"github.com/roach88/taskbridge/internal/ledger"
)

// NewPurgeCommand creates the purge command: a one-shot retention pass
// over the ledger. The daemon runs the same pass on a timer; this
// command exists for manual cleanup and for deployments that prefer
// cron over the built-in schedule.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove ledger rows past the retention age",
		Long: `Delete created, completed and watermark rows older than the retention
age. Defaults to the configured retention.age; --older-than overrides it.

Example:
  taskbridge purge -c ./bridge.cue
  taskbridge purge -c ./bridge.cue --older-than 168h`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPurge(rootOpts, olderThan, cmd)
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "override the configured retention age")
	return cmd
}

type purgeResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Removed int64     `json:"removed"`
}

func (r purgeResult) String() string {
	return fmt.Sprintf("removed %d row(s) older than %s", r.Removed, r.Cutoff.UTC().Format(time.RFC3339))
}

func runPurge(opts *RootOptions, olderThan time.Duration, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if olderThan < 0 {
		return WrapExitError(ExitCommandError, "--older-than must be positive", nil)
	}
	age := cfg.RetentionAge
	if olderThan > 0 {
		age = olderThan
	}

	led, err := ledger.Open(cfg.LedgerDSN)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open ledger", err)
	}
	defer func() {
		if closeErr := led.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	cutoff := time.Now().Add(-age)
	removed, err := led.PurgeBefore(cmd.Context(), cutoff)
	if err != nil {
		return WrapExitError(ExitFailure, "purging ledger", err)
	}
	slog.Info("ledger purged", "cutoff", cutoff, "removed", removed)

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(purgeResult{Cutoff: cutoff, Removed: removed})
}
