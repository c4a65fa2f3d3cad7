package cli

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/taskbridge/internal/config"
	"github.com/roach88/taskbridge/internal/ledger"
)

// NewStatusCommand creates the status command: ledger statistics and
// per-system watermarks. Touches only the ledger, never the connectors,
// so it works while the daemon is down or the peers are unreachable.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "status",
		Short:         "Show ledger statistics and polling watermarks",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

type watermarkView struct {
	SystemURL string    `json:"system_url"`
	PolledAt  time.Time `json:"polled_at"`
}

type statusResult struct {
	Stats      ledger.Stats    `json:"stats"`
	Watermarks []watermarkView `json:"watermarks"`
}

func (r statusResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "created:   %d\n", r.Stats.CreatedTasks)
	fmt.Fprintf(&b, "claimed:   %d\n", r.Stats.ClaimedTasks)
	fmt.Fprintf(&b, "completed: %d\n", r.Stats.CompletedTasks)
	if len(r.Watermarks) == 0 {
		b.WriteString("no systems polled yet")
		return b.String()
	}
	b.WriteString("watermarks:")
	for _, w := range r.Watermarks {
		fmt.Fprintf(&b, "\n  %s  %s", w.SystemURL, w.PolledAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
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

	ctx := cmd.Context()
	stats, err := led.Stats(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "reading ledger stats", err)
	}
	watermarks, err := led.Watermarks(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "reading watermarks", err)
	}

	result := statusResult{Stats: stats}
	for _, w := range watermarks {
		result.Watermarks = append(result.Watermarks, watermarkView{
			SystemURL: w.SystemURL,
			PolledAt:  w.PolledAt,
		})
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(result)
}
