package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/taskbridge/internal/engine"
)

// jobOrder is the fixed execution order for one-shot cycles. Creation
// runs first so claims and completions can see tasks created in the
// same invocation.
var jobOrder = []string{"create", "claim", "complete", "purge"}

// NewSyncCommand creates the sync command: one synchronization cycle
// and exit. Useful for cron-style deployments and smoke testing.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	var jobs []string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization cycle and exit",
		Long: `Run the selected jobs once, in order: create, claim, complete, purge.
By default only create, claim and complete run; purge must be asked for.

Example:
  taskbridge sync --config ./bridge.cue
  taskbridge sync -c ./bridge.cue --jobs create
  taskbridge sync -c ./bridge.cue --jobs create,claim,complete,purge`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(rootOpts, jobs, cmd)
		},
	}
	cmd.Flags().StringSliceVar(&jobs, "jobs", []string{"create", "claim", "complete"}, "jobs to run")
	return cmd
}

// cycleResult is the output payload of one sync invocation.
type cycleResult struct {
	Reports []engine.Report `json:"reports"`
	Failed  int             `json:"failed"`
}

func (r cycleResult) String() string {
	var b strings.Builder
	for _, rep := range r.Reports {
		fmt.Fprintf(&b, "%-10s processed=%d skipped=%d failed=%d\n",
			rep.Job, rep.Processed, rep.Skipped, rep.Failed)
	}
	fmt.Fprintf(&b, "total failures: %d", r.Failed)
	return b.String()
}

func runSync(opts *RootOptions, jobs []string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	selected := make(map[string]bool, len(jobs))
	for _, j := range jobs {
		j = strings.ToLower(strings.TrimSpace(j))
		found := false
		for _, known := range jobOrder {
			if j == known {
				found = true
				break
			}
		}
		if !found {
			return WrapExitError(ExitCommandError, fmt.Sprintf("unknown job %q", j), nil)
		}
		selected[j] = true
	}

	_, led, eng, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := led.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()

	bodies := map[string]func(context.Context) (engine.Report, error){
		"create":   eng.CreateCentralTasks,
		"claim":    eng.PropagateClaims,
		"complete": eng.PropagateCompletions,
		"purge":    eng.Purge,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	var result cycleResult
	for _, name := range jobOrder {
		if !selected[name] {
			continue
		}
		report, runErr := bodies[name](ctx)
		result.Reports = append(result.Reports, report)
		result.Failed += report.Failed
		if runErr != nil {
			formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
			_ = formatter.Error(fmt.Sprintf("job %s aborted: %v", name, runErr))
			return WrapExitError(ExitFailure, fmt.Sprintf("job %s aborted", name), runErr)
		}
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := formatter.Success(result); err != nil {
		return err
	}
	if result.Failed > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d item(s) failed to sync", result.Failed), nil)
	}
	return nil
}
