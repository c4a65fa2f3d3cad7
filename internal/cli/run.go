package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/taskbridge/internal/scheduler"
)

// NewRunCommand creates the run command: the long-running daemon that
// fires all four sync jobs on their configured intervals.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the synchronization daemon",
		Long: `Run the bridge daemon. Tasks appearing in the configured external
systems are mirrored into the central task service; claims and
completions in the central service are propagated back. Jobs fire on
independent timers until the process receives SIGINT or SIGTERM.

Example:
  taskbridge run --config /etc/taskbridge/bridge.cue
  taskbridge run -c ./bridge.cue --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(rootOpts, cmd)
		},
	}
	return cmd
}

func runDaemon(opts *RootOptions, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	cfg, led, eng, err := bootstrap(opts)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := led.Close(); closeErr != nil {
			slog.Error("error closing ledger", "error", closeErr)
		}
	}()
	slog.Info("bridge ready",
		"systems", len(cfg.Systems),
		"central", cfg.Central.URL,
		"ledger", cfg.LedgerDSN)

	sched := scheduler.New(
		scheduler.NewJob("create", cfg.Jobs.Create, eng.CreateCentralTasks),
		scheduler.NewJob("claim", cfg.Jobs.Claim, eng.PropagateClaims),
		scheduler.NewJob("complete", cfg.Jobs.Complete, eng.PropagateCompletions),
		scheduler.NewJob("purge", cfg.Jobs.Purge, eng.Purge),
	)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Bridge started. Press Ctrl-C to stop.")

	if err := sched.Run(ctx); err != nil && err != context.Canceled && err != context.DeadlineExceeded {
		return WrapExitError(ExitFailure, "scheduler error", err)
	}

	slog.Info("bridge stopped gracefully")
	return nil
}
