package cli

import (
	"log/slog"
	"os"

	"github.com/roach88/taskbridge/internal/config"
	"github.com/roach88/taskbridge/internal/connector"
	"github.com/roach88/taskbridge/internal/connector/bpmhttp"
	"github.com/roach88/taskbridge/internal/connector/centralhttp"
	"github.com/roach88/taskbridge/internal/engine"
	"github.com/roach88/taskbridge/internal/ledger"
)

// setupLogging installs the process-wide text handler. Verbose switches
// on debug-level records.
func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// registerProviders contributes one central provider and one system
// provider covering all configured endpoints. Previously registered
// providers are cleared first so repeated bootstraps stay idempotent.
func registerProviders(cfg *config.Config) {
	connector.ResetProviders()
	connector.RegisterCentralProvider(centralhttp.Provider(centralhttp.Options{
		URL:        cfg.Central.URL,
		Token:      cfg.Central.Token,
		Timeout:    cfg.Central.Timeout,
		Workbasket: cfg.Central.Workbasket,
		Classifier: cfg.Central.Classifier,
	}))

	sysOpts := make([]bpmhttp.Options, 0, len(cfg.Systems))
	for _, s := range cfg.Systems {
		sysOpts = append(sysOpts, bpmhttp.Options{
			URL:     s.URL,
			Token:   s.Token,
			Timeout: s.Timeout,
		})
	}
	connector.RegisterSystemProvider(bpmhttp.Provider(sysOpts...))
}

// bootstrap loads config, opens the ledger and discovers connectors.
// Every command that touches live systems goes through here.
func bootstrap(opts *RootOptions) (*config.Config, ledger.Ledger, *engine.Engine, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	led, err := ledger.Open(cfg.LedgerDSN)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to open ledger", err)
	}

	registerProviders(cfg)
	reg, err := connector.Discover()
	if err != nil {
		_ = led.Close()
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to discover connectors", err)
	}

	eng := engine.New(reg, led,
		engine.WithTransactionSlack(cfg.TransactionSlack),
		engine.WithCompletionLookback(cfg.CompletionLookback),
		engine.WithRetentionAge(cfg.RetentionAge),
	)
	return cfg, led, eng, nil
}
