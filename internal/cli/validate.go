package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/taskbridge/internal/config"
)

// NewValidateCommand creates the validate command: parse the config
// against the schema and report what would be wired, without touching
// the ledger or any remote system.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "validate",
		Short:         "Validate the config file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, cmd)
		},
	}
	return cmd
}

type validateResult struct {
	Central string   `json:"central"`
	Systems []string `json:"systems"`
	Ledger  string   `json:"ledger"`
}

func (r validateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "config ok\ncentral: %s\nledger:  %s\nsystems:", r.Central, r.Ledger)
	for _, s := range r.Systems {
		fmt.Fprintf(&b, "\n  %s", s)
	}
	return b.String()
}

func runValidate(opts *RootOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
		_ = formatter.Error(err.Error())
		return WrapExitError(ExitCommandError, "invalid config", err)
	}

	result := validateResult{Central: cfg.Central.URL, Ledger: cfg.LedgerDSN}
	for _, s := range cfg.Systems {
		result.Systems = append(result.Systems, s.URL)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return formatter.Success(result)
}
