// Package cli implements the halyard command-line interface.
//
// This package uses global variables to manage CLI state, which is the
// standard pattern for Cobra-based CLI applications. The globals are
// initialized in PersistentPreRunE and cleaned up in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/halyard-sh/halyard/internal/config"
	"github.com/halyard-sh/halyard/internal/output"
	halerr "github.com/halyard-sh/halyard/pkg/errors"
)

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *config.Logger
	formatter *output.Formatter
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "halyard",
	Short: "Key custody and policy-gated execution for AI agents",
	Long: `Halyard holds crypto keys on behalf of AI agents and executes
transactions for them under a spending policy. Agents talk to a local
daemon over JSON-RPC and never see private keys; operations above the
policy's auto-approve ceiling wait for a human confirmation.

Example:
  halyard wallet create treasury --words 24
  halyard policy set --max-usd-per-day 500
  halyard serve --socket ~/.halyard/halyard.sock`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initGlobals()
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		if formatter != nil {
			_ = output.FormatError(os.Stderr, err, formatter.Format())
		} else {
			_ = output.FormatError(os.Stderr, err, output.FormatText)
		}
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return halerr.ExitCodeFor(err)
}

// initGlobals initializes global configuration, logger, and formatter.
func initGlobals() error {
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}

	var err error
	cfg, err = config.LoadOrDefaults(config.Path(config.ExpandHome(firstNonEmpty(home, "~/.halyard"))))
	if err != nil {
		return err
	}
	if home != "" {
		cfg.Home = home
	}
	cfg.Home = config.ExpandHome(cfg.Home)

	if verbose {
		cfg.Logging.Level = "debug"
	}

	logLevel := config.ParseLogLevel(cfg.Logging.Level)
	logger, err = config.NewLogger(logLevel, config.ExpandHome(cfg.Logging.File))
	if err != nil {
		// Use the null logger if the log file cannot be created.
		logger = config.NullLogger()
	}

	explicit := output.ParseFormat(outputFormat)
	detected := output.DetectFormat(os.Stdout, explicit)
	formatter = output.NewFormatter(detected, os.Stdout)

	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Close()
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "halyard data directory (default: ~/.halyard)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}
