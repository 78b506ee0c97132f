package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/radlabel/internal/config"
	"github.com/jackzampolin/radlabel/internal/home"
	"github.com/jackzampolin/radlabel/internal/output"
	"github.com/jackzampolin/radlabel/version"
)

var (
	cfgFile      string
	homeDir      string
	verbose      bool
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "radlabel",
	Short: "Label free-text radiology reports with an LLM",
	Long: `radlabel reads free-text chest radiology reports and assigns each of the
14 CheXpert findings one of Yes, No, Maybe or Undefined by prompting a
hosted language model.

Two prompting protocols are available:
  - single:    one call per report returns all 14 labels
  - two-stage: one call detects which findings are mentioned, then one
               call per mentioned finding decides its presence

Results are written incrementally as a JSON list so an interrupted run can
be resumed.`,
	Version:      version.GitRelease,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.radlabel/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "radlabel home directory (default: ~/.radlabel)",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose, "verbose", "v", false, "enable debug logging",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "format", "f", "yaml", "output format: yaml or json",
	)

	rootCmd.AddCommand(labelCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(findingsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(versionCmd)
}

// newLogger builds the stderr logger; --verbose switches to debug level.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// newPrinter returns a printer for the --format flag writing to the command's stdout.
func newPrinter(cmd *cobra.Command) (*output.Printer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewPrinter(cmd.OutOrStdout(), format), nil
}

// loadConfig resolves the home directory and loads configuration, searching
// the home directory after the working directory.
func loadConfig(logger *slog.Logger) (*home.Dir, *config.Manager, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, err
	}
	mgr, err := config.NewManager(cfgFile, h.Path())
	if err != nil {
		return nil, nil, err
	}
	mgr.SetLogger(logger)
	if used := mgr.ConfigFileUsed(); used != "" {
		logger.Debug("loaded config", "file", used)
	}
	return h, mgr, nil
}
