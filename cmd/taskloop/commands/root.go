package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/pkg/config"
	"github.com/taskloop/taskloop/pkg/telemetry"
)

var (
	// Global flags
	configPath string
	quiet      bool
	verbose    bool
	dbPath     string

	// logger is shared by all commands; configured in the persistent
	// pre-run once the verbosity flags are known.
	logger zerolog.Logger
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "taskloop",
		Short: "taskloop - looping task orchestrator",
		Long: `taskloop runs a directory of executable tasks in dependency order,
retrying the whole sequence until every task succeeds or a failure
threshold is reached.

Tasks signal their verdict through exit codes:
  0   success, the run proceeds
  2   halt, the run stops immediately
  *   transient failure, the sequence restarts after a sleep`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setupLogger()
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (INI)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "only log warnings and errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "taskloop.db", "run history database path")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newGetCommand())
	rootCmd.AddCommand(newGraphCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}

func setupLogger() error {
	level := "info"
	switch {
	case quiet:
		level = "warn"
	case verbose:
		level = "debug"
	}

	log, err := telemetry.NewLogger(telemetry.LoggingConfig{
		Level:  level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return err
	}
	logger = log
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
