package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <section.option>",
		Short: "Print a single configuration value",
		Long: `Look up one option from the configuration file and print its value.
A bare option name is looked up in the [runner] section.`,
		Example: `  # Global setting
  taskloop -c runner.ini get max_tries

  # Per-task setting
  taskloop -c runner.ini get build.depends_on`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			value, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}

	return cmd
}
