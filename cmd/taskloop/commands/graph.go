package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/pkg/engine"
	"github.com/taskloop/taskloop/pkg/taskdir"
)

func newGraphCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <taskdir>",
		Short: "Print the task dependency graph in DOT format",
		Example: `  # Render the graph with graphviz
  taskloop graph ./tasks | dot -Tsvg -o tasks.svg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskDir := args[0]
			if !taskdir.Exists(taskDir) {
				return fmt.Errorf("task directory %s does not exist", taskDir)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			source := taskdir.NewSource(taskDir, cfg.Settings().HaltTask, cfg)
			tasks, err := source.Tasks()
			if err != nil {
				return err
			}
			// A cycle or an unknown dependency is still worth surfacing
			// here, even though the DOT output does not need an order.
			if _, err := engine.ResolveOrder(tasks); err != nil {
				logger.Warn().Err(err).Msg("Graph is not runnable")
			}

			fmt.Print(engine.GraphDOT(tasks))
			return nil
		},
	}

	return cmd
}
