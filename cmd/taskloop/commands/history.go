package commands

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/pkg/history"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit int
		runID string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List recent runs from the history database, newest first. With --run,
show the individual task results of one run instead.`,
		Example: `  # Last ten runs
  taskloop history

  # Task results of one run
  taskloop history --run 6f1c2a8e-...`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.NewStore(dbPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := store.Init(ctx); err != nil {
				return fmt.Errorf("failed to open history store: %w", err)
			}
			defer store.Close()

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			defer w.Flush()

			if runID != "" {
				results, err := store.TaskResults(ctx, runID)
				if err != nil {
					return err
				}
				fmt.Fprintln(w, "ITERATION\tTRY\tTASK\tOUTCOME\tDURATION")
				for _, r := range results {
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n",
						r.Iteration, r.Try, r.Task, r.Outcome, r.Duration.Round(time.Millisecond))
				}
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(w, "ID\tTASKDIR\tSTATUS\tSTARTED\tDURATION")
			for _, r := range runs {
				duration := "-"
				if r.FinishedAt != nil {
					duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.TaskDir, r.Status, r.StartedAt.Format(time.RFC3339), duration)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "show the task results of this run")

	return cmd
}
