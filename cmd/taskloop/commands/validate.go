package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskloop/taskloop/pkg/engine"
	"github.com/taskloop/taskloop/pkg/policy"
	"github.com/taskloop/taskloop/pkg/taskdir"
	"github.com/taskloop/taskloop/pkg/telemetry"
)

func newValidateCommand() *cobra.Command {
	var (
		policyDirs []string
		watch      bool
	)

	cmd := &cobra.Command{
		Use:   "validate <taskdir>",
		Short: "Validate configuration, task order and policies without running anything",
		Long: `Load the configuration, discover the tasks, resolve their order and
evaluate the policies, reporting every problem found. Nothing is spawned.`,
		Example: `  # Check a task directory against the default config
  taskloop validate ./tasks

  # Re-validate whenever a policy file changes
  taskloop validate --policy-dir ./policies --watch ./tasks`,
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
			order, err := engine.ResolveOrder(tasks)
			if err != nil {
				return err
			}
			logger.Info().Strs("order", order).Int("tasks", len(tasks)).Msg("Task order resolved")

			ctx := cmd.Context()
			eng, err := policy.NewEngine(telemetry.ComponentLogger(logger, "policy"))
			if err != nil {
				return err
			}
			if len(policyDirs) > 0 {
				if err := eng.LoadPolicies(ctx, policyDirs); err != nil {
					return err
				}
			}

			input, err := buildPolicyInput(cfg, taskDir)
			if err != nil {
				return err
			}

			evaluate := func() error {
				result, err := eng.Evaluate(ctx, input)
				if err != nil {
					return err
				}
				for _, w := range result.Warnings {
					logger.Warn().Msg(w)
				}
				for _, v := range result.Violations {
					logger.Error().
						Str("policy", v.Policy).
						Str("severity", v.Severity).
						Str("task", v.Task).
						Msg(v.Message)
				}
				if !result.Allowed {
					return fmt.Errorf("%d policy violation(s)", len(result.Violations))
				}
				logger.Info().Int("policies", len(eng.ListPolicies())).Msg("Validation passed")
				return nil
			}

			if !watch {
				return evaluate()
			}
			if len(policyDirs) == 0 {
				return fmt.Errorf("--watch requires at least one --policy-dir")
			}

			loader := policy.NewLoader(telemetry.ComponentLogger(logger, "policy"))
			err = loader.Watch(ctx, policyDirs, func(policies []policy.Policy) error {
				if err := eng.Replace(ctx, policies); err != nil {
					return err
				}
				if err := evaluate(); err != nil {
					logger.Error().Err(err).Msg("Validation failed")
				}
				return nil
			})
			if err != nil {
				return err
			}
			if err := evaluate(); err != nil {
				logger.Error().Err(err).Msg("Validation failed")
			}

			logger.Info().Strs("paths", policyDirs).Msg("Watching policy paths, press Ctrl-C to stop")
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&policyDirs, "policy-dir", nil, "additional policy files or directories (.rego)")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-validate whenever a policy file changes")

	return cmd
}
