package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/taskloop/taskloop/pkg/config"
	"github.com/taskloop/taskloop/pkg/engine"
	"github.com/taskloop/taskloop/pkg/history"
	"github.com/taskloop/taskloop/pkg/policy"
	"github.com/taskloop/taskloop/pkg/taskdir"
	"github.com/taskloop/taskloop/pkg/telemetry"
	sshtransport "github.com/taskloop/taskloop/pkg/transports/ssh"
)

func newRunCommand() *cobra.Command {
	var (
		times         int
		reportPath    string
		noHistory     bool
		policyDirs    []string
		metricsListen string
		traceExporter string
		traceEndpoint string
		remote        string
		remoteKey     string
		remoteDir     string
	)

	cmd := &cobra.Command{
		Use:   "run <taskdir>",
		Short: "Run a task directory to completion",
		Long: `Discover the executables in a task directory, order them by their
configured dependencies and run them in sequence. Any task exiting
non-zero restarts the sequence after a sleep, until a task's attempt
threshold is reached or a task demands a halt with exit code 2.`,
		Example: `  # Run the tasks until something fails
  taskloop run ./tasks

  # Run a single iteration
  taskloop run -n 1 ./tasks

  # Run five iterations with a config file
  taskloop -c runner.ini run -n 5 ./tasks

  # Stage the directory on a remote host and run the tasks there
  taskloop run --remote deploy@web1 ./tasks`,
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

			ctx := cmd.Context()
			if err := enforcePolicies(ctx, cfg, taskDir, policyDirs); err != nil {
				return err
			}

			metrics, tracer, err := setupTelemetry(metricsListen, traceExporter, traceEndpoint, cmd.Root().Version)
			if err != nil {
				return err
			}
			defer func() {
				if err := tracer.Shutdown(context.Background()); err != nil {
					logger.Warn().Err(err).Msg("Failed to shut down tracer")
				}
			}()

			sinks := engine.MultiSink{telemetry.NewRunSink(ctx, metrics, tracer)}

			if !noHistory {
				store, err := history.NewStore(dbPath)
				if err != nil {
					return err
				}
				if err := store.Init(ctx); err != nil {
					return fmt.Errorf("failed to open history store: %w", err)
				}
				defer store.Close()
				sinks = append(sinks, history.NewSink(ctx, store, telemetry.ComponentLogger(logger, "history")))
			}

			runCfg := cfg.RunConfig(taskDir)
			sup, cleanup, err := buildSupervisor(&runCfg, taskDir, remote, remoteKey, remoteDir)
			if err != nil {
				return err
			}
			defer cleanup()

			source := taskdir.NewSource(taskDir, cfg.Settings().HaltTask, cfg)
			driver := engine.NewDriver(runCfg, source, cfg, cfg, sup, sinks, logger)

			report, runErr := driver.Run(ctx, times)
			if reportPath != "" && report != nil {
				if err := writeReport(reportPath, report); err != nil {
					logger.Error().Err(err).Str("path", reportPath).Msg("Failed to write run report")
				}
			}
			return runErr
		},
	}

	cmd.Flags().IntVarP(&times, "times", "n", 0, "number of iterations, 0 to loop until a failure")
	cmd.Flags().StringVar(&reportPath, "report", "", "write a YAML run report to this path")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "skip recording the run in the history database")
	cmd.Flags().StringSliceVar(&policyDirs, "policy-dir", nil, "additional policy files or directories (.rego)")
	cmd.Flags().StringVar(&metricsListen, "metrics-listen", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "none", "trace exporter (otlp, stdout, none)")
	cmd.Flags().StringVar(&traceEndpoint, "trace-endpoint", "localhost:4317", "OTLP trace endpoint")
	cmd.Flags().StringVar(&remote, "remote", "", "run tasks on a remote host (user@host)")
	cmd.Flags().StringVar(&remoteKey, "remote-key", "", "private key for the remote connection")
	cmd.Flags().StringVar(&remoteDir, "remote-dir", "/tmp/taskloop", "remote directory to stage tasks in")

	return cmd
}

// enforcePolicies evaluates the builtin policies, plus any user-supplied
// ones, against the effective settings and the discovered tasks. Error
// severity violations abort the run before anything is spawned.
func enforcePolicies(ctx context.Context, cfg *config.Config, taskDir string, policyDirs []string) error {
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
	return nil
}

func buildPolicyInput(cfg *config.Config, taskDir string) (*policy.Input, error) {
	settings := cfg.Settings()
	source := taskdir.NewSource(taskDir, settings.HaltTask, cfg)
	tasks, err := source.Tasks()
	if err != nil {
		return nil, err
	}

	input := &policy.Input{
		Settings: policy.TaskInput{
			MaxTime:     settings.MaxTime,
			MaxTries:    settings.MaxTries,
			SleepTime:   settings.SleepTime,
			Interpreter: settings.Interpreter,
		},
		HaltTask: settings.HaltTask,
	}
	for _, task := range tasks {
		ts := cfg.TaskSettings(task.Name)
		input.Tasks = append(input.Tasks, policy.TaskInput{
			Name:        task.Name,
			DependsOn:   task.Deps,
			MaxTime:     ts.MaxTime,
			MaxTries:    ts.MaxTries,
			SleepTime:   ts.SleepTime,
			Interpreter: ts.Interpreter,
		})
	}
	return input, nil
}

func setupTelemetry(metricsListen, traceExporter, traceEndpoint, version string) (*telemetry.Metrics, *telemetry.Tracer, error) {
	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	if metricsListen != "" {
		tcfg.Metrics.Enabled = true
		tcfg.Metrics.ListenAddress = metricsListen
	}
	if traceExporter != "none" {
		tcfg.Tracing.Enabled = true
		tcfg.Tracing.Exporter = traceExporter
		tcfg.Tracing.Endpoint = traceEndpoint
	}
	if err := tcfg.Validate(); err != nil {
		return nil, nil, err
	}

	metrics, err := telemetry.NewMetrics(tcfg.Metrics)
	if err != nil {
		return nil, nil, err
	}
	if tcfg.Metrics.Enabled {
		metrics.StartServer(logger)
	}

	tracer, err := telemetry.NewTracer(tcfg.Tracing, tcfg.ServiceName, tcfg.ServiceVersion)
	if err != nil {
		return nil, nil, err
	}
	return metrics, tracer, nil
}

// buildSupervisor returns the local supervisor, or a remote one when
// --remote was given. Remote runs stage the task directory over SFTP and
// rewrite the run's task directory to the staged path.
func buildSupervisor(runCfg *engine.RunConfig, taskDir, remote, remoteKey, remoteDir string) (engine.Supervisor, func(), error) {
	if remote == "" {
		return engine.NewLocalSupervisor(telemetry.ComponentLogger(logger, "supervisor")), func() {}, nil
	}

	user, host, ok := strings.Cut(remote, "@")
	if !ok {
		return nil, nil, fmt.Errorf("invalid remote %q, expected user@host", remote)
	}

	sshCfg := sshtransport.DefaultConfig(host, user)
	if remoteKey != "" {
		sshCfg.PrivateKeyPath = remoteKey
	}
	sup, err := sshtransport.NewSupervisor(sshCfg, telemetry.ComponentLogger(logger, "ssh"))
	if err != nil {
		return nil, nil, err
	}
	if err := sup.Connect(); err != nil {
		return nil, nil, err
	}
	if err := sup.UploadDir(taskDir, remoteDir); err != nil {
		sup.Close()
		return nil, nil, fmt.Errorf("failed to stage tasks on %s: %w", host, err)
	}
	runCfg.TaskDir = remoteDir

	cleanup := func() {
		if err := sup.Close(); err != nil {
			logger.Warn().Err(err).Msg("Failed to close remote connection")
		}
	}
	return sup, cleanup, nil
}

func writeReport(path string, report *engine.RunReport) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
