package engine

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Engine executes one iteration: up to the global max_tries passes over the
// resolved order, restarting the whole order after a below-threshold RETRY.
//
// State carried across a pass is deliberately small: the run-wide attempt
// counter (owned by Execute), the resolved order, and the settings resolver.
// Nothing survives a restart except the counter.
type Engine struct {
	cfg      RunConfig
	order    []string
	settings SettingsResolver
	env      []string
	sup      Supervisor
	sink     EventSink
	log      zerolog.Logger

	runID     string
	iteration int

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewEngine creates an engine for one iteration over the given order.
func NewEngine(cfg RunConfig, order []string, settings SettingsResolver, env []string, sup Supervisor, sink EventSink, log zerolog.Logger) *Engine {
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		cfg:      cfg,
		order:    order,
		settings: settings,
		env:      env,
		sup:      sup,
		sink:     sink,
		log:      log,
		sleep:    time.Sleep,
	}
}

// setRunContext stamps published events with the driver's run identity.
func (e *Engine) setRunContext(runID string, iteration int) {
	e.runID = runID
	e.iteration = iteration
}

// Execute runs passes until one succeeds, one fails, or the global try
// budget is exhausted. It returns true when every task of a pass returned
// OK. A non-nil error means the environment is broken (spawn failure or
// cancellation), not that a task failed.
func (e *Engine) Execute(ctx context.Context) (bool, error) {
	for try := 1; try <= e.cfg.MaxTries; try++ {
		e.publish(Event{Type: EventPassStarted, Try: try, MaxTries: e.cfg.MaxTries})

		start := time.Now()
		status, err := e.runPass(ctx, try)
		if err != nil {
			return false, err
		}
		e.publish(Event{Type: EventPassCompleted, Try: try, Status: status, Duration: time.Since(start)})

		switch status {
		case PassSucceeded:
			e.log.Debug().Msg("all tasks completed")
			return true, nil
		case PassFailed:
			return false, nil
		case PassRestart:
			// Counter increments, whole order restarts.
		}
	}

	// The global try budget ran out before any task hit its own threshold.
	// The original runner fails here without invoking the halt command.
	e.log.Warn().Int("max_tries", e.cfg.MaxTries).Msg("global try budget exhausted")
	return false, nil
}

// runPass walks the resolved order once for the given attempt number.
func (e *Engine) runPass(ctx context.Context, try int) (PassStatus, error) {
	for _, name := range e.order {
		ts := e.settings.TaskSettings(name)
		payload := HookPayload{Task: name, TryNum: try, MaxRetries: e.cfg.MaxTries}

		if e.cfg.PreTaskHook != "" {
			e.runHook(ctx, e.cfg.PreTaskHook, payload, maxDuration(ts.MaxTime))
		}

		e.log.Debug().Str("task", name).Int("max_time", ts.MaxTime).Int("try", try).
			Msg("starting task")

		start := time.Now()
		outcome, err := e.sup.RunOnce(ctx, e.taskCommand(name, ts.Interpreter), e.env, maxDuration(ts.MaxTime))
		if err != nil {
			return "", err
		}
		e.log.Debug().Str("task", name).Str("outcome", string(outcome)).Msg("task finished")
		e.publish(Event{Type: EventTaskCompleted, Try: try, Task: name, Outcome: outcome, Duration: time.Since(start)})

		if e.cfg.PostTaskHook != "" {
			post := payload
			post.Result = outcome
			// The post hook runs with the global budget, not the task's.
			e.runHook(ctx, e.cfg.PostTaskHook, post, maxDuration(e.cfg.MaxTime))
		}

		switch outcome {
		case OutcomeOK:
			continue

		case OutcomeRetry:
			// The run-wide counter is compared against this task's own
			// threshold; see the package comment for the contract.
			if try == ts.MaxTries {
				e.log.Warn().Str("task", name).Int("try", try).Msg("maximum attempts reached")
				e.invokeHalt(ctx, ts)
				return PassFailed, nil
			}
			// No point sleeping on the way to a halt, only before a restart.
			e.log.Debug().Int("sleep_time", ts.SleepTime).Msg("sleeping before restart")
			e.sleep(time.Duration(ts.SleepTime) * time.Second)
			return PassRestart, nil

		case OutcomeHalt:
			e.log.Info().Str("task", name).Msg("task requested halt")
			e.invokeHalt(ctx, ts)
			return PassFailed, nil
		}
	}

	return PassSucceeded, nil
}

// taskCommand builds the argv for a task: its file path, wrapped by the
// interpreter template when one is configured.
func (e *Engine) taskCommand(name, interpreter string) []string {
	path := filepath.Join(e.cfg.TaskDir, name)
	if interpreter == "" {
		return []string{path}
	}
	return append(SplitCommand(interpreter), path)
}

// runHook invokes a hook best-effort: outcome and error are logged, never
// inspected, and never escalate.
func (e *Engine) runHook(ctx context.Context, hook string, payload HookPayload, maxTime time.Duration) {
	argv := hookCommand(hook, payload)
	e.log.Debug().Strs("hook", argv).Msg("running hook")
	if _, err := e.sup.RunOnce(ctx, argv, e.env, maxTime); err != nil {
		e.log.Warn().Err(err).Str("hook", hook).Msg("hook invocation failed")
	}
}

// invokeHalt runs the halt command: the halt task's path, wrapped by the
// global interpreter if configured, with the failing task's time budget.
// Like hooks, its outcome is never inspected.
func (e *Engine) invokeHalt(ctx context.Context, ts TaskSettings) {
	e.log.Info().Msg("halting")
	e.publish(Event{Type: EventHaltInvoked})

	path := filepath.Join(e.cfg.TaskDir, e.cfg.HaltTask)
	argv := []string{path}
	if e.cfg.Interpreter != "" {
		argv = append(SplitCommand(e.cfg.Interpreter), path)
	}

	if _, err := e.sup.RunOnce(ctx, argv, e.env, maxDuration(ts.MaxTime)); err != nil {
		e.log.Warn().Err(err).Msg("halt command failed")
	}
}

// publish stamps and forwards an event.
func (e *Engine) publish(ev Event) {
	ev.Time = time.Now()
	ev.RunID = e.runID
	ev.TaskDir = e.cfg.TaskDir
	ev.Iteration = e.iteration
	e.sink.Publish(ev)
}

// maxDuration converts a max_time in seconds to a Duration; 0 stays 0,
// meaning unbounded.
func maxDuration(seconds int) time.Duration {
	return time.Duration(seconds) * time.Second
}
