package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Driver runs the engine for a requested number of iterations, discovering
// and resolving the task set afresh for each one so that edits to the task
// directory between iterations take effect.
type Driver struct {
	cfg      RunConfig
	source   TaskSource
	settings SettingsResolver
	envs     EnvSource
	sup      Supervisor
	sink     EventSink
	log      zerolog.Logger
}

// NewDriver wires a driver from its collaborators. A nil sink is replaced
// with a no-op one.
func NewDriver(cfg RunConfig, source TaskSource, settings SettingsResolver, envs EnvSource, sup Supervisor, sink EventSink, log zerolog.Logger) *Driver {
	if sink == nil {
		sink = NopSink{}
	}
	return &Driver{
		cfg:      cfg,
		source:   source,
		settings: settings,
		envs:     envs,
		sup:      sup,
		sink:     sink,
		log:      log,
	}
}

// Run executes times iterations sequentially and stops at the first failed
// one; times 0 means iterate until a failure or the context is cancelled.
// The returned report is always non-nil and covers the iterations that
// actually ran. A failed run returns ErrRunFailed; any other error means an
// iteration could not be set up or a process could not be spawned.
func (d *Driver) Run(ctx context.Context, times int) (*RunReport, error) {
	report := &RunReport{
		ID:        uuid.NewString(),
		TaskDir:   d.cfg.TaskDir,
		StartedAt: time.Now(),
	}
	log := d.log.With().Str("run_id", report.ID).Logger()

	d.publish(report, Event{Type: EventRunStarted})
	log.Info().Str("taskdir", d.cfg.TaskDir).Int("times", times).Msg("run started")

	for i := 1; times == 0 || i <= times; i++ {
		if err := ctx.Err(); err != nil {
			report.Failed = true
			report.FinishedAt = time.Now()
			d.publish(report, Event{Type: EventRunCompleted, Failed: true})
			return report, err
		}

		d.publish(report, Event{Type: EventIterationStarted, Iteration: i})
		log.Debug().Int("iteration", i).Msg("iteration started")

		ok, ir, err := d.runIteration(ctx, log, report.ID, i)
		report.Iterations = append(report.Iterations, ir)
		if err != nil {
			report.Failed = true
			report.FinishedAt = time.Now()
			d.publish(report, Event{Type: EventRunCompleted, Failed: true})
			return report, err
		}
		if !ok {
			report.Failed = true
			report.FinishedAt = time.Now()
			d.publish(report, Event{Type: EventRunCompleted, Failed: true})
			log.Warn().Int("iteration", i).Msg("run failed")
			return report, ErrRunFailed
		}
	}

	report.FinishedAt = time.Now()
	d.publish(report, Event{Type: EventRunCompleted})
	log.Info().Msg("run completed")
	return report, nil
}

func (d *Driver) runIteration(ctx context.Context, log zerolog.Logger, runID string, iteration int) (bool, IterationReport, error) {
	ir := IterationReport{Number: iteration, Status: PassFailed}
	start := time.Now()

	tasks, err := d.source.Tasks()
	if err != nil {
		ir.Duration = time.Since(start)
		return false, ir, err
	}

	order, err := ResolveOrder(tasks)
	if err != nil {
		ir.Duration = time.Since(start)
		return false, ir, err
	}
	log.Debug().Strs("order", order).Msg("resolved task order")

	env, err := d.envs.Environ()
	if err != nil {
		ir.Duration = time.Since(start)
		return false, ir, err
	}

	eng := NewEngine(d.cfg, order, d.settings, env, d.sup, d.countingSink(&ir), log)
	eng.setRunContext(runID, iteration)

	ok, err := eng.Execute(ctx)
	ir.Duration = time.Since(start)
	if err != nil {
		return false, ir, err
	}
	if ok {
		ir.Status = PassSucceeded
	}
	return ok, ir, nil
}

// countingSink wraps the driver's sink so pass starts are tallied into the
// iteration report.
func (d *Driver) countingSink(ir *IterationReport) EventSink {
	return &tallySink{next: d.sink, ir: ir}
}

type tallySink struct {
	next EventSink
	ir   *IterationReport
}

func (t *tallySink) Publish(ev Event) {
	if ev.Type == EventPassStarted {
		t.ir.Tries = ev.Try
	}
	t.next.Publish(ev)
}

func (d *Driver) publish(report *RunReport, ev Event) {
	ev.Time = time.Now()
	ev.RunID = report.ID
	ev.TaskDir = d.cfg.TaskDir
	d.sink.Publish(ev)
}
