package engine

import (
	"context"
	"time"
)

// Supervisor runs one external command to completion under a time budget.
// Implementations must never block indefinitely when maxTime is non-zero.
//
// The contract mirrors the task author protocol: exit code 0 maps to
// OutcomeOK, 2 to OutcomeHalt, anything else to OutcomeRetry. Exceeding
// maxTime sends a graceful termination signal and yields OutcomeRetry
// immediately, without waiting for the process to actually die. A non-nil
// error means the process could not be run at all; it is returned instead
// of, never alongside, an Outcome.
type Supervisor interface {
	RunOnce(ctx context.Context, argv []string, env []string, maxTime time.Duration) (Outcome, error)
}

// TaskSource lists the orderable tasks for one iteration. The halt task is
// never part of the returned set.
type TaskSource interface {
	Tasks() ([]Task, error)
}

// SettingsResolver resolves a task's effective settings by overlaying its
// per-task configuration on the run-wide defaults. Only the four recognized
// keys (max_time, max_tries, sleep_time, interpreter) are honored.
type SettingsResolver interface {
	TaskSettings(task string) TaskSettings
}

// EnvSource produces the full process environment handed to every spawned
// process: the orchestrator's own environment with the configured overlay
// applied.
type EnvSource interface {
	Environ() ([]string, error)
}

// EventSink receives execution events. Publish must not block the run for
// long and must never fail it; sinks are observability, not control flow.
type EventSink interface {
	Publish(ev Event)
}

// NopSink is an EventSink that discards everything.
type NopSink struct{}

// Publish implements EventSink.
func (NopSink) Publish(Event) {}

// MultiSink fans one event out to several sinks in order.
type MultiSink []EventSink

// Publish implements EventSink.
func (m MultiSink) Publish(ev Event) {
	for _, s := range m {
		s.Publish(ev)
	}
}
