package engine

import (
	"time"
)

// Outcome is the three-valued classification of a task's exit behavior.
type Outcome string

const (
	// OutcomeOK means the process exited with code 0; the pass proceeds.
	OutcomeOK Outcome = "OK"

	// OutcomeRetry means a transient failure: any exit code other than
	// 0 or 2, or a forced termination after the time budget was exceeded.
	OutcomeRetry Outcome = "RETRY"

	// OutcomeHalt means the process exited with code 2, demanding that the
	// whole run stop.
	OutcomeHalt Outcome = "HALT"
)

// Task is one executable unit discovered in the task directory, identified
// by its file name. Immutable for the duration of a run.
type Task struct {
	// Name is the executable file name, unique within the task directory.
	Name string

	// Deps lists the names of tasks that must run before this one.
	Deps []string
}

// TaskSettings are the four per-task overridable knobs, resolved by
// overlaying a task's own section on the run-wide defaults.
type TaskSettings struct {
	// MaxTime is the execution budget in seconds; 0 means unlimited.
	MaxTime int `json:"max_time"`

	// MaxTries is the attempt threshold this task is compared against.
	// The counter it is compared to is the run-wide one.
	MaxTries int `json:"max_tries"`

	// SleepTime is the inter-attempt sleep in seconds.
	SleepTime int `json:"sleep_time"`

	// Interpreter optionally wraps the task path, e.g. "bash -c".
	Interpreter string `json:"interpreter"`
}

// RunConfig carries the run-wide execution settings handed to the engine by
// the configuration collaborator.
type RunConfig struct {
	// TaskDir is the directory holding the task executables.
	TaskDir string

	// HaltTask is the designated, non-orderable task invoked whenever the
	// run must stop. Its path is TaskDir joined with this name.
	HaltTask string

	// MaxTime, MaxTries, SleepTime and Interpreter are the global defaults
	// that per-task sections may override.
	MaxTime   int
	MaxTries  int
	SleepTime int

	// Interpreter is the global interpreter template. It also wraps the
	// halt command, regardless of any per-task interpreter override.
	Interpreter string

	// PreTaskHook and PostTaskHook are optional commands invoked around
	// every task with a JSON payload; their outcomes are never inspected.
	PreTaskHook  string
	PostTaskHook string
}

// Settings returns the global defaults as TaskSettings.
func (c RunConfig) Settings() TaskSettings {
	return TaskSettings{
		MaxTime:     c.MaxTime,
		MaxTries:    c.MaxTries,
		SleepTime:   c.SleepTime,
		Interpreter: c.Interpreter,
	}
}

// HookPayload is the JSON object passed as the sole argument to pre- and
// post-task hooks. Result is only set for post-task hooks.
type HookPayload struct {
	Task       string  `json:"task"`
	TryNum     int     `json:"try_num"`
	MaxRetries int     `json:"max_retries"`
	Result     Outcome `json:"result,omitempty"`
}

// PassStatus is the verdict of one pass over the resolved order.
type PassStatus string

const (
	// PassSucceeded means every task in the pass returned OK.
	PassSucceeded PassStatus = "succeeded"

	// PassRestart means a task returned RETRY below its threshold; the
	// driver increments the attempt counter and restarts the whole order.
	PassRestart PassStatus = "restart"

	// PassFailed means the run is over: an explicit HALT, or RETRY with the
	// attempt counter at the task's threshold. The halt command has already
	// been invoked.
	PassFailed PassStatus = "failed"
)

// EventType identifies an execution event published to an EventSink.
type EventType string

const (
	EventRunStarted       EventType = "run_started"
	EventIterationStarted EventType = "iteration_started"
	EventPassStarted      EventType = "pass_started"
	EventTaskCompleted    EventType = "task_completed"
	EventHaltInvoked      EventType = "halt_invoked"
	EventPassCompleted    EventType = "pass_completed"
	EventRunCompleted     EventType = "run_completed"
)

// Event is one execution event. Fields are populated according to Type.
type Event struct {
	Type      EventType
	Time      time.Time
	RunID     string
	TaskDir   string
	Iteration int
	Try       int
	MaxTries  int
	Task      string
	Outcome   Outcome
	Status    PassStatus
	Duration  time.Duration
	Failed    bool
}

// IterationReport summarizes one driver iteration for the run report.
type IterationReport struct {
	Number   int           `yaml:"number"`
	Tries    int           `yaml:"tries"`
	Status   PassStatus    `yaml:"status"`
	Duration time.Duration `yaml:"duration"`
}

// RunReport is the YAML-serializable summary of a whole run.
type RunReport struct {
	ID         string            `yaml:"id"`
	TaskDir    string            `yaml:"task_dir"`
	StartedAt  time.Time         `yaml:"started_at"`
	FinishedAt time.Time         `yaml:"finished_at"`
	Failed     bool              `yaml:"failed"`
	Iterations []IterationReport `yaml:"iterations"`
}
