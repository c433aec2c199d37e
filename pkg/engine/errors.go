package engine

import (
	"errors"
	"fmt"
)

// ErrorClass classifies an error for recovery decisions.
type ErrorClass string

const (
	// ErrorClassConfig indicates an invalid run setup (cyclic dependencies,
	// unknown dependency names, missing task directory). Detected before any
	// process spawns; always fatal.
	ErrorClassConfig ErrorClass = "config"

	// ErrorClassSpawn indicates the environment itself is broken: a process
	// could not be started at all. Distinct from the three task outcomes,
	// which only describe processes that ran.
	ErrorClassSpawn ErrorClass = "spawn"

	// ErrorClassInternal indicates a bug or an unexpected runtime condition.
	ErrorClassInternal ErrorClass = "internal"
)

// RunError is a classified error with task context.
type RunError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Task is the task name the error relates to, if any.
	Task string `json:"task,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("[%s] %s (task=%s)%s", e.Class, e.Message, e.Task, e.unwrapSuffix())
	}
	return fmt.Sprintf("[%s] %s%s", e.Class, e.Message, e.unwrapSuffix())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) unwrapSuffix() string {
	if e.Err != nil {
		return ": " + e.Err.Error()
	}
	return ""
}

// Is implements error equality for errors.Is.
func (e *RunError) Is(target error) bool {
	t, ok := target.(*RunError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithTask adds task context to an error.
func (e *RunError) WithTask(task string) *RunError {
	e.Task = task
	return e
}

// WithCode adds an error code to an error.
func (e *RunError) WithCode(code string) *RunError {
	e.Code = code
	return e
}

// NewConfigError creates a new configuration error.
func NewConfigError(message string, err error) *RunError {
	return &RunError{Class: ErrorClassConfig, Message: message, Err: err}
}

// NewSpawnError creates a new spawn error.
func NewSpawnError(message string, err error) *RunError {
	return &RunError{Class: ErrorClassSpawn, Message: message, Err: err}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *RunError {
	return &RunError{Class: ErrorClassInternal, Message: message, Err: err}
}

// IsConfigError returns true if the error is classified as a config error.
func IsConfigError(err error) bool {
	var e *RunError
	if errors.As(err, &e) {
		return e.Class == ErrorClassConfig
	}
	return false
}

// IsSpawnError returns true if the error is classified as a spawn error.
func IsSpawnError(err error) bool {
	var e *RunError
	if errors.As(err, &e) {
		return e.Class == ErrorClassSpawn
	}
	return false
}

// Common error codes.
const (
	ErrCodeCycle       = "DEPENDENCY_CYCLE"
	ErrCodeUnknownDep  = "UNKNOWN_DEPENDENCY"
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeSpawnFailed = "SPAWN_FAILED"
	ErrCodeInternal    = "INTERNAL_ERROR"
)

// ErrRunFailed is returned by the driver when an iteration's pass reports
// failure (explicit halt or exhausted retries). It carries no class because
// it is the expected, user-visible failure mode rather than a malfunction.
var ErrRunFailed = errors.New("run failed")
