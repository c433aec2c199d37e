package policy

import "time"

// Severity levels for policy violations.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Policy is one named Rego policy.
type Policy struct {
	Name        string
	Description string
	Severity    Severity
	Enabled     bool
	Rego        string
}

// Input is the document policies evaluate.
type Input struct {
	Settings TaskInput   `json:"settings"`
	HaltTask string      `json:"halt_task"`
	Tasks    []TaskInput `json:"tasks"`
}

// TaskInput is the per-task slice of the input document. For the Settings
// field the name and dependency list are empty.
type TaskInput struct {
	Name        string   `json:"name,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	MaxTime     int      `json:"max_time"`
	MaxTries    int      `json:"max_tries"`
	SleepTime   int      `json:"sleep_time"`
	Interpreter string   `json:"interpreter"`
}

// Violation is one policy denial.
type Violation struct {
	Policy   string
	Message  string
	Severity string
	Task     string
}

// Result is the outcome of evaluating all policies against an input.
type Result struct {
	Allowed     bool
	Violations  []Violation
	Warnings    []string
	EvaluatedAt time.Time
}
