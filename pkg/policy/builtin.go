package policy

// BuiltinPolicies returns the policies that ship with the binary.
func BuiltinPolicies() []Policy {
	return []Policy{
		attemptThresholdPolicy(),
		haltDependencyPolicy(),
		sleepBudgetPolicy(),
	}
}

// attemptThresholdPolicy rejects per-task thresholds the shared attempt
// counter can never reach. The counter stops at the global max_tries, so a
// larger per-task value means the task's halt path is dead configuration.
func attemptThresholdPolicy() Policy {
	return Policy{
		Name:        "attempt-threshold",
		Description: "Per-task max_tries must not exceed the global max_tries",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package taskloop.policies.threshold

import rego.v1

deny contains violation if {
	some task in input.tasks
	task.max_tries > input.settings.max_tries
	violation := {
		"message": sprintf("task %s has max_tries %d above the global limit %d; its threshold is unreachable", [task.name, task.max_tries, input.settings.max_tries]),
		"severity": "error",
		"task": task.name,
	}
}
`,
	}
}

// haltDependencyPolicy rejects dependencies on the halt task, which is
// never part of the orderable set.
func haltDependencyPolicy() Policy {
	return Policy{
		Name:        "halt-dependency",
		Description: "Tasks must not depend on the halt task",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package taskloop.policies.halt

import rego.v1

deny contains violation if {
	some task in input.tasks
	some dep in task.depends_on
	dep == input.halt_task
	violation := {
		"message": sprintf("task %s depends on the halt task %s, which is never scheduled", [task.name, dep]),
		"severity": "error",
		"task": task.name,
	}
}
`,
	}
}

// sleepBudgetPolicy flags sleep intervals longer than the task's own time
// budget.
func sleepBudgetPolicy() Policy {
	return Policy{
		Name:        "sleep-budget",
		Description: "A task's sleep_time should not exceed its max_time",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package taskloop.policies.sleep

import rego.v1

deny contains violation if {
	some task in input.tasks
	task.max_time > 0
	task.sleep_time > task.max_time
	violation := {
		"message": sprintf("task %s sleeps %ds between attempts but may only run %ds", [task.name, task.sleep_time, task.max_time]),
		"severity": "warning",
		"task": task.name,
	}
}
`,
	}
}
