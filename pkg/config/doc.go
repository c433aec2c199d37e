// Package config loads and validates the INI configuration that drives a
// run.
//
// The file has three kinds of sections:
//
//	[runner]     global settings: max_time, max_tries, sleep_time,
//	             interpreter, halt_task, pre_task_hook, post_task_hook,
//	             env_script
//	[env]        environment overlay applied on top of the process
//	             environment of every spawned task
//	[<task>]     per-task section, named after the task file; holds
//	             depends_on plus overrides for the four recognized keys
//	             (max_time, max_tries, sleep_time, interpreter)
//
// Settings are validated twice: struct tags catch out-of-range scalars and
// a CUE schema catches malformed sections before anything is spawned. The
// optional env_script is a Starlark program whose exported string globals
// are appended to the environment overlay.
package config
