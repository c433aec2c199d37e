// Package policy validates run configurations with Rego policies before
// anything is spawned.
//
// Policies receive the global settings and the resolved per-task settings
// as input and report violations through a `deny` set in their package.
// Built-in policies catch configurations that are syntactically valid but
// cannot behave as intended; users can add their own .rego files and have
// them reloaded on change.
package policy
