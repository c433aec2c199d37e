package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.ini")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	s := cfg.Settings()
	if s.MaxTime != 0 || s.MaxTries != 5 || s.SleepTime != 2 || s.HaltTask != "halt" {
		t.Errorf("Unexpected defaults: %+v", s)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	if err == nil {
		t.Fatal("Expected error for missing file, got nil")
	}
}

func TestLoad_RunnerSection(t *testing.T) {
	path := writeConfig(t, `
[runner]
max_time = 60
max_tries = 3
sleep_time = 10
interpreter = bash -c
halt_task = shutdown
pre_task_hook = notify --pre
post_task_hook = notify --post
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	s := cfg.Settings()
	if s.MaxTime != 60 || s.MaxTries != 3 || s.SleepTime != 10 {
		t.Errorf("Unexpected scalars: %+v", s)
	}
	if s.Interpreter != "bash -c" || s.HaltTask != "shutdown" {
		t.Errorf("Unexpected strings: %+v", s)
	}
	if s.PreTaskHook != "notify --pre" || s.PostTaskHook != "notify --post" {
		t.Errorf("Unexpected hooks: %+v", s)
	}
}

func TestLoad_PartialRunnerSectionKeepsDefaults(t *testing.T) {
	path := writeConfig(t, "[runner]\nmax_tries = 8\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	s := cfg.Settings()
	if s.MaxTries != 8 {
		t.Errorf("Expected max_tries 8, got %d", s.MaxTries)
	}
	if s.SleepTime != 2 || s.HaltTask != "halt" {
		t.Errorf("Expected untouched defaults, got %+v", s)
	}
}

func TestLoad_RejectsZeroMaxTries(t *testing.T) {
	path := writeConfig(t, "[runner]\nmax_tries = 0\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected validation error for max_tries = 0, got nil")
	}
}

func TestLoad_RejectsUnknownRunnerOption(t *testing.T) {
	path := writeConfig(t, "[runner]\nmax_trys = 3\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected schema error for misspelled option, got nil")
	}
}

func TestLoad_RejectsNonNumericMaxTime(t *testing.T) {
	path := writeConfig(t, "[build]\nmax_time = soon\n")

	if _, err := Load(path); err == nil {
		t.Fatal("Expected schema error for non-numeric max_time, got nil")
	}
}

func TestGet(t *testing.T) {
	path := writeConfig(t, `
[runner]
max_tries = 7

[build]
depends_on = fetch
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	tests := []struct {
		query string
		want  string
	}{
		{"runner.max_tries", "7"},
		{"max_tries", "7"},
		{"build.depends_on", "fetch"},
	}
	for _, tt := range tests {
		got, err := cfg.Get(tt.query)
		if err != nil {
			t.Errorf("Get(%q) failed: %v", tt.query, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Get(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}

	if _, err := cfg.Get("build.missing"); err == nil {
		t.Error("Expected error for unknown option")
	}
	if _, err := cfg.Get("ghost.option"); err == nil {
		t.Error("Expected error for unknown section")
	}
}

func TestDependsOn(t *testing.T) {
	path := writeConfig(t, `
[deploy]
depends_on = build , test,  lint
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	deps := cfg.DependsOn("deploy")
	want := []string{"build", "test", "lint"}
	if !reflect.DeepEqual(deps, want) {
		t.Errorf("Expected %v, got %v", want, deps)
	}

	if deps := cfg.DependsOn("unknown"); deps != nil {
		t.Errorf("Expected nil for task without a section, got %v", deps)
	}
}

func TestTaskSettings_OverlaysOnlyRecognizedKeys(t *testing.T) {
	path := writeConfig(t, `
[runner]
max_time = 100
max_tries = 5
sleep_time = 2

[build]
max_time = 30
interpreter = python3
depends_on = fetch
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	ts := cfg.TaskSettings("build")
	if ts.MaxTime != 30 {
		t.Errorf("Expected override max_time 30, got %d", ts.MaxTime)
	}
	if ts.Interpreter != "python3" {
		t.Errorf("Expected override interpreter, got %q", ts.Interpreter)
	}
	if ts.MaxTries != 5 || ts.SleepTime != 2 {
		t.Errorf("Expected inherited defaults, got %+v", ts)
	}

	other := cfg.TaskSettings("other")
	if other.MaxTime != 100 || other.Interpreter != "" {
		t.Errorf("Expected pure defaults for unsectioned task, got %+v", other)
	}
}

func TestEnviron_AppliesOverlay(t *testing.T) {
	t.Setenv("TASKLOOP_TEST_INHERITED", "yes")
	t.Setenv("TASKLOOP_TEST_REPLACED", "old")

	path := writeConfig(t, `
[env]
TASKLOOP_TEST_REPLACED = new
TASKLOOP_TEST_ADDED = extra
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	env, err := cfg.Environ()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := envMap(env)
	if got["TASKLOOP_TEST_INHERITED"] != "yes" {
		t.Error("Expected inherited variable to survive")
	}
	if got["TASKLOOP_TEST_REPLACED"] != "new" {
		t.Errorf("Expected overlay to win, got %q", got["TASKLOOP_TEST_REPLACED"])
	}
	if got["TASKLOOP_TEST_ADDED"] != "extra" {
		t.Errorf("Expected overlay addition, got %q", got["TASKLOOP_TEST_ADDED"])
	}
}

func TestEnviron_RunsEnvScript(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "env.star")
	body := `
REGION = "eu-west-1"
COMBINED = env["TASKLOOP_TEST_BASE"] + "-suffix"
_private = "hidden"
`
	if err := os.WriteFile(script, []byte(body), 0o644); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}

	t.Setenv("TASKLOOP_TEST_BASE", "base")

	path := writeConfig(t, "[runner]\nenv_script = "+script+"\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	env, err := cfg.Environ()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	got := envMap(env)
	if got["REGION"] != "eu-west-1" {
		t.Errorf("Expected script export, got %q", got["REGION"])
	}
	if got["COMBINED"] != "base-suffix" {
		t.Errorf("Expected script to read current env, got %q", got["COMBINED"])
	}
	if _, ok := got["_private"]; ok {
		t.Error("Expected underscore globals to be skipped")
	}
}

func TestEnvScript_SyntaxErrorFails(t *testing.T) {
	eval := NewEnvScript(0)
	if _, err := eval.Evaluate("this is not starlark", nil); err == nil {
		t.Fatal("Expected evaluation error, got nil")
	}
}

func TestEnvScript_NonStringGlobalsSkipped(t *testing.T) {
	eval := NewEnvScript(0)
	vars, err := eval.Evaluate("A = \"one\"\nB = 2\n", nil)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if !reflect.DeepEqual(vars, map[string]string{"A": "one"}) {
		t.Errorf("Expected only string globals, got %v", vars)
	}
}

func envMap(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}
