package taskdir

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

type depsMap map[string][]string

func (d depsMap) DependsOn(task string) []string { return d[task] }

func populate(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatalf("Failed to create task %s: %v", name, err)
		}
	}
}

func TestSource_Tasks(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, "build", "fetch", "deploy")

	src := NewSource(dir, "halt", depsMap{"build": {"fetch"}})
	tasks, err := src.Tasks()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	names := make([]string, len(tasks))
	for i, task := range tasks {
		names[i] = task.Name
	}
	if !reflect.DeepEqual(names, []string{"build", "deploy", "fetch"}) {
		t.Errorf("Expected sorted names, got %v", names)
	}

	for _, task := range tasks {
		if task.Name == "build" && !reflect.DeepEqual(task.Deps, []string{"fetch"}) {
			t.Errorf("Expected build deps [fetch], got %v", task.Deps)
		}
	}
}

func TestSource_ExcludesHaltTask(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, "a", "halt")

	src := NewSource(dir, "halt", depsMap{})
	tasks, err := src.Tasks()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "a" {
		t.Errorf("Expected halt task excluded, got %v", tasks)
	}
}

func TestSource_SkipsSubdirectories(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, "a")
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}

	src := NewSource(dir, "halt", depsMap{})
	tasks, err := src.Tasks()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Name != "a" {
		t.Errorf("Expected only regular files, got %v", tasks)
	}
}

func TestSource_MissingDirectory(t *testing.T) {
	src := NewSource(filepath.Join(t.TempDir(), "absent"), "halt", depsMap{})
	if _, err := src.Tasks(); err == nil {
		t.Fatal("Expected error for missing directory, got nil")
	}
}

func TestSource_PicksUpNewTasks(t *testing.T) {
	dir := t.TempDir()
	populate(t, dir, "a")

	src := NewSource(dir, "halt", depsMap{})
	first, err := src.Tasks()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(first))
	}

	populate(t, dir, "b")
	second, err := src.Tasks()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(second) != 2 {
		t.Errorf("Expected new task to be discovered, got %v", second)
	}
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	if !Exists(dir) {
		t.Error("Expected existing directory to be reported")
	}
	if Exists(filepath.Join(dir, "absent")) {
		t.Error("Expected missing directory to be rejected")
	}

	file := filepath.Join(dir, "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}
	if Exists(file) {
		t.Error("Expected regular file to be rejected")
	}
}
