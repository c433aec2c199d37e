// Package taskdir discovers the executable tasks of a task directory.
package taskdir

import (
	"fmt"
	"os"
	"sort"

	"github.com/taskloop/taskloop/pkg/engine"
)

// DependencyLookup resolves a task's declared dependencies by name. The
// configuration collaborator implements it.
type DependencyLookup interface {
	DependsOn(task string) []string
}

// Source lists a directory's tasks for each iteration. Listing happens on
// every call so tasks added or removed between iterations are picked up.
type Source struct {
	dir      string
	haltTask string
	deps     DependencyLookup
}

// NewSource creates a task source over dir. The halt task is excluded from
// discovery; it is never part of the orderable set.
func NewSource(dir, haltTask string, deps DependencyLookup) *Source {
	return &Source{dir: dir, haltTask: haltTask, deps: deps}
}

// Tasks implements engine.TaskSource. Entries are returned sorted by name;
// only regular files count, subdirectories and the halt task are skipped.
func (s *Source) Tasks() ([]engine.Task, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, engine.NewConfigError(fmt.Sprintf("failed to list task directory %s", s.dir), err)
	}

	var tasks []engine.Task
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if name == s.haltTask {
			continue
		}
		tasks = append(tasks, engine.Task{Name: name, Deps: s.deps.DependsOn(name)})
	}

	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Name < tasks[j].Name })
	return tasks, nil
}

// Exists reports whether the directory exists and is a directory.
func Exists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
