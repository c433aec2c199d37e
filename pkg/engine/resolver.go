package engine

import (
	"fmt"
	"strings"
)

// resolver builds a dependency-respecting order from a task set.
type resolver struct {
	// tasks maps task names to their declared dependencies, trimmed.
	tasks map[string][]string

	// names preserves discovery order for deterministic tie-breaking.
	names []string

	// dependents maps a task to the tasks that depend on it.
	dependents map[string][]string

	// inDegree tracks the number of unsatisfied dependencies per task.
	inDegree map[string]int
}

// ResolveOrder produces the single ordered sequence used for a run: every
// task appears exactly once, strictly after all of its dependencies. Ties
// among independent tasks are broken by discovery order.
//
// A dependency naming no discovered task is rejected (fail closed), as is
// any cycle. Both are config errors raised before anything is spawned.
func ResolveOrder(tasks []Task) ([]string, error) {
	r := &resolver{
		tasks:      make(map[string][]string, len(tasks)),
		names:      make([]string, 0, len(tasks)),
		dependents: make(map[string][]string, len(tasks)),
		inDegree:   make(map[string]int, len(tasks)),
	}

	if err := r.initialize(tasks); err != nil {
		return nil, err
	}

	order := r.sequentialOrder()
	if len(order) != len(r.names) {
		return nil, NewConfigError(
			fmt.Sprintf("circular dependency detected: %s", formatCycle(r.findCycle())), nil,
		).WithCode(ErrCodeCycle)
	}

	return order, nil
}

// initialize indexes the tasks and validates every dependency edge.
func (r *resolver) initialize(tasks []Task) error {
	for _, t := range tasks {
		if t.Name == "" {
			return NewConfigError("task has empty name", nil).WithCode(ErrCodeValidation)
		}
		if _, exists := r.tasks[t.Name]; exists {
			return NewConfigError(fmt.Sprintf("duplicate task name: %s", t.Name), nil).
				WithCode(ErrCodeValidation)
		}

		deps := make([]string, 0, len(t.Deps))
		for _, d := range t.Deps {
			d = strings.TrimSpace(d)
			if d == "" {
				continue
			}
			deps = append(deps, d)
		}

		r.tasks[t.Name] = deps
		r.names = append(r.names, t.Name)
		r.inDegree[t.Name] = 0
	}

	for _, name := range r.names {
		for _, dep := range r.tasks[name] {
			if _, exists := r.tasks[dep]; !exists {
				return NewConfigError(
					fmt.Sprintf("task %s depends on unknown task %s", name, dep), nil,
				).WithCode(ErrCodeUnknownDep).WithTask(name)
			}
			r.dependents[dep] = append(r.dependents[dep], name)
			r.inDegree[name]++
		}
	}

	return nil
}

// sequentialOrder runs Kahn's algorithm with a FIFO queue seeded and
// extended in discovery order, which makes the result deterministic.
func (r *resolver) sequentialOrder() []string {
	degree := make(map[string]int, len(r.inDegree))
	for name, d := range r.inDegree {
		degree[name] = d
	}

	queue := make([]string, 0, len(r.names))
	for _, name := range r.names {
		if degree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order := make([]string, 0, len(r.names))
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		order = append(order, next)

		for _, dependent := range r.dependents[next] {
			degree[dependent]--
			if degree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	return order
}

// findCycle walks unresolved tasks depth-first to extract one cycle path
// for the error message.
func (r *resolver) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	var path []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		visited[name] = true
		onStack[name] = true
		path = append(path, name)

		for _, dep := range r.tasks[name] {
			if !visited[dep] {
				if visit(dep) {
					return true
				}
			} else if onStack[dep] {
				start := 0
				for i, n := range path {
					if n == dep {
						start = i
						break
					}
				}
				cycle = append(append([]string{}, path[start:]...), dep)
				return true
			}
		}

		onStack[name] = false
		path = path[:len(path)-1]
		return false
	}

	for _, name := range r.names {
		if !visited[name] && visit(name) {
			break
		}
	}
	return cycle
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	if len(cycle) == 0 {
		return "unresolvable dependency set"
	}
	return strings.Join(cycle, " -> ")
}

// GraphDOT renders the dependency graph in DOT format for visualization
// with Graphviz tools. Nodes appear in discovery order.
func GraphDOT(tasks []Task) string {
	var sb strings.Builder

	sb.WriteString("digraph tasks {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n")

	for _, t := range tasks {
		fmt.Fprintf(&sb, "  %q;\n", t.Name)
	}
	for _, t := range tasks {
		for _, dep := range t.Deps {
			dep = strings.TrimSpace(dep)
			if dep == "" {
				continue
			}
			fmt.Fprintf(&sb, "  %q -> %q;\n", dep, t.Name)
		}
	}

	sb.WriteString("}\n")
	return sb.String()
}
