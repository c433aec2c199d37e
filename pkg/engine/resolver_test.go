package engine

import (
	"strings"
	"testing"
)

func TestResolveOrder_Empty(t *testing.T) {
	order, err := ResolveOrder(nil)
	if err != nil {
		t.Fatalf("Expected no error for empty task set, got: %v", err)
	}
	if len(order) != 0 {
		t.Errorf("Expected empty order, got %v", order)
	}
}

func TestResolveOrder_SingleTask(t *testing.T) {
	order, err := ResolveOrder([]Task{{Name: "a"}})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(order) != 1 || order[0] != "a" {
		t.Errorf("Expected [a], got %v", order)
	}
}

func TestResolveOrder_DependencyBeforeDependent(t *testing.T) {
	order, err := ResolveOrder([]Task{
		{Name: "a", Deps: []string{"b"}},
		{Name: "b"},
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("Expected [b a], got %v", order)
	}
}

func TestResolveOrder_DepsRunBeforeDependents(t *testing.T) {
	tasks := []Task{
		{Name: "deploy", Deps: []string{"build", "test"}},
		{Name: "build", Deps: []string{"fetch"}},
		{Name: "test", Deps: []string{"build"}},
		{Name: "fetch"},
		{Name: "lint", Deps: []string{"fetch"}},
	}

	order, err := ResolveOrder(tasks)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(order) != len(tasks) {
		t.Fatalf("Expected %d tasks in order, got %v", len(tasks), order)
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	for _, task := range tasks {
		for _, dep := range task.Deps {
			if pos[dep] > pos[task.Name] {
				t.Errorf("Dependency %q ordered after %q in %v", dep, task.Name, order)
			}
		}
	}
}

func TestResolveOrder_Deterministic(t *testing.T) {
	tasks := []Task{
		{Name: "c"},
		{Name: "a"},
		{Name: "b"},
	}

	first, err := ResolveOrder(tasks)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	for i := 0; i < 20; i++ {
		next, err := ResolveOrder(tasks)
		if err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		for j := range first {
			if next[j] != first[j] {
				t.Fatalf("Order changed between runs: %v vs %v", first, next)
			}
		}
	}

	// Independent tasks keep their discovery order.
	if first[0] != "c" || first[1] != "a" || first[2] != "b" {
		t.Errorf("Expected discovery order [c a b], got %v", first)
	}
}

func TestResolveOrder_CycleDetected(t *testing.T) {
	_, err := ResolveOrder([]Task{
		{Name: "a", Deps: []string{"b"}},
		{Name: "b", Deps: []string{"c"}},
		{Name: "c", Deps: []string{"a"}},
	})
	if err == nil {
		t.Fatal("Expected cycle error, got nil")
	}
	if !IsConfigError(err) {
		t.Errorf("Expected a configuration error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "->") {
		t.Errorf("Expected cycle path in error, got: %v", err)
	}
}

func TestResolveOrder_SelfCycle(t *testing.T) {
	_, err := ResolveOrder([]Task{{Name: "a", Deps: []string{"a"}}})
	if err == nil {
		t.Fatal("Expected cycle error for self-dependency, got nil")
	}
}

func TestResolveOrder_UnknownDependency(t *testing.T) {
	_, err := ResolveOrder([]Task{{Name: "a", Deps: []string{"ghost"}}})
	if err == nil {
		t.Fatal("Expected error for unknown dependency, got nil")
	}
	if !IsConfigError(err) {
		t.Errorf("Expected a configuration error, got: %v", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("Expected unknown dependency name in error, got: %v", err)
	}
}

func TestResolveOrder_DuplicateName(t *testing.T) {
	_, err := ResolveOrder([]Task{{Name: "a"}, {Name: "a"}})
	if err == nil {
		t.Fatal("Expected error for duplicate task name, got nil")
	}
}

func TestGraphDOT(t *testing.T) {
	dot := GraphDOT([]Task{
		{Name: "a", Deps: []string{"b"}},
		{Name: "b"},
	})
	if !strings.Contains(dot, "digraph") {
		t.Errorf("Expected digraph header, got: %s", dot)
	}
	if !strings.Contains(dot, `"b" -> "a"`) {
		t.Errorf("Expected edge from b to a, got: %s", dot)
	}
}
