package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskloop/taskloop/pkg/engine"
)

// setupTestStore creates a store backed by a temporary database file.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := NewStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_RequiresPath(t *testing.T) {
	if _, err := NewStore(""); err == nil {
		t.Fatal("Expected error for empty path, got nil")
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	started := time.Now().Truncate(time.Second)
	if err := store.CreateRun(ctx, "run-1", "/tasks", started); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != StatusRunning {
		t.Errorf("Expected status running, got %s", run.Status)
	}
	if run.TaskDir != "/tasks" {
		t.Errorf("Expected task dir /tasks, got %s", run.TaskDir)
	}
	if run.FinishedAt != nil {
		t.Error("Expected no finish time on a running run")
	}

	if err := store.FinishRun(ctx, "run-1", true, time.Now()); err != nil {
		t.Fatalf("failed to finish run: %v", err)
	}

	run, err = store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != StatusFailed {
		t.Errorf("Expected status failed, got %s", run.Status)
	}
	if run.FinishedAt == nil {
		t.Error("Expected finish time on a finished run")
	}
}

func TestStore_FinishUnknownRun(t *testing.T) {
	store := setupTestStore(t)

	if err := store.FinishRun(context.Background(), "ghost", false, time.Now()); err == nil {
		t.Fatal("Expected error for unknown run, got nil")
	}
}

func TestStore_TaskResults(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.CreateRun(ctx, "run-1", "/tasks", time.Now()); err != nil {
		t.Fatalf("failed to create run: %v", err)
	}

	results := []TaskResult{
		{RunID: "run-1", Iteration: 1, Try: 1, Task: "build", Outcome: "RETRY", Duration: 2 * time.Second, CreatedAt: time.Now()},
		{RunID: "run-1", Iteration: 1, Try: 2, Task: "build", Outcome: "OK", Duration: 3 * time.Second, CreatedAt: time.Now()},
	}
	for _, tr := range results {
		if err := store.RecordTask(ctx, tr); err != nil {
			t.Fatalf("failed to record task: %v", err)
		}
	}

	got, err := store.TaskResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("failed to list task results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(got))
	}
	if got[0].Outcome != "RETRY" || got[1].Outcome != "OK" {
		t.Errorf("Expected execution order preserved, got %+v", got)
	}
	if got[1].Duration != 3*time.Second {
		t.Errorf("Expected duration round-trip, got %v", got[1].Duration)
	}
}

func TestStore_ListRuns(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		if err := store.CreateRun(ctx, id, "/tasks", base.Add(time.Duration(i)*time.Minute)); err != nil {
			t.Fatalf("failed to create run: %v", err)
		}
	}

	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "new" || runs[1].ID != "mid" {
		t.Errorf("Expected newest first, got %v then %v", runs[0].ID, runs[1].ID)
	}
}

func TestSink_RecordsEvents(t *testing.T) {
	store := setupTestStore(t)
	sink := NewSink(context.Background(), store, zerolog.Nop())

	now := time.Now()
	sink.Publish(engine.Event{Type: engine.EventRunStarted, RunID: "run-1", TaskDir: "/tasks", Time: now})
	sink.Publish(engine.Event{Type: engine.EventTaskCompleted, RunID: "run-1", Iteration: 1, Try: 1, Task: "build", Outcome: engine.OutcomeOK, Duration: time.Second, Time: now})
	sink.Publish(engine.Event{Type: engine.EventPassCompleted, RunID: "run-1"})
	sink.Publish(engine.Event{Type: engine.EventRunCompleted, RunID: "run-1", Time: now})

	run, err := store.GetRun(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if run.Status != StatusSucceeded {
		t.Errorf("Expected status succeeded, got %s", run.Status)
	}

	results, err := store.TaskResults(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("failed to list task results: %v", err)
	}
	if len(results) != 1 || results[0].Task != "build" {
		t.Errorf("Expected one build result, got %+v", results)
	}
}
