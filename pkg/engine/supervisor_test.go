package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("Failed to write script: %v", err)
	}
	return path
}

func TestLocalSupervisor_ExitZeroIsOK(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())
	script := writeScript(t, t.TempDir(), "ok", "exit 0\n")

	outcome, err := sup.RunOnce(context.Background(), []string{script}, nil, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if outcome != OutcomeOK {
		t.Errorf("Expected OK, got %s", outcome)
	}
}

func TestLocalSupervisor_ExitTwoIsHalt(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())
	script := writeScript(t, t.TempDir(), "halt", "exit 2\n")

	outcome, err := sup.RunOnce(context.Background(), []string{script}, nil, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if outcome != OutcomeHalt {
		t.Errorf("Expected HALT, got %s", outcome)
	}
}

func TestLocalSupervisor_OtherExitIsRetry(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())
	dir := t.TempDir()

	for _, body := range []string{"exit 1\n", "exit 3\n", "exit 255\n"} {
		script := writeScript(t, dir, "fail", body)
		outcome, err := sup.RunOnce(context.Background(), []string{script}, nil, 0)
		if err != nil {
			t.Fatalf("Expected no error for %q, got: %v", body, err)
		}
		if outcome != OutcomeRetry {
			t.Errorf("Expected RETRY for %q, got %s", body, outcome)
		}
	}
}

func TestLocalSupervisor_TimeoutIsRetry(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())
	script := writeScript(t, t.TempDir(), "slow", "sleep 30\n")

	start := time.Now()
	outcome, err := sup.RunOnce(context.Background(), []string{script}, nil, 100*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if outcome != OutcomeRetry {
		t.Errorf("Expected RETRY after timeout, got %s", outcome)
	}
	// The call must return promptly after signaling, not wait for exit.
	if elapsed > 5*time.Second {
		t.Errorf("RunOnce blocked %v after timeout", elapsed)
	}
}

func TestLocalSupervisor_SpawnFailure(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())

	_, err := sup.RunOnce(context.Background(), []string{filepath.Join(t.TempDir(), "missing")}, nil, 0)
	if err == nil {
		t.Fatal("Expected spawn error for missing executable, got nil")
	}
	if !IsSpawnError(err) {
		t.Errorf("Expected a spawn error, got: %v", err)
	}
}

func TestLocalSupervisor_EmptyCommand(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())

	_, err := sup.RunOnce(context.Background(), nil, nil, 0)
	if err == nil {
		t.Fatal("Expected error for empty command, got nil")
	}
}

func TestLocalSupervisor_PassesEnvironment(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())
	script := writeScript(t, t.TempDir(), "check", `[ "$MARKER" = "set" ] || exit 1`+"\n")

	outcome, err := sup.RunOnce(context.Background(), []string{script}, []string{"MARKER=set"}, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if outcome != OutcomeOK {
		t.Errorf("Expected OK with environment set, got %s", outcome)
	}
}

func TestLocalSupervisor_ArgumentsForwarded(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())
	script := writeScript(t, t.TempDir(), "args", `[ "$1" = "one" ] && [ "$2" = "two" ] || exit 1`+"\n")

	outcome, err := sup.RunOnce(context.Background(), []string{script, "one", "two"}, nil, 0)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if outcome != OutcomeOK {
		t.Errorf("Expected OK, got %s", outcome)
	}
}

func TestLocalSupervisor_ContextCancellation(t *testing.T) {
	sup := NewLocalSupervisor(zerolog.Nop())
	script := writeScript(t, t.TempDir(), "slow", "sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := sup.RunOnce(ctx, []string{script}, nil, 0)
	if err == nil {
		t.Fatal("Expected context error, got nil")
	}
}
