package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// LocalSupervisor runs commands as child processes on the local host.
//
// The timeout path is deliberately fire-and-forget: when the budget is
// exceeded the process receives SIGTERM and RunOnce returns OutcomeRetry at
// once, without confirming process death. The child may outlive the call; a
// background goroutine still reaps it whenever it does exit.
type LocalSupervisor struct {
	log zerolog.Logger
}

// NewLocalSupervisor creates a supervisor for local process execution.
func NewLocalSupervisor(log zerolog.Logger) *LocalSupervisor {
	return &LocalSupervisor{log: log.With().Str("component", "supervisor").Logger()}
}

// RunOnce implements Supervisor. Commands whose program path ends in .wasm
// are executed in-process under WASI instead of being spawned; the exit-code
// protocol is identical.
func (s *LocalSupervisor) RunOnce(ctx context.Context, argv []string, env []string, maxTime time.Duration) (Outcome, error) {
	if len(argv) == 0 {
		return "", NewInternalError("empty command", nil).WithCode(ErrCodeInternal)
	}
	if strings.HasSuffix(argv[0], ".wasm") {
		return s.runWASM(ctx, argv, env, maxTime)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	// Tasks get no stdin; anything that reads it sees immediate EOF.
	devnull, err := os.Open(os.DevNull)
	if err != nil {
		return "", NewInternalError("failed to open devnull", err).WithCode(ErrCodeInternal)
	}
	defer devnull.Close()
	cmd.Stdin = devnull

	if err := cmd.Start(); err != nil {
		return "", NewSpawnError(fmt.Sprintf("failed to start %s", argv[0]), err).
			WithCode(ErrCodeSpawnFailed)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var deadline <-chan time.Time
	if maxTime > 0 {
		timer := time.NewTimer(maxTime)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case err := <-done:
		return mapExit(err)
	case <-deadline:
		s.log.Warn().Str("command", argv[0]).Dur("max_time", maxTime).
			Msg("exceeded max_time; terminating")
		_ = cmd.Process.Signal(syscall.SIGTERM)
		return OutcomeRetry, nil
	case <-ctx.Done():
		_ = cmd.Process.Signal(syscall.SIGTERM)
		return "", ctx.Err()
	}
}

// mapExit applies the task author protocol to a Wait result.
func mapExit(err error) (Outcome, error) {
	if err == nil {
		return OutcomeOK, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 0:
			return OutcomeOK, nil
		case 2:
			return OutcomeHalt, nil
		default:
			// Includes death by signal (exit code -1).
			return OutcomeRetry, nil
		}
	}

	return "", NewInternalError("wait failed", err).WithCode(ErrCodeInternal)
}
