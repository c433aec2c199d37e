package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// runWASM executes a .wasm task in-process under WASI. The module's exit
// code follows the same protocol as native tasks. Unlike native tasks, a
// module that exceeds its budget is actually stopped: the runtime closes the
// module when the deadline context is done, so there is no background
// survivor on this path.
func (s *LocalSupervisor) runWASM(ctx context.Context, argv []string, env []string, maxTime time.Duration) (Outcome, error) {
	wasmBytes, err := os.ReadFile(argv[0])
	if err != nil {
		return "", NewSpawnError(fmt.Sprintf("failed to read wasm module %s", argv[0]), err).
			WithCode(ErrCodeSpawnFailed)
	}

	runCtx := ctx
	if maxTime > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, maxTime)
		defer cancel()
	}

	rc := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(runCtx, rc)
	defer runtime.Close(context.Background())

	wasi_snapshot_preview1.MustInstantiate(runCtx, runtime)

	modCfg := wazero.NewModuleConfig().
		WithArgs(argv...).
		WithStdout(os.Stdout).
		WithStderr(os.Stderr)
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok {
			modCfg = modCfg.WithEnv(k, v)
		}
	}

	compiled, err := runtime.CompileModule(runCtx, wasmBytes)
	if err != nil {
		return "", NewSpawnError(fmt.Sprintf("failed to compile wasm module %s", argv[0]), err).
			WithCode(ErrCodeSpawnFailed)
	}

	_, err = runtime.InstantiateModule(runCtx, compiled, modCfg)
	if err == nil {
		return OutcomeOK, nil
	}

	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case 0:
			return OutcomeOK, nil
		case 2:
			return OutcomeHalt, nil
		default:
			return OutcomeRetry, nil
		}
	}

	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		s.log.Warn().Str("module", argv[0]).Dur("max_time", maxTime).
			Msg("wasm task exceeded max_time; closed")
		return OutcomeRetry, nil
	}

	return "", NewInternalError(fmt.Sprintf("wasm module %s failed", argv[0]), err).
		WithCode(ErrCodeInternal)
}
