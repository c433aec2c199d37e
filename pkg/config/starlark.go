package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"

	"github.com/taskloop/taskloop/pkg/engine"
)

// EnvScript evaluates the optional env_script: a Starlark program whose
// exported string globals become additional environment variables. The
// current environment is available to the script as the dict `env`.
type EnvScript struct {
	timeout time.Duration
}

// NewEnvScript creates an evaluator with the given execution timeout.
func NewEnvScript(timeout time.Duration) *EnvScript {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &EnvScript{timeout: timeout}
}

// Evaluate runs the script and returns its exported variables. Globals
// whose name starts with an underscore or whose value is not a string are
// skipped.
func (e *EnvScript) Evaluate(script string, env map[string]string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	type result struct {
		vars map[string]string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		vars, err := e.evaluateSync(script, env)
		ch <- result{vars: vars, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, engine.NewConfigError(
			fmt.Sprintf("env_script timed out after %v", e.timeout), nil).
			WithCode(engine.ErrCodeValidation)
	case r := <-ch:
		if r.err != nil {
			return nil, engine.NewConfigError("env_script failed", r.err).
				WithCode(engine.ErrCodeValidation)
		}
		return r.vars, nil
	}
}

func (e *EnvScript) evaluateSync(script string, env map[string]string) (map[string]string, error) {
	thread := &starlark.Thread{
		Name: "env_script",
		Print: func(_ *starlark.Thread, _ string) {
			// Scripts configure the environment; they do not get stdout.
		},
	}

	envDict := starlark.NewDict(len(env))
	for k, v := range env {
		if err := envDict.SetKey(starlark.String(k), starlark.String(v)); err != nil {
			return nil, err
		}
	}
	predeclared := starlark.StringDict{"env": envDict}

	globals, err := starlark.ExecFile(thread, "env_script.star", script, predeclared)
	if err != nil {
		return nil, err
	}

	vars := make(map[string]string)
	for name, val := range globals {
		if strings.HasPrefix(name, "_") {
			continue
		}
		if s, ok := val.(starlark.String); ok {
			vars[name] = string(s)
		}
	}
	return vars, nil
}
