package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-ini/ini"
	"github.com/go-playground/validator/v10"

	"github.com/taskloop/taskloop/pkg/engine"
)

// runnerSection is the section holding the global settings.
const runnerSection = "runner"

// envSection is the section holding the environment overlay.
const envSection = "env"

// Settings are the global run settings parsed from the [runner] section.
type Settings struct {
	MaxTime      int    `ini:"max_time" validate:"min=0"`
	MaxTries     int    `ini:"max_tries" validate:"min=1"`
	SleepTime    int    `ini:"sleep_time" validate:"min=0"`
	Interpreter  string `ini:"interpreter" validate:"-"`
	HaltTask     string `ini:"halt_task" validate:"required"`
	PreTaskHook  string `ini:"pre_task_hook" validate:"-"`
	PostTaskHook string `ini:"post_task_hook" validate:"-"`
	EnvScript    string `ini:"env_script" validate:"omitempty,filepath"`
}

// Defaults returns the settings used when no configuration file is given.
func Defaults() Settings {
	return Settings{
		MaxTime:   0,
		MaxTries:  5,
		SleepTime: 2,
		HaltTask:  "halt",
	}
}

// Config is the loaded configuration. It implements the engine's
// SettingsResolver and EnvSource collaborator interfaces.
type Config struct {
	file     *ini.File
	settings Settings
	eval     *EnvScript
}

// Load reads and validates a configuration file. An empty path yields a
// configuration holding only the defaults.
func Load(path string) (*Config, error) {
	var (
		file *ini.File
		err  error
	)
	if path == "" {
		file = ini.Empty()
	} else {
		file, err = ini.Load(path)
		if err != nil {
			return nil, engine.NewConfigError(fmt.Sprintf("failed to load config %s", path), err).
				WithCode(engine.ErrCodeValidation)
		}
	}

	cfg := &Config{
		file:     file,
		settings: Defaults(),
		eval:     NewEnvScript(30 * time.Second),
	}

	sec := file.Section(runnerSection)
	if err := sec.MapTo(&cfg.settings); err != nil {
		return nil, engine.NewConfigError("failed to parse [runner] section", err).
			WithCode(engine.ErrCodeValidation)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate runs both validation layers over the loaded file.
func (c *Config) validate() error {
	if err := validator.New().Struct(c.settings); err != nil {
		return engine.NewConfigError("invalid [runner] settings", err).
			WithCode(engine.ErrCodeValidation)
	}
	if err := validateSchema(c.file); err != nil {
		return err
	}
	return nil
}

// Settings returns the parsed global settings.
func (c *Config) Settings() Settings {
	return c.settings
}

// RunConfig builds the engine's run configuration for the given task
// directory.
func (c *Config) RunConfig(taskDir string) engine.RunConfig {
	return engine.RunConfig{
		TaskDir:      taskDir,
		HaltTask:     c.settings.HaltTask,
		MaxTime:      c.settings.MaxTime,
		MaxTries:     c.settings.MaxTries,
		SleepTime:    c.settings.SleepTime,
		Interpreter:  c.settings.Interpreter,
		PreTaskHook:  c.settings.PreTaskHook,
		PostTaskHook: c.settings.PostTaskHook,
	}
}

// Get looks up a raw value by a "section.option" query. An option without a
// section prefix is read from [runner].
func (c *Config) Get(query string) (string, error) {
	section, option, found := strings.Cut(query, ".")
	if !found {
		section, option = runnerSection, query
	}

	sec, err := c.file.GetSection(section)
	if err != nil {
		return "", engine.NewConfigError(fmt.Sprintf("no section %q", section), nil).
			WithCode(engine.ErrCodeValidation)
	}
	if !sec.HasKey(option) {
		return "", engine.NewConfigError(fmt.Sprintf("no option %q in section %q", option, section), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return sec.Key(option).String(), nil
}

// DependsOn returns the trimmed dependency names of a task, read from its
// section's depends_on option as a comma-separated list.
func (c *Config) DependsOn(task string) []string {
	sec, err := c.file.GetSection(task)
	if err != nil || !sec.HasKey("depends_on") {
		return nil
	}

	var deps []string
	for _, dep := range strings.Split(sec.Key("depends_on").String(), ",") {
		dep = strings.TrimSpace(dep)
		if dep != "" {
			deps = append(deps, dep)
		}
	}
	return deps
}

// TaskSettings implements engine.SettingsResolver: the task's section is
// overlaid on the global defaults, honoring only the four recognized keys.
func (c *Config) TaskSettings(task string) engine.TaskSettings {
	ts := engine.TaskSettings{
		MaxTime:     c.settings.MaxTime,
		MaxTries:    c.settings.MaxTries,
		SleepTime:   c.settings.SleepTime,
		Interpreter: c.settings.Interpreter,
	}

	sec, err := c.file.GetSection(task)
	if err != nil {
		return ts
	}
	if sec.HasKey("max_time") {
		ts.MaxTime = sec.Key("max_time").MustInt(ts.MaxTime)
	}
	if sec.HasKey("max_tries") {
		ts.MaxTries = sec.Key("max_tries").MustInt(ts.MaxTries)
	}
	if sec.HasKey("sleep_time") {
		ts.SleepTime = sec.Key("sleep_time").MustInt(ts.SleepTime)
	}
	if sec.HasKey("interpreter") {
		ts.Interpreter = sec.Key("interpreter").String()
	}
	return ts
}

// Environ implements engine.EnvSource: the orchestrator's own environment
// with the [env] overlay applied, plus any variables exported by the
// env_script. Overlay keys win over inherited ones; script keys win over
// both.
func (c *Config) Environ() ([]string, error) {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	for k, v := range c.overlay() {
		env[k] = v
	}

	if c.settings.EnvScript != "" {
		script, err := os.ReadFile(c.settings.EnvScript)
		if err != nil {
			return nil, engine.NewConfigError("failed to read env_script", err).
				WithCode(engine.ErrCodeValidation)
		}
		exported, err := c.eval.Evaluate(string(script), env)
		if err != nil {
			return nil, err
		}
		for k, v := range exported {
			env[k] = v
		}
	}

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out, nil
}

// overlay returns the [env] section as a map.
func (c *Config) overlay() map[string]string {
	sec, err := c.file.GetSection(envSection)
	if err != nil {
		return nil
	}
	return sec.KeysHash()
}
