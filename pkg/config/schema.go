package config

import (
	"fmt"
	"strconv"

	"cuelang.org/go/cue/cuecontext"
	"github.com/go-ini/ini"

	"github.com/taskloop/taskloop/pkg/engine"
)

// runnerSchema constrains the [runner] section. Unknown options are
// rejected so typos fail loudly instead of silently falling back to a
// default.
const runnerSchema = `
close({
	max_time?:       int & >=0
	max_tries?:      int & >0
	sleep_time?:     int & >=0
	interpreter?:    string
	halt_task?:      string & !=""
	pre_task_hook?:  string
	post_task_hook?: string
	env_script?:     string
})
`

// taskSchema constrains a per-task section. Options outside the recognized
// set are allowed and ignored, matching the overlay semantics.
const taskSchema = `
{
	depends_on?:  string
	max_time?:    int & >=0
	max_tries?:   int & >0
	sleep_time?:  int & >=0
	interpreter?: string
	...
}
`

// validateSchema checks every section of the file against its CUE schema.
func validateSchema(file *ini.File) error {
	ctx := cuecontext.New()

	runner := ctx.CompileString(runnerSchema)
	if err := runner.Err(); err != nil {
		return engine.NewInternalError("failed to compile runner schema", err)
	}
	task := ctx.CompileString(taskSchema)
	if err := task.Err(); err != nil {
		return engine.NewInternalError("failed to compile task schema", err)
	}

	for _, sec := range file.Sections() {
		switch sec.Name() {
		case ini.DefaultSection, envSection:
			continue
		}

		schema := task
		if sec.Name() == runnerSection {
			schema = runner
		}

		val := ctx.Encode(sectionValues(sec))
		if err := val.Err(); err != nil {
			return engine.NewInternalError(fmt.Sprintf("failed to encode section %q", sec.Name()), err)
		}
		if err := schema.Unify(val).Validate(); err != nil {
			return engine.NewConfigError(fmt.Sprintf("invalid section [%s]", sec.Name()), err).
				WithCode(engine.ErrCodeValidation)
		}
	}
	return nil
}

// numericOptions are the options whose values must parse as integers.
var numericOptions = map[string]bool{
	"max_time":   true,
	"max_tries":  true,
	"sleep_time": true,
}

// sectionValues converts a section to a map, turning the numeric options
// into ints so the schema's numeric constraints apply. A numeric option
// that does not parse is passed through as a string and rejected by the
// schema.
func sectionValues(sec *ini.Section) map[string]any {
	values := make(map[string]any, len(sec.Keys()))
	for k, v := range sec.KeysHash() {
		if numericOptions[k] {
			if n, err := strconv.Atoi(v); err == nil {
				values[k] = n
				continue
			}
		}
		values[k] = v
	}
	return values
}
