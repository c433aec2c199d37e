package engine

import (
	"encoding/json"
)

// SplitCommand splits a command template into argv fields, honoring single
// and double quotes so interpreter templates can carry flags with embedded
// whitespace (e.g. `bash -c`). Quote characters are stripped; there is no
// escape processing beyond that.
func SplitCommand(s string) []string {
	var (
		fields  []string
		current []rune
		quote   rune
		inField bool
	)

	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				current = append(current, r)
			}
		case r == '\'' || r == '"':
			quote = r
			inField = true
		case r == ' ' || r == '\t':
			if inField {
				fields = append(fields, string(current))
				current = current[:0]
				inField = false
			}
		default:
			current = append(current, r)
			inField = true
		}
	}
	if inField {
		fields = append(fields, string(current))
	}

	return fields
}

// hookCommand builds the argv for a hook invocation: the hook template
// split into fields, with the JSON payload appended as the sole argument.
func hookCommand(hook string, payload HookPayload) []string {
	data, err := json.Marshal(payload)
	if err != nil {
		// HookPayload only holds strings and ints; this cannot happen.
		data = []byte("{}")
	}
	return append(SplitCommand(hook), string(data))
}
