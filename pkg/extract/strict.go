package extract

import (
	"encoding/json"
	"strings"
)

// ValidateStrictJSON rejects anything callers demanding raw JSON should not
// accept: empty/whitespace input, code-fenced input, trailing garbage after
// the value, the non-finite literals, and non-object top-level values. All
// failures share the invalid_json code.
func ValidateStrictJSON(s string) (map[string]any, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, &Error{Code: "invalid_json", Status: 422, Stage: StageParse}
	}
	if strings.HasPrefix(trimmed, "```") {
		return nil, &Error{Code: "invalid_json", Status: 422, Stage: StageParse}
	}
	for _, lit := range []string{"NaN", "Infinity", "-Infinity"} {
		if strings.Contains(trimmed, lit) {
			return nil, &Error{Code: "invalid_json", Status: 422, Stage: StageParse}
		}
	}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, &Error{Code: "invalid_json", Status: 422, Stage: StageParse}
	}
	if dec.More() {
		return nil, &Error{Code: "invalid_json", Status: 422, Stage: StageParse}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &Error{Code: "invalid_json", Status: 422, Stage: StageParse}
	}
	return obj, nil
}
