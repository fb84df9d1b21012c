// Package extract implements the extraction state machine (C11):
// generate -> parse -> validate -> optional repair -> done/fail.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/chranama/llm-server-sub001/pkg/backend"
	"github.com/chranama/llm-server-sub001/pkg/cache"
	"github.com/chranama/llm-server-sub001/pkg/schema"
)

// FailureStage labels which step of the state machine rejected the attempt.
type FailureStage string

const (
	StageParse           FailureStage = "parse"
	StageValidate        FailureStage = "validate"
	StageRepairParse     FailureStage = "repair_parse"
	StageRepairValidate  FailureStage = "repair_validate"
)

// Error carries the HTTP code and status the caller should surface.
type Error struct {
	Code    string
	Status  int
	Stage   FailureStage
	Details []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Details)
}

// Request is one extraction attempt's inputs.
type Request struct {
	SchemaID string
	Text     string
	Repair   bool
	Cache    bool
	Params   backend.Params
	// Timeout bounds each backend call this attempt makes. Zero means no
	// deadline is imposed beyond ctx's own.
	Timeout time.Duration
}

// Result is a successful extraction.
type Result struct {
	Data            map[string]any
	RepairAttempted bool
}

var delimited = regexp.MustCompile(`(?s)<<<JSON>>>(.*?)<<<END>>>`)

// Run executes the state machine against be for a resolved schema. cch may be
// nil (cache disabled for this deployment); req.Cache gates whether this
// attempt's backend calls go through it (spec.md §4.5, "cache is consulted
// only when the request declares cache=true").
func Run(ctx context.Context, reg *schema.Registry, be backend.Backend, cch *cache.Cache, modelID string, req Request) (*Result, error) {
	compiled, err := reg.Compiled(req.SchemaID)
	if err != nil {
		if err == schema.ErrNotFound {
			return nil, &Error{Code: "schema_not_found", Status: 404, Details: []string{err.Error()}}
		}
		return nil, &Error{Code: "schema_load_failed", Status: 500, Details: []string{err.Error()}}
	}

	prompt := extractionPrompt(req.Text, req.SchemaID)
	output, err := generate(ctx, cch, be, modelID, prompt, req.Params, req.Cache, req.Timeout)
	if err != nil {
		return nil, fmt.Errorf("generating: %w", err)
	}

	data, stage, verrs := parseAndValidate(output, compiled)
	if data != nil {
		return &Result{Data: data}, nil
	}

	if !req.Repair {
		return nil, stageError(stage, verrs)
	}

	repairPrompt := repairPrompt(req.Text, req.SchemaID, stage, verrs)
	output2, err := generate(ctx, cch, be, modelID, repairPrompt, req.Params, req.Cache, req.Timeout)
	if err != nil {
		return nil, fmt.Errorf("generating repair: %w", err)
	}

	data2, stage2, verrs2 := parseAndValidate(output2, compiled)
	if data2 != nil {
		return &Result{Data: data2, RepairAttempted: true}, nil
	}

	repairStage := StageRepairParse
	if stage2 == StageValidate {
		repairStage = StageRepairValidate
	}
	return nil, stageError(repairStage, verrs2)
}

// generate invokes be directly, or through cch's single-flight GetOrCompute
// when useCache is set and a cache is configured for this deployment. Each
// actual backend call is bounded by timeout, per spec.md §5's per-request
// backend maximum.
func generate(ctx context.Context, cch *cache.Cache, be backend.Backend, modelID, prompt string, params backend.Params, useCache bool, timeout time.Duration) (string, error) {
	call := func(ctx context.Context) (string, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return be.Generate(ctx, prompt, params)
	}
	if cch == nil || !useCache {
		return call(ctx)
	}
	fingerprint := cache.Fingerprint(modelID, prompt, params.MaxNewTokens, params.Temperature)
	out, _, err := cch.GetOrCompute(ctx, fingerprint, modelID, call)
	return out, err
}

func stageError(stage FailureStage, verrs []string) *Error {
	switch stage {
	case StageParse, StageRepairParse:
		return &Error{Code: "invalid_json", Status: 422, Stage: stage}
	default:
		return &Error{Code: "schema_validation_failed", Status: 422, Stage: stage, Details: verrs}
	}
}

// parseAndValidate returns (data, stage, errs). data is non-nil only on
// success. stage reflects the furthest point reached: parse failed entirely,
// or validate was reached but no candidate passed.
func parseAndValidate(output string, compiled *jsonschema.Schema) (map[string]any, FailureStage, []string) {
	candidates := candidateObjects(output)
	if len(candidates) == 0 {
		return nil, StageParse, nil
	}

	var lastErrs []string
	for _, c := range candidates {
		if err := compiled.Validate(c); err == nil {
			return c, "", nil
		} else {
			lastErrs = []string{err.Error()}
		}
	}
	return nil, StageValidate, lastErrs
}

// candidateObjects returns, in preference order, the delimited object (if
// present and valid JSON) followed by every brace-balanced object substring
// found by scanning the text left to right. Arrays and scalars are ignored.
func candidateObjects(output string) []map[string]any {
	var out []map[string]any

	if m := delimited.FindStringSubmatch(output); m != nil {
		if obj, ok := parseObject(m[1]); ok {
			out = append(out, obj)
		}
	}

	for _, s := range braceBalancedSubstrings(output) {
		if obj, ok := parseObject(s); ok {
			out = append(out, obj)
		}
	}
	return out
}

func parseObject(s string) (map[string]any, bool) {
	var v any
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(s)))
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func braceBalancedSubstrings(s string) []string {
	var out []string
	depth := 0
	start := -1
	for i, r := range s {
		switch r {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 {
					out = append(out, s[start:i+1])
					start = -1
				}
			}
		}
	}
	return out
}

func extractionPrompt(text, schemaID string) string {
	return fmt.Sprintf("Extract fields matching schema %q from the following text. Respond with a JSON object wrapped in <<<JSON>>> and <<<END>>>.\n\nText:\n%s", schemaID, text)
}

func repairPrompt(text, schemaID string, stage FailureStage, verrs []string) string {
	var reason string
	switch stage {
	case StageParse:
		reason = "the previous response did not contain a parseable JSON object"
	case StageValidate:
		reason = fmt.Sprintf("the previous response did not satisfy the schema: %s", strings.Join(verrs, "; "))
	}
	return fmt.Sprintf("Your previous attempt to extract fields matching schema %q failed: %s. Try again. Respond with a JSON object wrapped in <<<JSON>>> and <<<END>>>.\n\nText:\n%s", schemaID, reason, text)
}
