// Package pipeline composes the admission checks and execution steps shared
// by every public endpoint (C12): rate limit, capability, quota,
// concurrency, model bind, cache/backend or extraction engine, log.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chranama/llm-server-sub001/internal/auth"
	"github.com/chranama/llm-server-sub001/internal/httpserver"
	"github.com/chranama/llm-server-sub001/pkg/backend"
	"github.com/chranama/llm-server-sub001/pkg/cache"
	"github.com/chranama/llm-server-sub001/pkg/capability"
	"github.com/chranama/llm-server-sub001/pkg/concurrency"
	"github.com/chranama/llm-server-sub001/pkg/extract"
	"github.com/chranama/llm-server-sub001/pkg/inferencelog"
	"github.com/chranama/llm-server-sub001/pkg/models"
	"github.com/chranama/llm-server-sub001/pkg/policy"
	"github.com/chranama/llm-server-sub001/pkg/quota"
	"github.com/chranama/llm-server-sub001/pkg/ratelimit"
	"github.com/chranama/llm-server-sub001/pkg/schema"
)

// QuotaChecker is the quota-ledger contract the pipeline depends on, narrowed
// from *quota.Ledger so tests can substitute an in-memory double instead of a
// live connection pool.
type QuotaChecker interface {
	CheckAndConsume(ctx context.Context, apiKeyID uuid.UUID) error
}

// LogWriter is the inference-log writer contract the pipeline depends on,
// narrowed from *inferencelog.Writer for the same reason.
type LogWriter interface {
	Log(entry inferencelog.Entry)
}

// Pipeline composes C2-C11 in the ordering spec.md §4.8 requires.
type Pipeline struct {
	Deployment map[string]bool
	PolicyPath string

	// BackendTimeout bounds each individual backend call. Zero means no
	// deadline is imposed beyond the request's own context.
	BackendTimeout time.Duration

	Models  *models.Registry
	Schemas *schema.Registry
	Cache   *cache.Cache
	Limiter *ratelimit.Limiter
	Quota   QuotaChecker
	Gate    *concurrency.Gate
	Logs    LogWriter
}

// GenerateRequest is the decoded body of POST /v1/generate (and, per item,
// /v1/generate/batch).
type GenerateRequest struct {
	Prompt       string
	MaxNewTokens int
	Temperature  float64
	Model        string
	Cache        bool
}

// GenerateResult is the response payload for a successful generate call.
type GenerateResult struct {
	Output    string
	Model     string
	Cached    bool
	LatencyMS int64
}

// Generate runs the full admission and execution pipeline for a single
// completion request.
func (p *Pipeline) Generate(ctx context.Context, identity *auth.Identity, requestID string, req GenerateRequest) (*GenerateResult, error) {
	start := time.Now()
	modelID := req.Model
	if modelID == "" {
		modelID = p.Models.DefaultModel()
	}

	release, appErr := p.admit(ctx, identity, requestID, "/v1/generate", "generate", modelID)
	if appErr != nil {
		p.logTerminal(ctx, requestID, identity, "/v1/generate", modelID, start, appErr, false)
		return nil, appErr
	}
	defer release()

	be, spec, err := p.Models.Resolve(ctx, modelID)
	if err != nil {
		appErr := bindModelError(err, modelID)
		p.logTerminal(ctx, requestID, identity, "/v1/generate", modelID, start, appErr, false)
		return nil, appErr
	}
	modelID = spec.ID

	output, cached, err := p.executeGenerate(ctx, be, modelID, req)
	if err != nil {
		appErr := httpserver.ErrInternal(err.Error())
		p.logTerminal(ctx, requestID, identity, "/v1/generate", modelID, start, appErr, cached)
		return nil, appErr
	}

	latency := time.Since(start)
	p.logTerminal(ctx, requestID, identity, "/v1/generate", modelID, start, nil, cached)
	return &GenerateResult{Output: output, Model: modelID, Cached: cached, LatencyMS: latency.Milliseconds()}, nil
}

// BatchItemResult is one element of a batch generate response; failures are
// isolated per item once admission succeeds (spec.md §4.8, last paragraph).
type BatchItemResult struct {
	Output    string
	Cached    bool
	Error     *httpserver.AppError
	LatencyMS int64
}

// GenerateBatch admits the request once for the whole batch, then executes
// each prompt independently: a per-item failure does not abort siblings.
func (p *Pipeline) GenerateBatch(ctx context.Context, identity *auth.Identity, requestID string, modelOverride string, prompts []string, maxNewTokens int, temperature float64, useCache bool) ([]BatchItemResult, error) {
	start := time.Now()
	modelID := modelOverride
	if modelID == "" {
		modelID = p.Models.DefaultModel()
	}

	release, appErr := p.admit(ctx, identity, requestID, "/v1/generate/batch", "generate", modelID)
	if appErr != nil {
		p.logTerminal(ctx, requestID, identity, "/v1/generate/batch", modelID, start, appErr, false)
		return nil, appErr
	}
	defer release()

	be, spec, err := p.Models.Resolve(ctx, modelID)
	if err != nil {
		appErr := bindModelError(err, modelID)
		p.logTerminal(ctx, requestID, identity, "/v1/generate/batch", modelID, start, appErr, false)
		return nil, appErr
	}
	modelID = spec.ID

	results := make([]BatchItemResult, len(prompts))
	anyCached := false
	for i, prompt := range prompts {
		itemStart := time.Now()
		output, cached, err := p.executeGenerate(ctx, be, modelID, GenerateRequest{
			Prompt: prompt, MaxNewTokens: maxNewTokens, Temperature: temperature, Cache: useCache,
		})
		if err != nil {
			results[i] = BatchItemResult{Error: httpserver.ErrInternal(err.Error()), LatencyMS: time.Since(itemStart).Milliseconds()}
			continue
		}
		if cached {
			anyCached = true
		}
		results[i] = BatchItemResult{Output: output, Cached: cached, LatencyMS: time.Since(itemStart).Milliseconds()}
	}

	p.logTerminal(ctx, requestID, identity, "/v1/generate/batch", modelID, start, nil, anyCached)
	return results, nil
}

// ExtractRequest is the decoded body of POST /v1/extract.
type ExtractRequest struct {
	SchemaID     string
	Text         string
	Model        string
	Repair       bool
	Cache        bool
	MaxNewTokens int
	Temperature  float64
}

// ExtractResult is the response payload for a successful extraction.
type ExtractResult struct {
	SchemaID        string
	Data            map[string]any
	Model           string
	RepairAttempted bool
	LatencyMS       int64
}

// Extract runs admission then the C11 extraction state machine. Capability
// is checked before the schema is loaded, so a disabled capability
// short-circuits even an unknown schema_id (spec.md §4.8 step 3).
func (p *Pipeline) Extract(ctx context.Context, identity *auth.Identity, requestID string, req ExtractRequest) (*ExtractResult, error) {
	start := time.Now()
	modelID := req.Model
	if modelID == "" {
		modelID = p.Models.DefaultModel()
	}

	release, appErr := p.admit(ctx, identity, requestID, "/v1/extract", "extract", modelID)
	if appErr != nil {
		p.logTerminal(ctx, requestID, identity, "/v1/extract", modelID, start, appErr, false)
		return nil, appErr
	}
	defer release()

	be, spec, err := p.Models.Resolve(ctx, modelID)
	if err != nil {
		appErr := bindModelError(err, modelID)
		p.logTerminal(ctx, requestID, identity, "/v1/extract", modelID, start, appErr, false)
		return nil, appErr
	}
	modelID = spec.ID

	result, err := extract.Run(ctx, p.Schemas, be, p.Cache, modelID, extract.Request{
		SchemaID: req.SchemaID,
		Text:     req.Text,
		Repair:   req.Repair,
		Cache:    req.Cache,
		Params:   backend.Params{MaxNewTokens: req.MaxNewTokens, Temperature: req.Temperature},
		Timeout:  p.BackendTimeout,
	})
	if err != nil {
		var extractErr *extract.Error
		var appErr *httpserver.AppError
		if errors.As(err, &extractErr) {
			appErr = extractAppError(extractErr)
		} else {
			appErr = httpserver.ErrInternal(err.Error())
		}
		p.logTerminal(ctx, requestID, identity, "/v1/extract", modelID, start, appErr, false)
		return nil, appErr
	}

	latency := time.Since(start)
	p.logTerminal(ctx, requestID, identity, "/v1/extract", modelID, start, nil, false)
	return &ExtractResult{
		SchemaID:        req.SchemaID,
		Data:            result.Data,
		Model:           modelID,
		RepairAttempted: result.RepairAttempted,
		LatencyMS:       latency.Milliseconds(),
	}, nil
}

// admit runs the ordered admission steps (rate limit, capability, quota,
// concurrency) shared by every heavy route. On success it returns a release
// func the caller must defer; on failure it returns the AppError to surface.
func (p *Pipeline) admit(ctx context.Context, identity *auth.Identity, requestID, route, capabilityName, modelID string) (concurrency.Release, *httpserver.AppError) {
	if allowed, retryAfter := p.Limiter.Allow(identity.APIKeyID.String(), identity.RequestsPerMinute); !allowed {
		return nil, httpserver.ErrRateLimited(retryAfter)
	}

	snapshot := policy.Load(p.PolicyPath)
	var modelCaps map[string]bool
	if spec, ok := p.Models.Spec(modelID); ok {
		modelCaps = spec.Capabilities
	}
	granted, denial := capability.Check(capabilityName, p.Deployment, modelCaps, snapshot, modelID)
	if !granted {
		if denial.Kind == capability.DeploymentDenied {
			return nil, httpserver.ErrCapabilityDisabled(capabilityName)
		}
		effective, _ := capability.Resolve(p.Deployment, modelCaps, snapshot, modelID)
		return nil, httpserver.ErrCapabilityNotSupported(effective)
	}

	if err := p.Quota.CheckAndConsume(ctx, identity.APIKeyID); err != nil {
		if errors.Is(err, quota.ErrExhausted) {
			return nil, httpserver.ErrQuotaExhausted()
		}
		return nil, httpserver.ErrInternal(err.Error())
	}

	release, err := p.Gate.Acquire(ctx, requestID, route)
	if err != nil {
		return nil, httpserver.ErrInternal("concurrency gate: " + err.Error())
	}
	return release, nil
}

func (p *Pipeline) executeGenerate(ctx context.Context, be backend.Backend, modelID string, req GenerateRequest) (string, bool, error) {
	params := backend.Params{MaxNewTokens: req.MaxNewTokens, Temperature: req.Temperature}
	call := func(ctx context.Context) (string, error) {
		if p.BackendTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.BackendTimeout)
			defer cancel()
		}
		return be.Generate(ctx, req.Prompt, params)
	}
	if !req.Cache {
		out, err := call(ctx)
		return out, false, err
	}

	fingerprint := cache.Fingerprint(modelID, req.Prompt, req.MaxNewTokens, req.Temperature)
	out, cached, err := p.Cache.GetOrCompute(ctx, fingerprint, modelID, call)
	return out, cached, err
}

func (p *Pipeline) logTerminal(ctx context.Context, requestID string, identity *auth.Identity, route, modelID string, start time.Time, appErr *httpserver.AppError, cached bool) {
	entry := inferencelog.Entry{
		RequestID: requestID,
		Route:     route,
		ModelID:   modelID,
		LatencyMS: int(time.Since(start).Milliseconds()),
		Cached:    cached,
		StatusCode: 200,
	}
	if identity != nil {
		entry.APIKeyID = identity.APIKeyID
	}
	if appErr != nil {
		entry.StatusCode = appErr.Status
		entry.ErrorCode = appErr.Code
	}
	p.Logs.Log(entry)
}

func bindModelError(err error, modelID string) *httpserver.AppError {
	if errors.Is(err, models.ErrUnknownModel) {
		return httpserver.ErrCapabilityNotSupported(map[string]bool{})
	}
	return httpserver.ErrModelNotLoaded(modelID)
}

func extractAppError(e *extract.Error) *httpserver.AppError {
	switch e.Code {
	case "schema_not_found":
		return httpserver.ErrSchemaNotFound("")
	case "schema_load_failed":
		return httpserver.ErrSchemaLoadFailed("", e)
	case "schema_validation_failed":
		return httpserver.ErrSchemaValidationFailed(e.Details)
	default:
		return httpserver.ErrInvalidJSON(e.Error())
	}
}
