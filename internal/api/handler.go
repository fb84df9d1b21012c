// Package api implements the public /v1 HTTP surface: model and schema
// listings, generate/batch/extract, and the admin model-load operation. It
// is a thin decode/validate/respond shell around pkg/pipeline.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chranama/llm-server-sub001/internal/auth"
	"github.com/chranama/llm-server-sub001/internal/httpserver"
	"github.com/chranama/llm-server-sub001/pkg/capability"
	"github.com/chranama/llm-server-sub001/pkg/models"
	"github.com/chranama/llm-server-sub001/pkg/pipeline"
	"github.com/chranama/llm-server-sub001/pkg/policy"
	"github.com/chranama/llm-server-sub001/pkg/schema"
)

// Handler serves the gateway's domain endpoints.
type Handler struct {
	logger     *slog.Logger
	pipeline   *pipeline.Pipeline
	models     *models.Registry
	schemas    *schema.Registry
	deployment map[string]bool
	policyPath string
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, p *pipeline.Pipeline, reg *models.Registry, schemas *schema.Registry, deployment map[string]bool, policyPath string) *Handler {
	return &Handler{
		logger:     logger,
		pipeline:   p,
		models:     reg,
		schemas:    schemas,
		deployment: deployment,
		policyPath: policyPath,
	}
}

// Routes mounts every /v1 domain route. The caller mounts this under the
// authenticated APIRouter.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/models", h.handleListModels)
	r.Get("/schemas", h.handleListSchemas)
	r.Get("/schemas/{id}", h.handleGetSchema)
	r.Post("/generate", h.handleGenerate)
	r.Post("/generate/batch", h.handleGenerateBatch)
	r.Post("/extract", h.handleExtract)
	r.Route("/admin/models", func(r chi.Router) {
		r.Use(auth.RequireRole(auth.RoleAdmin))
		r.Get("/", h.handleAdminListModels)
		r.Post("/load", h.handleAdminLoadModel)
	})
	return r
}

// cacheOrDefault applies spec.md §4.5's default: cache defaults to true,
// opt-out is per-request. A nil pointer means the client omitted the field.
func cacheOrDefault(cache *bool) bool {
	if cache == nil {
		return true
	}
	return *cache
}

type modelInfo struct {
	ID                     string          `json:"id"`
	Loaded                 bool            `json:"loaded"`
	LoadMode               string          `json:"load_mode"`
	Capabilities           map[string]bool `json:"capabilities"`
	DeploymentCapabilities map[string]bool `json:"deployment_capabilities"`
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	snapshot := policy.Load(h.policyPath)
	infos := h.models.List()

	out := make([]modelInfo, 0, len(infos))
	for _, info := range infos {
		effective, _ := capability.Resolve(h.deployment, info.Capabilities, snapshot, info.ID)
		out = append(out, modelInfo{
			ID:                     info.ID,
			Loaded:                 info.Loaded,
			LoadMode:               string(info.LoadMode),
			Capabilities:           effective,
			DeploymentCapabilities: h.deployment,
		})
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"models": out})
}

func (h *Handler) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.schemas.List()
	if err != nil {
		h.logger.Error("listing schemas", "error", err)
		httpserver.RespondAppError(w, r, httpserver.ErrInternal("failed to list schemas"))
		return
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"schemas": summaries})
}

func (h *Handler) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := h.schemas.Document(id)
	if err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			httpserver.RespondAppError(w, r, httpserver.ErrSchemaNotFound(id))
			return
		}
		httpserver.RespondAppError(w, r, httpserver.ErrSchemaLoadFailed(id, err))
		return
	}
	httpserver.Respond(w, http.StatusOK, doc)
}

type generateRequestBody struct {
	Prompt       string  `json:"prompt" validate:"required"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	Model        string  `json:"model"`
	Cache        *bool   `json:"cache"`
}

func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body generateRequestBody
	if !httpserver.DecodeAndValidate(w, r, &body) {
		return
	}

	identity := auth.FromContext(r.Context())
	requestID := httpserver.RequestIDFromContext(r.Context())

	result, err := h.pipeline.Generate(r.Context(), identity, requestID, pipeline.GenerateRequest{
		Prompt:       body.Prompt,
		MaxNewTokens: body.MaxNewTokens,
		Temperature:  body.Temperature,
		Model:        body.Model,
		Cache:        cacheOrDefault(body.Cache),
	})
	if err != nil {
		httpserver.RespondError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"output":     result.Output,
		"model":      result.Model,
		"cached":     result.Cached,
		"latency_ms": result.LatencyMS,
	})
}

type generateBatchRequestBody struct {
	Prompts      []string `json:"prompts" validate:"required,min=1"`
	MaxNewTokens int      `json:"max_new_tokens"`
	Temperature  float64  `json:"temperature"`
	Model        string   `json:"model"`
	Cache        *bool    `json:"cache"`
}

type batchItemResponse struct {
	Output    string `json:"output,omitempty"`
	Cached    bool   `json:"cached"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

func (h *Handler) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	var body generateBatchRequestBody
	if !httpserver.DecodeAndValidate(w, r, &body) {
		return
	}

	identity := auth.FromContext(r.Context())
	requestID := httpserver.RequestIDFromContext(r.Context())

	items, err := h.pipeline.GenerateBatch(r.Context(), identity, requestID, body.Model, body.Prompts, body.MaxNewTokens, body.Temperature, cacheOrDefault(body.Cache))
	if err != nil {
		httpserver.RespondError(w, r, err)
		return
	}

	out := make([]batchItemResponse, len(items))
	for i, item := range items {
		resp := batchItemResponse{Output: item.Output, Cached: item.Cached, LatencyMS: item.LatencyMS}
		if item.Error != nil {
			resp.Code = item.Error.Code
			resp.Message = item.Error.Message
		}
		out[i] = resp
	}
	httpserver.Respond(w, http.StatusOK, map[string]any{"results": out})
}

type extractRequestBody struct {
	SchemaID     string  `json:"schema_id" validate:"required"`
	Text         string  `json:"text" validate:"required"`
	Model        string  `json:"model"`
	Cache        *bool   `json:"cache"`
	Repair       bool    `json:"repair"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

func (h *Handler) handleExtract(w http.ResponseWriter, r *http.Request) {
	var body extractRequestBody
	if !httpserver.DecodeAndValidate(w, r, &body) {
		return
	}

	identity := auth.FromContext(r.Context())
	requestID := httpserver.RequestIDFromContext(r.Context())

	result, err := h.pipeline.Extract(r.Context(), identity, requestID, pipeline.ExtractRequest{
		SchemaID:     body.SchemaID,
		Text:         body.Text,
		Model:        body.Model,
		Repair:       body.Repair,
		Cache:        cacheOrDefault(body.Cache),
		MaxNewTokens: body.MaxNewTokens,
		Temperature:  body.Temperature,
	})
	if err != nil {
		httpserver.RespondError(w, r, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"schema_id":        result.SchemaID,
		"data":             result.Data,
		"model":            result.Model,
		"repair_attempted": result.RepairAttempted,
		"latency_ms":       result.LatencyMS,
	})
}

func (h *Handler) handleAdminListModels(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]any{"models": h.models.List()})
}

// adminLoadModelRequestBody's model is optional: an empty/omitted model
// targets the registry's configured default model only, matching the
// original implementation's demonstrated behavior (loading the default
// model leaves sibling models untouched).
type adminLoadModelRequestBody struct {
	Model string `json:"model"`
}

func (h *Handler) handleAdminLoadModel(w http.ResponseWriter, r *http.Request) {
	var body adminLoadModelRequestBody
	if !httpserver.DecodeAndValidate(w, r, &body) {
		return
	}

	resolved, err := h.models.AdminLoad(r.Context(), body.Model)
	if err != nil {
		if errors.Is(err, models.ErrUnknownModel) {
			httpserver.RespondAppError(w, r, httpserver.NewAppError(http.StatusBadRequest, "bad_request", "unknown model: "+body.Model))
			return
		}
		h.logger.Error("loading model", "model", resolved, "error", err)
		httpserver.RespondAppError(w, r, httpserver.ErrInternal("failed to load model"))
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"ok": true, "default_model": resolved, "models": h.models.List()})
}
