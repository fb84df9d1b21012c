package apikey

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chranama/llm-server-sub001/internal/httpserver"
)

// Handler provides HTTP handlers for the admin API keys API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler creates an API key Handler backed by the given global pool.
func NewHandler(logger *slog.Logger, pool *pgxpool.Pool) *Handler {
	return &Handler{
		logger:  logger,
		service: NewService(pool, logger),
	}
}

// Routes returns a chi.Router with all admin API key routes mounted. The
// caller is expected to guard it with auth.RequireRole(auth.RoleAdmin).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Post("/{id}/deactivate", h.handleDeactivate)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	resp, err := h.service.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httpserver.RespondAppError(w, r, httpserver.NewAppError(http.StatusBadRequest, "bad_request", "unknown role: "+req.Role))
			return
		}
		h.logger.Error("creating api key", "error", err)
		httpserver.RespondAppError(w, r, httpserver.ErrInternal("failed to create api key"))
		return
	}

	httpserver.Respond(w, http.StatusCreated, resp)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("listing api keys", "error", err)
		httpserver.RespondAppError(w, r, httpserver.ErrInternal("failed to list api keys"))
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{
		"keys":  items,
		"count": len(items),
	})
}

func (h *Handler) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondAppError(w, r, httpserver.NewAppError(http.StatusBadRequest, "bad_request", "invalid api key ID"))
		return
	}

	if err := h.service.Deactivate(r.Context(), keyID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondAppError(w, r, httpserver.NewAppError(http.StatusNotFound, "not_found", "api key not found"))
			return
		}
		h.logger.Error("deactivating api key", "error", err, "id", keyID)
		httpserver.RespondAppError(w, r, httpserver.ErrInternal("failed to deactivate api key"))
		return
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
