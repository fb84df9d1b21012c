// Package models implements the model registry (C3): it maps model IDs to
// backends and enforces the configured load mode.
package models

import (
	"context"
	"fmt"
	"sync"

	"github.com/chranama/llm-server-sub001/internal/config"
	"github.com/chranama/llm-server-sub001/pkg/backend"
)

// ErrNotLoaded indicates the backend is off and has never been administratively loaded.
var ErrNotLoaded = fmt.Errorf("model not loaded")

// ErrUnknownModel indicates the requested model id has no registered spec.
var ErrUnknownModel = fmt.Errorf("unknown model")

// Spec describes one backend's static configuration.
type Spec struct {
	ID           string
	Backend      backend.Backend
	LoadMode     config.LoadMode
	Capabilities map[string]bool
}

type boundModel struct {
	spec Spec

	mu     sync.Mutex
	loaded bool
}

// Registry holds one or many backends indexed by model id (C3), implementing
// httpserver.ReadinessChecker for /readyz and /modelz.
type Registry struct {
	defaultModel string

	mu     sync.RWMutex
	models map[string]*boundModel
}

// NewRegistry constructs a Registry from specs, with defaultModel identifying
// the ModelsConfig.default_model used when a request omits "model".
func NewRegistry(defaultModel string, specs []Spec) *Registry {
	m := make(map[string]*boundModel, len(specs))
	for _, s := range specs {
		m[s.ID] = &boundModel{spec: s}
	}
	return &Registry{defaultModel: defaultModel, models: m}
}

// Bootstrap loads every eager model at startup, and the default model for
// lazy multi-model deployments is left to load on first use per spec.md
// §4.7 ("others load on first bind").
func (r *Registry) Bootstrap(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, bm := range r.models {
		if bm.spec.LoadMode == config.LoadModeEager {
			if err := bm.ensureLoaded(ctx); err != nil {
				return fmt.Errorf("eager-loading model %s: %w", bm.spec.ID, err)
			}
		}
	}
	return nil
}

func (bm *boundModel) ensureLoaded(ctx context.Context) error {
	bm.mu.Lock()
	defer bm.mu.Unlock()
	if bm.loaded {
		return nil
	}
	if bm.spec.LoadMode == config.LoadModeOff {
		return ErrNotLoaded
	}
	if err := bm.spec.Backend.EnsureLoaded(ctx); err != nil {
		return err
	}
	bm.loaded = true
	return nil
}

// Resolve binds modelID (or the default model if empty) to its backend,
// enforcing the load mode. Returns ErrUnknownModel or ErrNotLoaded as
// appropriate; the caller maps these to capability_not_supported /
// model_not_loaded per spec.md §4.8 step 6.
func (r *Registry) Resolve(ctx context.Context, modelID string) (backend.Backend, *Spec, error) {
	if modelID == "" {
		modelID = r.defaultModel
	}

	r.mu.RLock()
	bm, ok := r.models[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, ErrUnknownModel
	}

	if err := bm.ensureLoaded(ctx); err != nil {
		return nil, nil, err
	}
	return bm.spec.Backend, &bm.spec, nil
}

// Spec returns the static spec for modelID without binding its backend, used
// by the capability resolver which needs Capabilities regardless of load state.
func (r *Registry) Spec(modelID string) (*Spec, bool) {
	if modelID == "" {
		modelID = r.defaultModel
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	bm, ok := r.models[modelID]
	if !ok {
		return nil, false
	}
	return &bm.spec, true
}

// DefaultModel returns the configured default model id.
func (r *Registry) DefaultModel() string {
	return r.defaultModel
}

// AdminLoad transitions a model from off to loaded at runtime (spec.md §4.7,
// "an administrative operation may transition from off to loaded"). An empty
// modelID targets the registry's default model only; siblings are left
// untouched.
func (r *Registry) AdminLoad(ctx context.Context, modelID string) (string, error) {
	if modelID == "" {
		modelID = r.defaultModel
	}

	r.mu.Lock()
	bm, ok := r.models[modelID]
	r.mu.Unlock()
	if !ok {
		return modelID, ErrUnknownModel
	}

	bm.mu.Lock()
	if bm.spec.LoadMode == config.LoadModeOff {
		bm.spec.LoadMode = config.LoadModeLazy
	}
	bm.mu.Unlock()

	return modelID, bm.ensureLoaded(ctx)
}

// Info is the per-model projection for GET /v1/models.
type Info struct {
	ID           string          `json:"id"`
	Loaded       bool            `json:"loaded"`
	LoadMode     config.LoadMode `json:"load_mode"`
	Capabilities map[string]bool `json:"capabilities"`
}

// List returns every registered model's info, for GET /v1/models and
// GET /v1/admin/models.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.models))
	for _, bm := range r.models {
		bm.mu.Lock()
		infos = append(infos, Info{
			ID:           bm.spec.ID,
			Loaded:       bm.loaded,
			LoadMode:     bm.spec.LoadMode,
			Capabilities: bm.spec.Capabilities,
		})
		bm.mu.Unlock()
	}
	return infos
}

// Ready reports whether at least one model is loaded, for /readyz when
// require_model_ready is set.
func (r *Registry) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, bm := range r.models {
		bm.mu.Lock()
		loaded := bm.loaded
		bm.mu.Unlock()
		if loaded {
			return true
		}
	}
	return false
}

// Status reports per-model load state for /modelz.
func (r *Registry) Status() map[string]any {
	infos := r.List()
	out := make(map[string]any, len(infos))
	for _, info := range infos {
		out[info.ID] = info
	}
	return out
}
