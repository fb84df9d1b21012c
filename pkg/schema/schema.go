// Package schema loads and caches named JSON Schema documents from a
// directory (C2), validating each as Draft 2020-12 on first use.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrNotFound indicates no schema file exists for the given id.
var ErrNotFound = fmt.Errorf("schema not found")

// Summary is the list-view projection of a schema, per spec.md §6.
type Summary struct {
	SchemaID    string `json:"schema_id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// entry caches a compiled schema plus its raw document for full-document reads.
type entry struct {
	raw      map[string]any
	compiled *jsonschema.Schema
}

// Registry loads *.json schema documents from dir by stem name, lazily, and
// caches both the raw document and its compiled Draft 2020-12 form.
type Registry struct {
	dir string

	mu    sync.RWMutex
	cache map[string]*entry
}

// NewRegistry creates a Registry rooted at dir. Nothing is read until the
// first List/Document/Compiled call for a given schema id (write-through cache;
// double-load on a race is acceptable since compilation is idempotent).
func NewRegistry(dir string) *Registry {
	return &Registry{dir: dir, cache: make(map[string]*entry)}
}

// List scans the schema directory and returns a Summary per *.json file.
// Each file is parsed enough to read its top-level "title"/"description".
func (r *Registry) List() ([]Summary, error) {
	files, err := filepath.Glob(filepath.Join(r.dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("listing schemas: %w", err)
	}

	summaries := make([]Summary, 0, len(files))
	for _, f := range files {
		id := stem(f)
		e, err := r.load(id)
		if err != nil {
			continue
		}
		s := Summary{SchemaID: id}
		if t, ok := e.raw["title"].(string); ok {
			s.Title = t
		}
		if d, ok := e.raw["description"].(string); ok {
			s.Description = d
		}
		summaries = append(summaries, s)
	}
	return summaries, nil
}

// Document returns the full, raw JSON Schema document for id.
func (r *Registry) Document(id string) (map[string]any, error) {
	e, err := r.load(id)
	if err != nil {
		return nil, err
	}
	return e.raw, nil
}

// Compiled returns the compiled Draft 2020-12 schema for id, used by the
// extraction engine's validate step.
func (r *Registry) Compiled(id string) (*jsonschema.Schema, error) {
	e, err := r.load(id)
	if err != nil {
		return nil, err
	}
	return e.compiled, nil
}

func (r *Registry) load(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.cache[id]
	r.mu.RUnlock()
	if ok {
		return e, nil
	}

	path := filepath.Join(r.dir, id+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading schema %s: %w", id, err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", id, err)
	}

	compiler := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema %s: %w", id, err)
	}
	resourceURL := "mem://" + id + ".json"
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("loading schema %s: %w", id, err)
	}
	compiled, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compiling schema %s: %w", id, err)
	}

	e = &entry{raw: raw, compiled: compiled}

	r.mu.Lock()
	r.cache[id] = e
	r.mu.Unlock()

	return e, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}
