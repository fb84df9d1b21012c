package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeSchema(t *testing.T, dir, id, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".json"), []byte(body), 0o644); err != nil {
		t.Fatalf("writing schema fixture: %v", err)
	}
}

func TestRegistry_DocumentAndCompiled(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "ticket_v1", `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"title": "Ticket",
		"type": "object",
		"required": ["id"],
		"properties": {"id": {"type": "string"}}
	}`)

	reg := NewRegistry(dir)

	doc, err := reg.Document("ticket_v1")
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc["title"] != "Ticket" {
		t.Errorf("title = %v, want Ticket", doc["title"])
	}

	compiled, err := reg.Compiled("ticket_v1")
	if err != nil {
		t.Fatalf("Compiled: %v", err)
	}
	if err := compiled.Validate(map[string]any{"id": "abc"}); err != nil {
		t.Errorf("expected valid document to pass, got %v", err)
	}
	if err := compiled.Validate(map[string]any{}); err == nil {
		t.Error("expected missing required field to fail validation")
	}
}

func TestRegistry_NotFound(t *testing.T) {
	reg := NewRegistry(t.TempDir())
	if _, err := reg.Document("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRegistry_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "broken", `{not valid json`)

	reg := NewRegistry(dir)
	if _, err := reg.Document("broken"); err == nil {
		t.Error("expected an error for malformed schema JSON")
	}
}

func TestRegistry_List(t *testing.T) {
	dir := t.TempDir()
	writeSchema(t, dir, "a", `{"title": "A", "type": "object"}`)
	writeSchema(t, dir, "b", `{"title": "B", "type": "object"}`)

	reg := NewRegistry(dir)
	summaries, err := reg.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("len(summaries) = %d, want 2", len(summaries))
	}
}
