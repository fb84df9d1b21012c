package extract

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chranama/llm-server-sub001/pkg/backend"
	"github.com/chranama/llm-server-sub001/pkg/schema"
)

func newTestRegistry(t *testing.T, schemaJSON string) *schema.Registry {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "ticket_v1.json"), []byte(schemaJSON), 0o644); err != nil {
		t.Fatalf("writing schema fixture: %v", err)
	}
	return schema.NewRegistry(dir)
}

const ticketSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["id"],
	"properties": {"id": {"type": "string"}}
}`

func TestRun_DelimitedSuccess(t *testing.T) {
	reg := newTestRegistry(t, ticketSchema)
	be := backend.NewFake(`<<<JSON>>>{"id":"abc"}<<<END>>>`)

	res, err := Run(context.Background(), reg, be, nil, "test-model", Request{SchemaID: "ticket_v1", Text: "ticket abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Data["id"] != "abc" || res.RepairAttempted {
		t.Errorf("got %+v", res)
	}
}

func TestRun_BraceBalancedFallback(t *testing.T) {
	reg := newTestRegistry(t, ticketSchema)
	be := backend.NewFake(`here is your object: {"id":"xyz"} thanks`)

	res, err := Run(context.Background(), reg, be, nil, "test-model", Request{SchemaID: "ticket_v1", Text: "ticket xyz"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Data["id"] != "xyz" {
		t.Errorf("got %+v", res)
	}
}

func TestRun_InvalidJSONWithoutRepair(t *testing.T) {
	reg := newTestRegistry(t, ticketSchema)
	be := backend.NewFake("not json at all")

	_, err := Run(context.Background(), reg, be, nil, "test-model", Request{SchemaID: "ticket_v1", Text: "x"})
	extractErr, ok := err.(*Error)
	if !ok || extractErr.Code != "invalid_json" || extractErr.Status != 422 {
		t.Fatalf("expected invalid_json 422, got %v", err)
	}
}

func TestRun_SchemaValidationFailedWithoutRepair(t *testing.T) {
	reg := newTestRegistry(t, ticketSchema)
	be := backend.NewFake(`{"wrong_field": 1}`)

	_, err := Run(context.Background(), reg, be, nil, "test-model", Request{SchemaID: "ticket_v1", Text: "x"})
	extractErr, ok := err.(*Error)
	if !ok || extractErr.Code != "schema_validation_failed" || extractErr.Status != 422 {
		t.Fatalf("expected schema_validation_failed 422, got %v", err)
	}
}

func TestRun_RepairSucceedsAfterParseFailure(t *testing.T) {
	reg := newTestRegistry(t, ticketSchema)
	be := backend.NewFake("not json", `<<<JSON>>>{"id":"repaired"}<<<END>>>`)

	res, err := Run(context.Background(), reg, be, nil, "test-model", Request{SchemaID: "ticket_v1", Text: "ticket id repaired", Repair: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Data["id"] != "repaired" || !res.RepairAttempted {
		t.Errorf("got %+v", res)
	}
	if be.Calls() != 2 {
		t.Errorf("expected exactly 2 backend calls, got %d", be.Calls())
	}
}

func TestRun_RepairStillFailsSurfacesRepairStage(t *testing.T) {
	reg := newTestRegistry(t, ticketSchema)
	be := backend.NewFake("not json", "still not json")

	_, err := Run(context.Background(), reg, be, nil, "test-model", Request{SchemaID: "ticket_v1", Text: "x", Repair: true})
	extractErr, ok := err.(*Error)
	if !ok || extractErr.Stage != StageRepairParse {
		t.Fatalf("expected repair_parse stage, got %v", err)
	}
}

func TestRun_SchemaNotFound(t *testing.T) {
	reg := newTestRegistry(t, ticketSchema)
	be := backend.NewFake("irrelevant")

	_, err := Run(context.Background(), reg, be, nil, "test-model", Request{SchemaID: "does_not_exist", Text: "x"})
	extractErr, ok := err.(*Error)
	if !ok || extractErr.Code != "schema_not_found" || extractErr.Status != 404 {
		t.Fatalf("expected schema_not_found 404, got %v", err)
	}
}

func TestRun_IgnoresArraysAndScalars(t *testing.T) {
	reg := newTestRegistry(t, ticketSchema)
	be := backend.NewFake(`[1,2,3] "a scalar" {"id":"found-it"}`)

	res, err := Run(context.Background(), reg, be, nil, "test-model", Request{SchemaID: "ticket_v1", Text: "x"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Data["id"] != "found-it" {
		t.Errorf("got %+v", res)
	}
}
