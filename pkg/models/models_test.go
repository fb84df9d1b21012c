package models

import (
	"context"
	"errors"
	"testing"

	"github.com/chranama/llm-server-sub001/internal/config"
	"github.com/chranama/llm-server-sub001/pkg/backend"
)

func TestRegistry_EagerLoadsAtBootstrap(t *testing.T) {
	fake := backend.NewFake("ok")
	reg := NewRegistry("m1", []Spec{
		{ID: "m1", Backend: fake, LoadMode: config.LoadModeEager, Capabilities: map[string]bool{}},
	})

	if err := reg.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if !reg.Ready() {
		t.Error("expected eager model to be ready after bootstrap")
	}
}

func TestRegistry_OffModelFailsToResolve(t *testing.T) {
	fake := backend.NewFake("ok")
	reg := NewRegistry("m1", []Spec{
		{ID: "m1", Backend: fake, LoadMode: config.LoadModeOff},
	})

	_, _, err := reg.Resolve(context.Background(), "m1")
	if !errors.Is(err, ErrNotLoaded) {
		t.Fatalf("err = %v, want ErrNotLoaded", err)
	}
}

func TestRegistry_LazyLoadsOnFirstUse(t *testing.T) {
	fake := backend.NewFake("ok")
	reg := NewRegistry("m1", []Spec{
		{ID: "m1", Backend: fake, LoadMode: config.LoadModeLazy},
	})

	if reg.Ready() {
		t.Fatal("lazy model should not be ready before first use")
	}
	if _, _, err := reg.Resolve(context.Background(), "m1"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !reg.Ready() {
		t.Error("expected lazy model to be ready after first resolve")
	}
}

func TestRegistry_AdminLoadTransitionsOffModel(t *testing.T) {
	fake := backend.NewFake("ok")
	reg := NewRegistry("m1", []Spec{
		{ID: "m1", Backend: fake, LoadMode: config.LoadModeOff},
	})

	if _, err := reg.AdminLoad(context.Background(), "m1"); err != nil {
		t.Fatalf("AdminLoad: %v", err)
	}
	if !reg.Ready() {
		t.Error("expected model to be ready after AdminLoad")
	}
}

func TestRegistry_AdminLoadEmptyModelIDTargetsDefaultOnly(t *testing.T) {
	fake1 := backend.NewFake("ok")
	fake2 := backend.NewFake("ok")
	reg := NewRegistry("m1", []Spec{
		{ID: "m1", Backend: fake1, LoadMode: config.LoadModeOff},
		{ID: "m2", Backend: fake2, LoadMode: config.LoadModeOff},
	})

	resolved, err := reg.AdminLoad(context.Background(), "")
	if err != nil {
		t.Fatalf("AdminLoad: %v", err)
	}
	if resolved != "m1" {
		t.Errorf("resolved = %q, want default model m1", resolved)
	}

	loaded := map[string]bool{}
	for _, info := range reg.List() {
		loaded[info.ID] = info.Loaded
	}
	if !loaded["m1"] {
		t.Error("expected m1 to be loaded")
	}
	if loaded["m2"] {
		t.Error("expected m2 to remain unloaded")
	}
}

func TestRegistry_UnknownModel(t *testing.T) {
	reg := NewRegistry("m1", []Spec{{ID: "m1", Backend: backend.NewFake("ok"), LoadMode: config.LoadModeEager}})
	if _, _, err := reg.Resolve(context.Background(), "nope"); !errors.Is(err, ErrUnknownModel) {
		t.Fatalf("err = %v, want ErrUnknownModel", err)
	}
}

func TestRegistry_DefaultModelUsedWhenEmpty(t *testing.T) {
	fake := backend.NewFake("ok")
	reg := NewRegistry("m1", []Spec{{ID: "m1", Backend: fake, LoadMode: config.LoadModeEager}})

	b, spec, err := reg.Resolve(context.Background(), "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if b == nil || spec.ID != "m1" {
		t.Fatalf("expected default model m1, got spec=%+v", spec)
	}
}
