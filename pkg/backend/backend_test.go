package backend

import (
	"context"
	"testing"
)

func TestFake_CyclesThenHoldsLastOutput(t *testing.T) {
	f := NewFake("first", "second")
	ctx := context.Background()

	out, err := f.Generate(ctx, "p", Params{})
	if err != nil || out != "first" {
		t.Fatalf("call 1 = %q, %v; want %q, nil", out, err, "first")
	}
	out, err = f.Generate(ctx, "p", Params{})
	if err != nil || out != "second" {
		t.Fatalf("call 2 = %q, %v; want %q, nil", out, err, "second")
	}
	out, err = f.Generate(ctx, "p", Params{})
	if err != nil || out != "second" {
		t.Fatalf("call 3 = %q, %v; want repeated last output %q", out, err, "second")
	}
	if f.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", f.Calls())
	}
}

func TestFake_RespectsCancellation(t *testing.T) {
	f := NewFake("x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.Generate(ctx, "p", Params{}); err == nil {
		t.Error("expected an error from a cancelled context")
	}
}
