// Package backend declares the synchronous model-runtime contract the
// gateway calls through, and a fake implementation for tests.
package backend

import "context"

// Params are the sampling parameters that influence a backend's output and
// therefore participate in the cache fingerprint (spec.md §3 CacheKey).
type Params struct {
	MaxNewTokens int
	Temperature  float64
}

// Backend is the external collaborator spec.md §1 assumes: a synchronous
// generate(prompt, params) -> text contract, plus a load-mode hook.
type Backend interface {
	// Generate produces a completion for prompt under params. ctx carries the
	// per-request backend timeout and client cancellation.
	Generate(ctx context.Context, prompt string, params Params) (string, error)

	// EnsureLoaded is a no-op once the backend has loaded; called by the
	// model registry according to the configured load mode.
	EnsureLoaded(ctx context.Context) error
}

// Fake cycles through a fixed list of canned outputs, returning the last one
// repeatedly once exhausted, optionally sleeping before each call. Mirrors
// the Python original's test fixture of the same shape.
type Fake struct {
	Outputs []string
	Delay   func() // optional; called before producing output, nil means no delay
	loaded  bool
	calls   int
}

// NewFake builds a Fake backend that returns outputs in order.
func NewFake(outputs ...string) *Fake {
	return &Fake{Outputs: outputs}
}

func (f *Fake) Generate(ctx context.Context, _ string, _ Params) (string, error) {
	if f.Delay != nil {
		f.Delay()
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if len(f.Outputs) == 0 {
		return "", nil
	}
	idx := f.calls
	if idx >= len(f.Outputs) {
		idx = len(f.Outputs) - 1
	}
	f.calls++
	return f.Outputs[idx], nil
}

func (f *Fake) EnsureLoaded(context.Context) error {
	f.loaded = true
	return nil
}

// Calls reports how many times Generate has been invoked, for tests that
// assert single-flight / cache-hit behavior invoked the backend at most once.
func (f *Fake) Calls() int {
	return f.calls
}
