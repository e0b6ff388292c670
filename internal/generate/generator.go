package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akarpos/glossa/internal/engine"
)

const defaultTimeout = 120 * time.Second

// ChatBackend is the slice of the inference surface the Generator needs.
// Both the local engine and the hosted client satisfy it.
type ChatBackend interface {
	Chat(ctx context.Context, model string, messages []engine.Message, sampling *engine.Sampling) (string, error)
}

// Params carries the sampling settings for reply generation.
type Params struct {
	Temperature  float64
	DoSample     bool
	MaxNewTokens int
}

// Generator produces replies from an inference backend. Each call runs
// under its own deadline; a timed-out call is retried exactly once
// before giving up with ErrTimeout.
type Generator struct {
	backend ChatBackend
	model   string
	timeout time.Duration
	params  Params
}

// NewGenerator constructs a Generator. A non-positive timeout falls back
// to the default.
func NewGenerator(backend ChatBackend, model string, timeout time.Duration, params Params) *Generator {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Generator{
		backend: backend,
		model:   model,
		timeout: timeout,
		params:  params,
	}
}

// Generate sends the assembled messages to the model and returns the
// reply text. The retry applies only to deadline expiry; other backend
// failures surface immediately as ErrUnavailable.
func (g *Generator) Generate(ctx context.Context, messages []engine.Message) (string, error) {
	sampling := &engine.Sampling{
		Temperature:  g.params.Temperature,
		DoSample:     g.params.DoSample,
		MaxNewTokens: g.params.MaxNewTokens,
	}

	reply, err := g.attempt(ctx, messages, sampling)
	if err == nil {
		return reply, nil
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return "", fmt.Errorf("generating reply: %v: %w", err, ErrUnavailable)
	}

	// One retry on timeout. A model that was cold-loading on the first
	// attempt usually answers within the second window.
	reply, err = g.attempt(ctx, messages, sampling)
	if err == nil {
		return reply, nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		// A second timeout means the backend is effectively down, so it
		// carries both sentinels.
		return "", fmt.Errorf("after retry: %w: %w", ErrTimeout, ErrUnavailable)
	}
	return "", fmt.Errorf("generating reply: %v: %w", err, ErrUnavailable)
}

func (g *Generator) attempt(ctx context.Context, messages []engine.Message, sampling *engine.Sampling) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	return g.backend.Chat(callCtx, g.model, messages, sampling)
}
