// Package adapter implements the uniform contract over backend language
// models — subprocess CLI tools and HTTP APIs — that the deliberation
// engine fans prompts out to. Every concrete adapter embeds Base, which
// owns the two checks the contract requires before any backend call:
// context prepending and max-prompt-length rejection.
package adapter

import (
	"context"
	"fmt"
	"time"

	"dev.aicounsel.server/internal/aierrors"
)

// Request is the uniform invocation payload. Context, when present, is
// prepended to Prompt with a blank-line separator before the backend
// ever sees it.
type Request struct {
	Prompt           string
	Model            string
	Context          string
	IsDeliberation   bool
	WorkingDirectory string
}

// Adapter is the contract every backend variant implements.
type Adapter interface {
	// Name identifies this adapter instance in logs and error messages
	// (the participant's adapter_name).
	Name() string
	// Invoke runs one prompt/model pair to completion or returns a
	// classified *aierrors.AdapterError.
	Invoke(ctx context.Context, req Request) (string, error)
}

// Base centralizes the two contract obligations every adapter shares:
// prompt composition and length enforcement. Concrete adapters embed it
// and call PrepareInput before doing any backend-specific work.
type Base struct {
	AdapterName     string
	Timeout         time.Duration
	MaxPromptLength int // 0 means unbounded
}

// PrepareInput joins context and prompt per the adapter contract and
// rejects over-limit inputs before any backend call is attempted.
func (b *Base) PrepareInput(req Request) (string, error) {
	prompt := req.Prompt
	if req.Context != "" {
		prompt = req.Context + "\n\n" + req.Prompt
	}
	if b.MaxPromptLength > 0 && len(prompt) > b.MaxPromptLength {
		return "", aierrors.NewFatalAdapterError(
			b.AdapterName,
			fmt.Sprintf("prompt length %d exceeds maximum %d", len(prompt), b.MaxPromptLength),
			0, nil,
		)
	}
	return prompt, nil
}

// TimeoutContext derives a context bound by the adapter's configured
// timeout, returning a no-op cancel if none is configured.
func (b *Base) TimeoutContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if b.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, b.Timeout)
}

// AsTimeout converts a context deadline-exceeded condition into the
// taxonomy's AdapterTimeout kind.
func (b *Base) AsTimeout(message string) error {
	return aierrors.NewTimeoutError(b.AdapterName, message)
}
