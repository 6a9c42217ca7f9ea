// Package provider implements the provider-agnostic completion contract.
//
// A closed set of backends (OpenAI, Anthropic, Ollama, LM Studio, mock)
// sits behind the Provider interface; the Gateway selects one per request,
// normalizes the response shape, and records every attempt in the ledger.
// The Gateway never returns a Go error to its caller: all failures are
// captured into a success=false CompletionResult.
package provider

import (
	"context"
	"errors"

	"github.com/merchly-ai/attest/internal/model"
)

// Failure taxonomy. The gateway folds any backend error into one of these
// before reporting it; none are retried automatically; retry policy, if
// any, belongs to the caller.
var (
	ErrProviderUnavailable = errors.New("provider unavailable")
	ErrProviderTimeout     = errors.New("provider timeout")
	ErrProviderError       = errors.New("provider error")
	ErrConfiguration       = errors.New("provider configuration error")
)

// Reply is a raw backend response before gateway normalization.
type Reply struct {
	Content string
	Usage   model.TokenUsage
	Model   string // resolved model name
}

// Provider is a single completion backend.
type Provider interface {
	// Name identifies the backend variant.
	Name() model.ProviderName

	// Complete performs one completion call. Implementations return an
	// error wrapping one of the package sentinels; the gateway converts
	// it into a failed CompletionResult.
	Complete(ctx context.Context, req model.CompletionRequest) (Reply, error)
}

// charsPerToken is the estimation ratio used when a backend does not report
// token usage: roughly four characters per token.
const charsPerToken = 4

// EstimateTokens estimates the token count of text at ~4 chars/token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// estimateUsage builds an estimated usage triple from prompt and completion.
func estimateUsage(prompt, completion string) model.TokenUsage {
	in := EstimateTokens(prompt)
	out := EstimateTokens(completion)
	return model.TokenUsage{Input: in, Output: out, Total: in + out, Estimated: true}
}
