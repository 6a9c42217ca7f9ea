// Package model defines the core domain types shared across attest:
// completion requests and results, pipeline outcomes, metric events,
// and the HTTP API envelopes.
package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Purpose classifies a completion request. It selects the prompt template
// and the default model for providers that distinguish between them.
type Purpose string

const (
	PurposeTestGeneration Purpose = "test-generation"
	PurposeRuleValidation Purpose = "rule-validation"
	PurposeCodeAnalysis   Purpose = "code-analysis"
)

// Valid reports whether p is a known purpose tag.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeTestGeneration, PurposeRuleValidation, PurposeCodeAnalysis:
		return true
	}
	return false
}

// ProviderName identifies one backend in the closed provider set.
type ProviderName string

const (
	ProviderOpenAI    ProviderName = "openai"
	ProviderAnthropic ProviderName = "anthropic"
	ProviderOllama    ProviderName = "ollama"
	ProviderLMStudio  ProviderName = "lmstudio"
	ProviderMock      ProviderName = "mock"
)

// Valid reports whether n names a known provider.
func (n ProviderName) Valid() bool {
	switch n {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderLMStudio, ProviderMock:
		return true
	}
	return false
}

// MaxPromptLen bounds the prompt text of a completion request. Prompts are
// built server-side from caller input, but caller-supplied source and code
// snippets flow into them, so the cap is enforced before any provider call.
const MaxPromptLen = 256 * 1024 // 256 KB

// CompletionRequest describes one completion call. Build it once and treat
// it as immutable; the gateway never mutates a request.
type CompletionRequest struct {
	Provider      ProviderName      `json:"provider,omitempty"` // empty = resolve from config
	Purpose       Purpose           `json:"purpose"`
	Prompt        string            `json:"prompt"`
	Context       map[string]string `json:"context,omitempty"`
	CallerID      string            `json:"caller_id,omitempty"`
	Model         string            `json:"model,omitempty"`       // empty = provider default
	MaxTokens     int               `json:"max_tokens,omitempty"`  // 0 = provider default
	Temperature   *float64          `json:"temperature,omitempty"` // nil = provider default
	CorrelationID uuid.UUID         `json:"correlation_id"`
}

// ValidateCompletionRequest checks field constraints before dispatch.
func ValidateCompletionRequest(req CompletionRequest) error {
	if !req.Purpose.Valid() {
		return fmt.Errorf("unknown purpose %q", req.Purpose)
	}
	if req.Prompt == "" {
		return fmt.Errorf("prompt is required")
	}
	if len(req.Prompt) > MaxPromptLen {
		return fmt.Errorf("prompt exceeds maximum length of %d bytes", MaxPromptLen)
	}
	if req.Provider != "" && !req.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", req.Provider)
	}
	return nil
}

// TokenUsage is the input/output/total token triple for one completion.
// When a backend does not report usage, counts are estimated from text
// length at roughly four characters per token.
type TokenUsage struct {
	Input     int  `json:"input_tokens"`
	Output    int  `json:"output_tokens"`
	Total     int  `json:"total_tokens"`
	Estimated bool `json:"estimated"`
}

// CompletionResult is the normalized response shape for every provider.
// Exactly one result exists per request, tied by CorrelationID. Either
// Success is true and Content is non-empty, or Success is false, Content is
// empty, and Error carries a human-readable message; never a mix.
type CompletionResult struct {
	Success       bool          `json:"success"`
	Content       string        `json:"content"`
	Usage         TokenUsage    `json:"usage"`
	Latency       time.Duration `json:"latency"`
	Model         string        `json:"model"`
	Provider      ProviderName  `json:"provider"`
	CorrelationID uuid.UUID     `json:"correlation_id"`
	Error         string        `json:"error,omitempty"`
}
