package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/merchly-ai/attest/internal/model"
)

// OllamaClient calls a local Ollama server. Two API shapes exist in the
// wild depending on the Ollama version: the native generate API and the
// OpenAI-compatible chat-completions API. Complete tries them in that
// order as an explicit candidate list and stops at the first well-formed
// body; no silent retries past the request timeout.
type OllamaClient struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	maxTokens    int
	temperature  float64
}

// NewOllamaClient creates an Ollama-backed provider.
// timeout should be generous (>=60s); local machines run larger models slowly.
func NewOllamaClient(baseURL, defaultModel string, timeout time.Duration, maxTokens int, temperature float64) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: timeout},
		maxTokens:    maxTokens,
		temperature:  temperature,
	}
}

// Name returns the provider variant.
func (c *OllamaClient) Name() model.ProviderName { return model.ProviderOllama }

// Complete tries the generate API, then the chat API.
func (c *OllamaClient) Complete(ctx context.Context, req model.CompletionRequest) (Reply, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.defaultModel
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = &c.temperature
	}

	candidates := []func(context.Context, string, string, *float64) (Reply, error){
		c.generateCall,
		c.chatCall,
	}

	var lastErr error
	for _, call := range candidates {
		reply, err := call(ctx, modelName, req.Prompt, temperature)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		// A hard timeout ends the sequence; trying the next format would
		// blow straight past the caller's deadline again.
		if errors.Is(err, ErrProviderTimeout) || ctx.Err() != nil {
			break
		}
	}
	return Reply{}, lastErr
}

// Healthy reports whether the Ollama server responds. Used for the
// production startup check.
func (c *OllamaClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrProviderUnavailable, resp.StatusCode)
	}
	return nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// generateCall uses Ollama's native /api/generate endpoint.
func (c *OllamaClient) generateCall(ctx context.Context, modelName, prompt string, temperature *float64) (Reply, error) {
	opts := map[string]any{}
	if temperature != nil {
		opts["temperature"] = *temperature
	}
	if c.maxTokens > 0 {
		opts["num_predict"] = c.maxTokens
	}
	reqBody, err := json.Marshal(ollamaGenerateRequest{
		Model:   modelName,
		Prompt:  prompt,
		Stream:  false,
		Options: opts,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		return Reply{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Reply{}, fmt.Errorf("%w: generate status %d: %s", ErrProviderError, resp.StatusCode, string(body))
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Reply{}, fmt.Errorf("%w: decode generate response: %v", ErrProviderError, err)
	}
	if result.Response == "" {
		return Reply{}, fmt.Errorf("%w: empty generate response", ErrProviderError)
	}

	usage := model.TokenUsage{
		Input:  result.PromptEvalCount,
		Output: result.EvalCount,
		Total:  result.PromptEvalCount + result.EvalCount,
	}
	if usage.Total == 0 {
		usage = estimateUsage(prompt, result.Response)
	}
	return Reply{Content: result.Response, Usage: usage, Model: modelName}, nil
}

// chatCall uses the OpenAI-compatible endpoint newer Ollama versions expose.
func (c *OllamaClient) chatCall(ctx context.Context, modelName, prompt string, temperature *float64) (Reply, error) {
	return chatComplete(ctx, c.httpClient, c.baseURL+"/v1", "", modelName, prompt, c.maxTokens, temperature)
}
