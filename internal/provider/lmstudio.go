package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/merchly-ai/attest/internal/model"
)

// LMStudioClient calls a local LM Studio server over its
// OpenAI-compatible API. Unlike Ollama there is only one API shape.
type LMStudioClient struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	maxTokens    int
	temperature  float64
}

// NewLMStudioClient creates an LM Studio-backed provider.
func NewLMStudioClient(baseURL, defaultModel string, timeout time.Duration, maxTokens int, temperature float64) *LMStudioClient {
	if baseURL == "" {
		baseURL = "http://localhost:1234"
	}
	return &LMStudioClient{
		baseURL:      baseURL,
		defaultModel: defaultModel,
		httpClient:   &http.Client{Timeout: timeout},
		maxTokens:    maxTokens,
		temperature:  temperature,
	}
}

// Name returns the provider variant.
func (c *LMStudioClient) Name() model.ProviderName { return model.ProviderLMStudio }

// Complete sends a chat completion to the local server.
func (c *LMStudioClient) Complete(ctx context.Context, req model.CompletionRequest) (Reply, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.defaultModel
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = &c.temperature
	}
	return chatComplete(ctx, c.httpClient, c.baseURL+"/v1", "", modelName, req.Prompt, c.maxTokens, temperature)
}

// Healthy reports whether the LM Studio server responds.
func (c *LMStudioClient) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
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
