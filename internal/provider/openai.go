package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/merchly-ai/attest/internal/model"
)

// OpenAIClient calls the OpenAI chat-completions API.
type OpenAIClient struct {
	apiKey       string
	defaultModel string
	baseURL      string
	httpClient   *http.Client
	maxTokens    int
	temperature  float64
}

// NewOpenAIClient creates an OpenAI-backed provider.
func NewOpenAIClient(apiKey, defaultModel string, timeout time.Duration, maxTokens int, temperature float64) *OpenAIClient {
	return &OpenAIClient{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		baseURL:      "https://api.openai.com/v1",
		httpClient:   &http.Client{Timeout: timeout},
		maxTokens:    maxTokens,
		temperature:  temperature,
	}
}

// Name returns the provider variant.
func (c *OpenAIClient) Name() model.ProviderName { return model.ProviderOpenAI }

// Complete performs one chat completion against OpenAI.
func (c *OpenAIClient) Complete(ctx context.Context, req model.CompletionRequest) (Reply, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}
	temperature := req.Temperature
	if temperature == nil {
		temperature = &c.temperature
	}
	return chatComplete(ctx, c.httpClient, c.baseURL, c.apiKey, modelName, req.Prompt, maxTokens, temperature)
}
