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

// AnthropicClient calls the Anthropic messages API.
type AnthropicClient struct {
	apiKey       string
	defaultModel string
	baseURL      string
	httpClient   *http.Client
	maxTokens    int
	temperature  float64
}

// NewAnthropicClient creates an Anthropic-backed provider.
func NewAnthropicClient(apiKey, defaultModel string, timeout time.Duration, maxTokens int, temperature float64) *AnthropicClient {
	return &AnthropicClient{
		apiKey:       apiKey,
		defaultModel: defaultModel,
		baseURL:      "https://api.anthropic.com",
		httpClient:   &http.Client{Timeout: timeout},
		maxTokens:    maxTokens,
		temperature:  temperature,
	}
}

// Name returns the provider variant.
func (c *AnthropicClient) Name() model.ProviderName { return model.ProviderAnthropic }

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete performs one messages call against Anthropic.
func (c *AnthropicClient) Complete(ctx context.Context, req model.CompletionRequest) (Reply, error) {
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

	reqBody, err := json.Marshal(anthropicRequest{
		Model:       modelName,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(reqBody))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return Reply{}, fmt.Errorf("%w: %v", ErrProviderTimeout, err)
		}
		return Reply{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: read response: %v", ErrProviderError, err)
	}

	var result anthropicResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Reply{}, fmt.Errorf("%w: unmarshal response: %v", ErrProviderError, err)
	}
	if result.Error != nil {
		return Reply{}, fmt.Errorf("%w: %s: %s", ErrProviderError, result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("%w: unexpected status %d: %s", ErrProviderError, resp.StatusCode, truncate(string(body), 512))
	}

	var content string
	for _, block := range result.Content {
		if block.Type == "text" {
			content += block.Text
		}
	}
	if content == "" {
		return Reply{}, fmt.Errorf("%w: empty completion", ErrProviderError)
	}

	usage := model.TokenUsage{
		Input:  result.Usage.InputTokens,
		Output: result.Usage.OutputTokens,
		Total:  result.Usage.InputTokens + result.Usage.OutputTokens,
	}
	if usage.Total == 0 {
		usage = estimateUsage(req.Prompt, content)
	}
	return Reply{Content: content, Usage: usage, Model: modelName}, nil
}
