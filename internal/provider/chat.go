package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/merchly-ai/attest/internal/model"
)

// chatRequest is the OpenAI-compatible chat-completions request body,
// shared by the OpenAI client, LM Studio, and Ollama's chat fallback.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// chatComplete performs one chat-completions call against an
// OpenAI-compatible endpoint. apiKey may be empty for local backends.
func chatComplete(ctx context.Context, client *http.Client, baseURL, apiKey, modelName, prompt string, maxTokens int, temperature *float64) (Reply, error) {
	reqBody, err := json.Marshal(chatRequest{
		Model:       modelName,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return Reply{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return Reply{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
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

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return Reply{}, fmt.Errorf("%w: unmarshal response: %v", ErrProviderError, err)
	}
	if result.Error != nil {
		return Reply{}, fmt.Errorf("%w: %s: %s", ErrProviderError, result.Error.Type, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return Reply{}, fmt.Errorf("%w: unexpected status %d: %s", ErrProviderError, resp.StatusCode, truncate(string(body), 512))
	}
	if len(result.Choices) == 0 || result.Choices[0].Message.Content == "" {
		return Reply{}, fmt.Errorf("%w: empty completion", ErrProviderError)
	}

	content := result.Choices[0].Message.Content
	usage := model.TokenUsage{
		Input:  result.Usage.PromptTokens,
		Output: result.Usage.CompletionTokens,
		Total:  result.Usage.TotalTokens,
	}
	if usage.Total == 0 {
		usage = estimateUsage(prompt, content)
	}
	return Reply{Content: content, Usage: usage, Model: modelName}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
