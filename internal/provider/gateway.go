package provider

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/storage"
)

// CallLedger records every attempted completion.
type CallLedger interface {
	InsertAICallLog(ctx context.Context, l storage.AICallLog) error
}

// preferenceOrder is the fallback resolution order when neither the
// request nor the purpose defaults name a provider.
var preferenceOrder = []model.ProviderName{
	model.ProviderOpenAI,
	model.ProviderAnthropic,
	model.ProviderOllama,
	model.ProviderLMStudio,
}

// Gateway routes completion requests to a configured provider and appends
// one ledger row per attempt. Complete never returns a Go error: failures
// become Success=false results with the error text preserved, so callers
// always have an outcome to persist and report.
type Gateway struct {
	clients         map[model.ProviderName]Provider
	purposeDefaults map[model.Purpose]model.ProviderName
	mockEligible    bool
	timeout         time.Duration
	ledger          CallLedger
	logger          *slog.Logger
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	// PurposeDefaults maps a request purpose to a preferred provider.
	PurposeDefaults map[model.Purpose]model.ProviderName
	// MockEligible permits the mock fallback when no other provider
	// resolves. Must be false in production.
	MockEligible bool
	// Timeout bounds each provider call. Defaults to 60s.
	Timeout time.Duration
}

// NewGateway creates a gateway over the given provider clients.
func NewGateway(clients []Provider, ledger CallLedger, logger *slog.Logger, opts GatewayOptions) *Gateway {
	byName := make(map[model.ProviderName]Provider, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.PurposeDefaults == nil {
		opts.PurposeDefaults = map[model.Purpose]model.ProviderName{}
	}
	return &Gateway{
		clients:         byName,
		purposeDefaults: opts.PurposeDefaults,
		mockEligible:    opts.MockEligible,
		timeout:         opts.Timeout,
		ledger:          ledger,
		logger:          logger,
	}
}

// Complete resolves a provider, runs the completion, records the attempt,
// and returns the outcome. Exactly one ledger row is written per call,
// success or failure.
func (g *Gateway) Complete(ctx context.Context, req model.CompletionRequest) model.CompletionResult {
	if req.CorrelationID == uuid.Nil {
		req.CorrelationID = uuid.New()
	}

	client, err := g.resolve(req)
	if err != nil {
		result := failedResult(req, "", err)
		g.record(ctx, req, result)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	reply, err := client.Complete(callCtx, req)
	latency := time.Since(start)

	var result model.CompletionResult
	if err != nil {
		result = failedResult(req, string(client.Name()), err)
	} else if reply.Content == "" {
		result = failedResult(req, string(client.Name()), fmt.Errorf("%w: empty completion", ErrProviderError))
		result.Model = reply.Model
	} else {
		result = model.CompletionResult{
			Success:       true,
			Content:       reply.Content,
			Usage:         reply.Usage,
			Model:         reply.Model,
			Provider:      client.Name(),
			CorrelationID: req.CorrelationID,
		}
	}
	result.Latency = latency

	g.record(ctx, req, result)
	return result
}

// resolve picks the provider for one request: the explicit selector when
// configured, then the purpose default, then the preference order, then
// mock when eligible.
func (g *Gateway) resolve(req model.CompletionRequest) (Provider, error) {
	if req.Provider != "" {
		client, ok := g.clients[req.Provider]
		if !ok {
			return nil, fmt.Errorf("%w: provider %q not configured", ErrConfiguration, req.Provider)
		}
		return client, nil
	}
	if name, ok := g.purposeDefaults[req.Purpose]; ok {
		if client, ok := g.clients[name]; ok {
			return client, nil
		}
	}
	for _, name := range preferenceOrder {
		if client, ok := g.clients[name]; ok {
			return client, nil
		}
	}
	if g.mockEligible {
		if client, ok := g.clients[model.ProviderMock]; ok {
			return client, nil
		}
	}
	return nil, fmt.Errorf("%w: no provider configured", ErrProviderUnavailable)
}

// record appends the ledger row. A failed write is logged and swallowed:
// the outcome still goes back to the caller.
func (g *Gateway) record(ctx context.Context, req model.CompletionRequest, result model.CompletionResult) {
	status := "ok"
	if !result.Success {
		status = "error"
	}
	entry := storage.AICallLog{
		CorrelationID: req.CorrelationID,
		CallerID:      req.CallerID,
		Provider:      result.Provider,
		Model:         result.Model,
		Purpose:       req.Purpose,
		Usage:         result.Usage,
		Latency:       result.Latency,
		CostUSD:       EstimateCostUSD(result.Provider, result.Model, result.Usage),
		Status:        status,
		Error:         result.Error,
	}
	if err := g.ledger.InsertAICallLog(ctx, entry); err != nil {
		g.logger.Error("failed to record ai call",
			"error", err,
			"correlation_id", req.CorrelationID,
			"provider", result.Provider)
	}
}

func failedResult(req model.CompletionRequest, providerName string, err error) model.CompletionResult {
	return model.CompletionResult{
		Success:       false,
		Provider:      model.ProviderName(providerName),
		CorrelationID: req.CorrelationID,
		Error:         err.Error(),
	}
}
