// Package testgen implements the test-generation pipeline: read the target
// source, prompt a provider, and shape the completion into structured test
// code with a heuristic coverage estimate.
package testgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/progress"
	"github.com/merchly-ai/attest/internal/storage"
)

// Completer is the provider gateway surface the pipeline needs.
type Completer interface {
	Complete(ctx context.Context, req model.CompletionRequest) model.CompletionResult
}

// Store persists generation records and derived metric events.
type Store interface {
	InsertTestRun(ctx context.Context, r storage.TestRun) error
	InsertMetricEvent(ctx context.Context, e model.MetricEvent) error
}

// Pipeline runs test generation end to end.
type Pipeline struct {
	gateway Completer
	reader  SourceReader
	store   Store
	hub     *progress.Hub
	logger  *slog.Logger
}

// NewPipeline wires a test-generation pipeline.
func NewPipeline(gateway Completer, reader SourceReader, store Store, hub *progress.Hub, logger *slog.Logger) *Pipeline {
	return &Pipeline{gateway: gateway, reader: reader, store: store, hub: hub, logger: logger}
}

// Generate runs one request. The correlation id ties the outcome, the
// progress session, and the persisted rows together; callers streaming over
// SSE pass their chosen id, synchronous callers pass uuid.Nil and get a
// fresh one.
//
// An unreadable source returns ErrSourceUnavailable before any provider
// call. Provider failures do not return an error: they produce a
// non-success outcome and a failed run record.
func (p *Pipeline) Generate(ctx context.Context, req model.TestGenerationRequest, correlationID uuid.UUID) (model.TestGenerationOutcome, error) {
	if err := model.ValidateTestGenerationRequest(req); err != nil {
		return model.TestGenerationOutcome{}, fmt.Errorf("testgen: invalid request: %w", err)
	}
	if correlationID == uuid.Nil {
		correlationID = uuid.New()
	}
	complexity := req.Complexity
	if complexity == "" {
		complexity = model.ComplexityIntermediate
	}

	p.hub.Start(correlationID)
	p.hub.Progress(correlationID, 10, "reading source")

	start := time.Now()

	source, err := p.reader.Read(ctx, req.SourcePath)
	if err != nil {
		p.hub.Fail(correlationID, err.Error())
		return model.TestGenerationOutcome{}, err
	}

	p.hub.Progress(correlationID, 30, "generating tests")

	result := p.gateway.Complete(ctx, model.CompletionRequest{
		Provider:      req.Provider,
		Purpose:       model.PurposeTestGeneration,
		Prompt:        buildPrompt(req, source),
		CallerID:      req.CallerID,
		CorrelationID: correlationID,
	})

	p.hub.Progress(correlationID, 80, "extracting results")

	outcome := model.TestGenerationOutcome{
		CorrelationID: correlationID,
		Success:       result.Success,
		Latency:       time.Since(start),
		Model:         result.Model,
		Provider:      result.Provider,
		Category:      req.Category,
		Complexity:    complexity,
		Error:         result.Error,
	}
	if result.Success {
		outcome.TestCode = extractTestCode(result.Content)
		outcome.Recommendations = extractRecommendations(result.Content)
		outcome.EstimatedCoverage = estimateCoverage(outcome.TestCode, req.Category, complexity)
	}

	p.persist(ctx, req, outcome)

	if outcome.Success {
		p.hub.Complete(correlationID, "tests generated")
	} else {
		p.hub.Fail(correlationID, outcome.Error)
	}
	return outcome, nil
}

// persist writes the run record and derived metric events. Store failures
// are logged here and never block returning the outcome.
func (p *Pipeline) persist(ctx context.Context, req model.TestGenerationRequest, outcome model.TestGenerationOutcome) {
	status := model.TestRunGenerated
	if !outcome.Success {
		status = model.TestRunFailed
	}
	run := storage.TestRun{
		ID:                outcome.CorrelationID,
		CallerID:          req.CallerID,
		TargetFunction:    req.TargetFunction,
		Category:          outcome.Category,
		Complexity:        outcome.Complexity,
		Provider:          outcome.Provider,
		Model:             outcome.Model,
		Status:            status,
		EstimatedCoverage: outcome.EstimatedCoverage,
		Recommendations:   outcome.Recommendations,
		TestCode:          outcome.TestCode,
		Latency:           outcome.Latency,
		Error:             outcome.Error,
	}
	if err := p.store.InsertTestRun(ctx, run); err != nil {
		p.logger.Error("failed to persist test run",
			"error", err, "correlation_id", outcome.CorrelationID)
	}

	dims := map[string]string{"category": string(req.Category)}
	events := []model.MetricEvent{
		{
			Type:       model.MetricExecutionTime,
			Value:      float64(outcome.Latency.Milliseconds()),
			Dimensions: dims,
			CallerID:   req.CallerID,
			SessionID:  outcome.CorrelationID.String(),
			Timestamp:  time.Now(),
		},
	}
	if outcome.Success {
		events = append(events, model.MetricEvent{
			Type:       model.MetricTestCoverage,
			Value:      float64(outcome.EstimatedCoverage),
			Dimensions: dims,
			CallerID:   req.CallerID,
			SessionID:  outcome.CorrelationID.String(),
			Timestamp:  time.Now(),
		})
	}
	for _, ev := range events {
		if err := p.store.InsertMetricEvent(ctx, ev); err != nil {
			p.logger.Error("failed to persist metric event",
				"error", err, "type", ev.Type, "correlation_id", outcome.CorrelationID)
		}
	}
}
