// Package rules implements the rule-validation pipeline: prompt a provider
// for a compliance review of a storefront business rule, extract the
// free-form answer into a structured report, and apply deterministic
// category adjustments and static code scores on top.
package rules

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

// Completer is the provider gateway surface the analyzer needs.
type Completer interface {
	Complete(ctx context.Context, req model.CompletionRequest) model.CompletionResult
}

// Store persists validation records and derived metric events.
type Store interface {
	InsertRuleCheck(ctx context.Context, r storage.RuleCheck) error
	InsertMetricEvent(ctx context.Context, e model.MetricEvent) error
}

// Analyzer runs rule validation end to end.
type Analyzer struct {
	gateway Completer
	store   Store
	hub     *progress.Hub
	logger  *slog.Logger
}

// NewAnalyzer wires a rule analyzer.
func NewAnalyzer(gateway Completer, store Store, hub *progress.Hub, logger *slog.Logger) *Analyzer {
	return &Analyzer{gateway: gateway, store: store, hub: hub, logger: logger}
}

// Validate runs one request. A degraded extraction (model text that did not
// match the expected shape) is still a success; only a provider failure
// yields a non-success outcome. One rule_checks row is written either way.
func (a *Analyzer) Validate(ctx context.Context, req model.RuleValidationRequest, correlationID uuid.UUID) (model.RuleValidationOutcome, error) {
	if err := model.ValidateRuleValidationRequest(req); err != nil {
		return model.RuleValidationOutcome{}, fmt.Errorf("rules: invalid request: %w", err)
	}
	if correlationID == uuid.Nil {
		correlationID = uuid.New()
	}

	a.hub.Start(correlationID)
	a.hub.Progress(correlationID, 20, "reviewing rule")

	start := time.Now()

	result := a.gateway.Complete(ctx, model.CompletionRequest{
		Provider:      req.Provider,
		Purpose:       model.PurposeRuleValidation,
		Prompt:        buildPrompt(req),
		CallerID:      req.CallerID,
		CorrelationID: correlationID,
	})

	a.hub.Progress(correlationID, 70, "extracting report")

	outcome := model.RuleValidationOutcome{
		CorrelationID: correlationID,
		Success:       result.Success,
		Latency:       time.Since(start),
		Model:         result.Model,
		Provider:      result.Provider,
		Category:      req.Category,
		Error:         result.Error,
	}

	if result.Success {
		extracted, degraded := extractReport(result.Content)
		outcome.ComplianceScore = adjustScore(extracted.Score, req.Category)
		outcome.Status = extracted.Status
		outcome.Issues = extracted.Issues
		outcome.Recommendations = extracted.Recommendations
		outcome.Risk = extracted.Risk
		outcome.Degraded = degraded

		maintainability, testability := staticScores(req.Code)
		outcome.BusinessLogic = model.BusinessLogicAssessment{
			Valid:           extracted.Valid,
			Consistent:      extracted.Consistent,
			Complete:        extracted.Complete,
			Maintainability: maintainability,
			Testability:     testability,
		}
	}

	a.persist(ctx, req, outcome)

	if outcome.Success {
		a.hub.Complete(correlationID, "rule validated")
	} else {
		a.hub.Fail(correlationID, outcome.Error)
	}
	return outcome, nil
}

// persist writes the check record and derived metric events. Store failures
// are logged and never block returning the outcome.
func (a *Analyzer) persist(ctx context.Context, req model.RuleValidationRequest, outcome model.RuleValidationOutcome) {
	check := storage.RuleCheck{
		ID:              outcome.CorrelationID,
		CallerID:        req.CallerID,
		Category:        req.Category,
		Domain:          req.Domain,
		Provider:        outcome.Provider,
		Model:           outcome.Model,
		Status:          outcome.Status,
		ComplianceScore: outcome.ComplianceScore,
		Success:         outcome.Success,
		Outcome:         outcome,
		Latency:         outcome.Latency,
		Error:           outcome.Error,
	}
	if err := a.store.InsertRuleCheck(ctx, check); err != nil {
		a.logger.Error("failed to persist rule check",
			"error", err, "correlation_id", outcome.CorrelationID)
	}

	if !outcome.Success {
		return
	}
	ev := model.MetricEvent{
		Type:  model.MetricRuleCompliance,
		Value: float64(outcome.ComplianceScore),
		Dimensions: map[string]string{
			"category": string(req.Category),
			"domain":   req.Domain,
		},
		CallerID:  req.CallerID,
		SessionID: outcome.CorrelationID.String(),
		Timestamp: time.Now(),
	}
	if err := a.store.InsertMetricEvent(ctx, ev); err != nil {
		a.logger.Error("failed to persist metric event",
			"error", err, "type", ev.Type, "correlation_id", outcome.CorrelationID)
	}
}
