package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/merchly-ai/attest/internal/model"
)

func (s *Server) registerTools() {
	// attest_generate_test: generate a test suite for a storefront function.
	s.mcpServer.AddTool(
		mcplib.NewTool("attest_generate_test",
			mcplib.WithDescription(`Generate a test suite for a storefront function using the configured AI provider.

WHAT YOU GET BACK:
- test_code: the generated test file contents
- estimated_coverage: a heuristic coverage estimate in [0,95], never a measured figure
- recommendations: extracted prose suggestions from the model's response

The source file is read server-side from the configured source root, so
source_path must be relative to that root.`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("target_function",
				mcplib.Description("Name of the function under test, e.g. applyDiscount"),
				mcplib.Required(),
			),
			mcplib.WithString("category",
				mcplib.Description("Test category: unit, integration, e2e, or performance"),
				mcplib.Required(),
			),
			mcplib.WithString("source_path",
				mcplib.Description("Path of the source file, relative to the configured source root"),
				mcplib.Required(),
			),
			mcplib.WithString("business_rules",
				mcplib.Description("Business rules the tests must cover, one per line"),
			),
			mcplib.WithString("expected_behavior",
				mcplib.Description("Plain-language description of the expected behavior"),
			),
			mcplib.WithString("complexity",
				mcplib.Description("Complexity tier: basic, intermediate, or advanced (default intermediate)"),
			),
			mcplib.WithNumber("target_coverage",
				mcplib.Description("Advisory coverage target in percent"),
				mcplib.Min(0),
				mcplib.Max(100),
			),
			mcplib.WithString("provider",
				mcplib.Description("Force a specific provider: openai, anthropic, ollama, lmstudio, or mock. Omit to use the configured default."),
			),
		),
		s.handleGenerateTest,
	)

	// attest_validate_rule: validate a business rule implementation.
	s.mcpServer.AddTool(
		mcplib.NewTool("attest_validate_rule",
			mcplib.WithDescription(`Validate a business rule implementation for compliance, consistency, and risk.

WHAT YOU GET BACK:
- compliance_score: 0-100, adjusted by rule category
- status: compliant, partially-compliant, non-compliant, or needs-review
- issues, recommendations, risk assessment
- business_logic: boolean flags plus static maintainability/testability scores
- degraded_fields: names of fields that fell back to defaults because the
  model's response did not match the expected shape`),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("category",
				mcplib.Description("Rule category: validation, calculation, workflow, or security"),
				mcplib.Required(),
			),
			mcplib.WithString("code",
				mcplib.Description("The rule implementation source to validate"),
				mcplib.Required(),
			),
			mcplib.WithString("domain",
				mcplib.Description("Business domain the rule belongs to, e.g. checkout, catalog, pricing"),
				mcplib.Required(),
			),
			mcplib.WithString("constraints",
				mcplib.Description("Known constraints the rule must honor, one per line"),
			),
			mcplib.WithString("expected_outcome",
				mcplib.Description("What the rule should do when working correctly"),
			),
			mcplib.WithString("provider",
				mcplib.Description("Force a specific provider. Omit to use the configured default."),
			),
		),
		s.handleValidateRule,
	)

	// attest_query_analytics: query quality metrics.
	s.mcpServer.AddTool(
		mcplib.NewTool("attest_query_analytics",
			mcplib.WithDescription(`Query quality analytics computed from the persisted pipeline history.

METRICS: test-coverage, execution-time, success-rate, error-patterns,
ai-cost, rule-compliance.

WHAT YOU GET BACK: bucketed data points, a summary (total, average, trend,
period comparison), and derived insight strings.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("metric",
				mcplib.Description("Metric to query (see METRICS above)"),
				mcplib.Required(),
			),
			mcplib.WithString("from",
				mcplib.Description("Window start, RFC3339 (default: 30 days ago)"),
			),
			mcplib.WithString("to",
				mcplib.Description("Window end, RFC3339 (default: now)"),
			),
			mcplib.WithString("group_by",
				mcplib.Description("Bucket grouping: day, category, or domain (default day)"),
			),
			mcplib.WithNumber("top_n",
				mcplib.Description("For error-patterns: number of buckets to return"),
				mcplib.Min(1),
				mcplib.Max(50),
			),
		),
		s.handleQueryAnalytics,
	)
}

func (s *Server) handleGenerateTest(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.TestGenerationRequest{
		TargetFunction:   request.GetString("target_function", ""),
		Category:         model.TestCategory(request.GetString("category", "")),
		SourcePath:       request.GetString("source_path", ""),
		BusinessRules:    splitLines(request.GetString("business_rules", "")),
		ExpectedBehavior: request.GetString("expected_behavior", ""),
		Complexity:       model.ComplexityTier(request.GetString("complexity", "")),
		TargetCoverage:   request.GetInt("target_coverage", 0),
		Provider:         model.ProviderName(request.GetString("provider", "")),
		CallerID:         mcpCallerID,
	}
	if err := model.ValidateTestGenerationRequest(req); err != nil {
		return errorResult(err.Error()), nil
	}

	outcome, err := s.testGen.Generate(ctx, req, uuid.New())
	if err != nil {
		return errorResult(fmt.Sprintf("test generation failed: %v", err)), nil
	}

	return jsonResult(outcome)
}

func (s *Server) handleValidateRule(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.RuleValidationRequest{
		Category:        model.RuleCategory(request.GetString("category", "")),
		Code:            request.GetString("code", ""),
		Domain:          request.GetString("domain", ""),
		Constraints:     splitLines(request.GetString("constraints", "")),
		ExpectedOutcome: request.GetString("expected_outcome", ""),
		Provider:        model.ProviderName(request.GetString("provider", "")),
		CallerID:        mcpCallerID,
	}
	if err := model.ValidateRuleValidationRequest(req); err != nil {
		return errorResult(err.Error()), nil
	}

	outcome, err := s.ruleSvc.Validate(ctx, req, uuid.New())
	if err != nil {
		return errorResult(fmt.Sprintf("rule validation failed: %v", err)), nil
	}

	return jsonResult(outcome)
}

func (s *Server) handleQueryAnalytics(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	now := time.Now().UTC()
	rng := model.TimeRange{From: now.AddDate(0, 0, -30), To: now}

	if v := request.GetString("from", ""); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return errorResult("invalid from: expected RFC3339 format"), nil
		}
		rng.From = t
	}
	if v := request.GetString("to", ""); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return errorResult("invalid to: expected RFC3339 format"), nil
		}
		rng.To = t
	}

	q := model.AnalyticsQuery{
		Metric:  model.MetricType(request.GetString("metric", "")),
		Range:   rng,
		GroupBy: model.GroupBy(request.GetString("group_by", "")),
		TopN:    request.GetInt("top_n", 0),
	}
	if err := model.ValidateAnalyticsQuery(q); err != nil {
		return errorResult(err.Error()), nil
	}

	result, err := s.analyticsSvc.Query(ctx, q)
	if err != nil {
		return errorResult(fmt.Sprintf("analytics query failed: %v", err)), nil
	}

	return jsonResult(result)
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("marshal result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

// splitLines splits a newline-separated parameter into trimmed entries.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
