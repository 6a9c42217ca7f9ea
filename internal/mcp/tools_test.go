package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/progress"
	"github.com/merchly-ai/attest/internal/provider"
	"github.com/merchly-ai/attest/internal/service/analytics"
	"github.com/merchly-ai/attest/internal/service/rules"
	"github.com/merchly-ai/attest/internal/service/testgen"
	"github.com/merchly-ai/attest/internal/storage"
	"github.com/merchly-ai/attest/internal/testutil"
)

// newTestServer wires an MCP server against the mock provider and an
// in-memory store, with one seeded source file.
func newTestServer(t *testing.T) (*Server, *storage.DB) {
	t.Helper()
	logger := testutil.DiscardLogger()
	db := testutil.NewTestDB(t)

	sourceRoot := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(sourceRoot, "cart.js"),
		[]byte("function cartTotal(items) {\n  return items.reduce((sum, i) => sum + i.price * i.qty, 0);\n}\n"),
		0644,
	))

	gateway := provider.NewGateway(
		[]provider.Provider{provider.NewMockClientNoDelay()},
		db, logger, provider.GatewayOptions{MockEligible: true},
	)
	hub := progress.NewHub(logger)
	reader := testgen.NewFileSourceReader(sourceRoot)

	s := New(
		testgen.NewPipeline(gateway, reader, db, hub, logger),
		rules.NewAnalyzer(gateway, db, hub, logger),
		analytics.NewEngine(db, logger),
		logger,
		"test",
	)
	return s, db
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// parseToolText extracts the first TextContent text from a CallToolResult.
func parseToolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in tool result")
	return ""
}

func TestHandleGenerateTest(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleGenerateTest(context.Background(), callRequest("attest_generate_test", map[string]any{
		"target_function": "cartTotal",
		"category":        "unit",
		"source_path":     "cart.js",
		"business_rules":  "totals are never negative\nquantities are integers",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "generate should succeed: %s", parseToolText(t, result))

	var outcome model.TestGenerationOutcome
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &outcome))
	assert.True(t, outcome.Success)
	assert.Contains(t, outcome.TestCode, "describe(")
	assert.Equal(t, model.ProviderMock, outcome.Provider)
}

func TestHandleGenerateTest_MissingRequired(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleGenerateTest(context.Background(), callRequest("attest_generate_test", map[string]any{
		"category":    "unit",
		"source_path": "cart.js",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "target_function is required")
}

func TestHandleGenerateTest_UnreadableSource(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleGenerateTest(context.Background(), callRequest("attest_generate_test", map[string]any{
		"target_function": "cartTotal",
		"category":        "unit",
		"source_path":     "missing.js",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "test generation failed")
}

func TestHandleValidateRule(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleValidateRule(context.Background(), callRequest("attest_validate_rule", map[string]any{
		"category": "validation",
		"code":     "function validateQty(q) {\n  return Number.isInteger(q) && q > 0;\n}",
		"domain":   "cart",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "validate should succeed: %s", parseToolText(t, result))

	var outcome model.RuleValidationOutcome
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &outcome))
	assert.True(t, outcome.Success)
	assert.Equal(t, 78, outcome.ComplianceScore)
	assert.Equal(t, model.StatusPartiallyCompliant, outcome.Status)
}

func TestHandleValidateRule_BadCategory(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleValidateRule(context.Background(), callRequest("attest_validate_rule", map[string]any{
		"category": "astrology",
		"code":     "x",
		"domain":   "cart",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "unknown rule category")
}

func TestHandleQueryAnalytics(t *testing.T) {
	s, db := newTestServer(t)

	ctx := context.Background()
	base := time.Now().UTC().AddDate(0, 0, -2)
	for i := 0; i < 2; i++ {
		require.NoError(t, db.InsertMetricEvent(ctx, model.MetricEvent{
			Type:      model.MetricTestCoverage,
			Value:     float64(65 + i*10),
			Timestamp: base.AddDate(0, 0, i),
			CallerID:  mcpCallerID,
		}))
	}

	result, err := s.handleQueryAnalytics(ctx, callRequest("attest_query_analytics", map[string]any{
		"metric": "test-coverage",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError, "query should succeed: %s", parseToolText(t, result))

	var res model.AnalyticsResult
	require.NoError(t, json.Unmarshal([]byte(parseToolText(t, result)), &res))
	assert.Equal(t, model.MetricTestCoverage, res.Metric)
	assert.Len(t, res.DataPoints, 2)
	assert.InDelta(t, 70.0, res.Summary.Average, 0.01)
}

func TestHandleQueryAnalytics_BadInput(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleQueryAnalytics(ctx, callRequest("attest_query_analytics", map[string]any{
		"metric": "vibes",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "unknown metric")

	result, err = s.handleQueryAnalytics(ctx, callRequest("attest_query_analytics", map[string]any{
		"metric": "test-coverage",
		"from":   "last tuesday",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, parseToolText(t, result), "invalid from")
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, splitLines(""))
	assert.Equal(t, []string{"a", "b"}, splitLines("a\n\n  b  \n"))
}
