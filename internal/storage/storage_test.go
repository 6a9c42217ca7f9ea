package storage

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchly-ai/attest/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := OpenInMemory(logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCallerRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertCaller(ctx, "storefront", "hash-1"))
	hash, err := db.GetCallerKeyHash(ctx, "storefront")
	require.NoError(t, err)
	assert.Equal(t, "hash-1", hash)

	// Upsert replaces the hash.
	require.NoError(t, db.UpsertCaller(ctx, "storefront", "hash-2"))
	hash, err = db.GetCallerKeyHash(ctx, "storefront")
	require.NoError(t, err)
	assert.Equal(t, "hash-2", hash)

	_, err = db.GetCallerKeyHash(ctx, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestInsertAICallLogAndCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	corr := uuid.New()

	require.NoError(t, db.InsertAICallLog(ctx, AICallLog{
		CorrelationID: corr,
		CallerID:      "storefront",
		Provider:      model.ProviderMock,
		Model:         "mock-v1",
		Purpose:       model.PurposeTestGeneration,
		Usage:         model.TokenUsage{Input: 100, Output: 200, Total: 300, Estimated: true},
		Latency:       120 * time.Millisecond,
		CostUSD:       0.0042,
		Status:        "ok",
	}))

	n, err := db.CountCallLogsByCorrelation(ctx, corr)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = db.CountCallLogsByCorrelation(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestTestRunRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := TestRun{
		ID:                uuid.New(),
		CallerID:          "ci-runner",
		TargetFunction:    "calculateTotal",
		Category:          model.TestCategoryUnit,
		Complexity:        model.ComplexityIntermediate,
		Provider:          model.ProviderMock,
		Model:             "mock-v1",
		Status:            model.TestRunGenerated,
		EstimatedCoverage: 72,
		Recommendations:   []string{"consider boundary values for quantity"},
		TestCode:          "describe('calculateTotal', () => {})",
		Latency:           250 * time.Millisecond,
	}
	require.NoError(t, db.InsertTestRun(ctx, run))

	got, err := db.GetTestRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.TargetFunction, got.TargetFunction)
	assert.Equal(t, run.Status, got.Status)
	assert.Equal(t, run.EstimatedCoverage, got.EstimatedCoverage)
	assert.Equal(t, run.Recommendations, got.Recommendations)
	assert.Equal(t, run.Latency, got.Latency)

	_, err = db.GetTestRun(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRuleCheckRoundtrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	check := RuleCheck{
		ID:              uuid.New(),
		CallerID:        "storefront",
		Category:        model.RuleCategorySecurity,
		Domain:          "checkout",
		Provider:        model.ProviderMock,
		Model:           "mock-v1",
		Status:          model.StatusPartiallyCompliant,
		ComplianceScore: 75,
		Success:         true,
		Outcome: model.RuleValidationOutcome{
			ComplianceScore: 75,
			Status:          model.StatusPartiallyCompliant,
			Issues: []model.Issue{
				{Type: model.IssueWarning, Severity: model.SeverityHigh, Message: "missing input sanitation"},
			},
			Risk: model.RiskAssessment{Level: model.RiskMedium},
		},
		Latency: 300 * time.Millisecond,
	}
	require.NoError(t, db.InsertRuleCheck(ctx, check))

	got, err := db.GetRuleCheck(ctx, check.ID)
	require.NoError(t, err)
	assert.Equal(t, check.Status, got.Status)
	assert.Equal(t, check.ComplianceScore, got.ComplianceScore)
	assert.True(t, got.Success)
	require.Len(t, got.Outcome.Issues, 1)
	assert.Equal(t, model.SeverityHigh, got.Outcome.Issues[0].Severity)
}

func TestMetricValueBucketsByDay(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for day := 0; day < 3; day++ {
		for i := 0; i < 2; i++ {
			require.NoError(t, db.InsertMetricEvent(ctx, model.MetricEvent{
				Type:       model.MetricTestCoverage,
				Value:      float64(60 + day*10),
				Dimensions: map[string]string{"category": "unit"},
				Timestamp:  base.AddDate(0, 0, day).Add(time.Duration(i) * time.Hour),
				CallerID:   "storefront",
			}))
		}
	}

	rng := model.TimeRange{From: base.Add(-time.Hour), To: base.AddDate(0, 0, 5)}
	buckets, err := db.MetricValueBuckets(ctx, model.MetricTestCoverage, rng, nil, model.GroupByDay)
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, "2026-08-01", buckets[0].Label)
	assert.InDelta(t, 60.0, buckets[0].Value, 0.001)
	assert.InDelta(t, 80.0, buckets[2].Value, 0.001)
	assert.Equal(t, 2, buckets[0].Count)

	// Filter on a dimension column.
	buckets, err = db.MetricValueBuckets(ctx, model.MetricTestCoverage, rng,
		map[string]string{"category": "integration"}, model.GroupByDay)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestSuccessRateBuckets(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)

	insert := func(status model.TestRunStatus, at time.Time) {
		require.NoError(t, db.InsertTestRun(ctx, TestRun{
			ID:             uuid.New(),
			TargetFunction: "f",
			Category:       model.TestCategoryUnit,
			Complexity:     model.ComplexityBasic,
			Status:         status,
			CreatedAt:      at,
		}))
	}
	insert(model.TestRunGenerated, base)
	insert(model.TestRunGenerated, base.Add(time.Minute))
	insert(model.TestRunFailed, base.Add(2*time.Minute))
	insert(model.TestRunGenerated, base.Add(3*time.Minute))

	rng := model.TimeRange{From: base.Add(-time.Hour), To: base.Add(time.Hour)}
	buckets, err := db.SuccessRateBuckets(ctx, rng, nil, model.GroupByDay)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.InDelta(t, 75.0, buckets[0].Value, 0.001)
	assert.Equal(t, 4, buckets[0].Count)
}

func TestCostBucketsAndErrorTexts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	for i, cost := range []float64{0.01, 0.02, 0.03} {
		log := AICallLog{
			CorrelationID: uuid.New(),
			Provider:      model.ProviderOpenAI,
			Model:         "gpt-4o-mini",
			Purpose:       model.PurposeRuleValidation,
			CostUSD:       cost,
			Status:        "ok",
			CreatedAt:     base.Add(time.Duration(i) * time.Minute),
		}
		if i == 2 {
			log.Status = "error"
			log.Error = "connection timeout to provider"
		}
		require.NoError(t, db.InsertAICallLog(ctx, log))
	}

	rng := model.TimeRange{From: base.Add(-time.Hour), To: base.Add(time.Hour)}
	buckets, err := db.CostBuckets(ctx, rng, nil, model.GroupByDay)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.InDelta(t, 0.06, buckets[0].Value, 0.0001)

	texts, err := db.ErrorTexts(ctx, rng, 10)
	require.NoError(t, err)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "timeout")
}

func TestProgressSessionLifecycle(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.OpenProgressSession(ctx, uuid.New(), "storefront", "test-generation")
	require.NoError(t, err)
	assert.Positive(t, id)
	require.NoError(t, db.CloseProgressSession(ctx, id, "completed"))
}
