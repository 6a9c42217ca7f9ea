// Package analytics computes on-demand aggregations over the persisted
// ledger: bucketed series per metric, trend and period summaries, and a
// short list of advisory insights. Results are pure functions of the store
// contents for a given query; nothing here is persisted.
package analytics

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/storage"
)

// defaultTopN bounds the error-pattern buckets when the query does not
// choose its own N.
const defaultTopN = 7

// Store is the read surface the engine aggregates over.
type Store interface {
	MetricValueBuckets(ctx context.Context, metric model.MetricType, rng model.TimeRange, filters map[string]string, groupBy model.GroupBy) ([]storage.Bucket, error)
	SuccessRateBuckets(ctx context.Context, rng model.TimeRange, filters map[string]string, groupBy model.GroupBy) ([]storage.Bucket, error)
	CostBuckets(ctx context.Context, rng model.TimeRange, filters map[string]string, groupBy model.GroupBy) ([]storage.Bucket, error)
	ErrorTexts(ctx context.Context, rng model.TimeRange, limit int) ([]string, error)
}

// Engine answers analytics queries.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine wires an analytics engine.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{store: store, logger: logger}
}

// Query computes one metric over the requested window.
func (e *Engine) Query(ctx context.Context, q model.AnalyticsQuery) (model.AnalyticsResult, error) {
	if err := model.ValidateAnalyticsQuery(q); err != nil {
		return model.AnalyticsResult{}, fmt.Errorf("analytics: invalid query: %w", err)
	}
	groupBy := q.GroupBy
	if groupBy == "" {
		groupBy = model.GroupByDay
	}

	var (
		buckets []storage.Bucket
		err     error
	)
	switch q.Metric {
	case model.MetricTestCoverage, model.MetricExecutionTime, model.MetricRuleCompliance:
		buckets, err = e.store.MetricValueBuckets(ctx, q.Metric, q.Range, q.Filters, groupBy)
	case model.MetricSuccessRate:
		buckets, err = e.store.SuccessRateBuckets(ctx, q.Range, q.Filters, groupBy)
	case model.MetricAICost:
		buckets, err = e.store.CostBuckets(ctx, q.Range, q.Filters, groupBy)
	case model.MetricErrorPatterns:
		return e.errorPatterns(ctx, q)
	default:
		return model.AnalyticsResult{}, fmt.Errorf("analytics: unknown metric %q", q.Metric)
	}
	if err != nil {
		return model.AnalyticsResult{}, fmt.Errorf("analytics: query %s: %w", q.Metric, err)
	}

	result := model.AnalyticsResult{
		Metric:     q.Metric,
		DataPoints: toDataPoints(buckets),
		Summary:    summarize(buckets),
	}
	result.Insights = buildInsights(q.Metric, result)
	return result, nil
}

// errorPatterns buckets recorded error texts by keyword category and
// returns the top-N bucket counts as the series.
func (e *Engine) errorPatterns(ctx context.Context, q model.AnalyticsQuery) (model.AnalyticsResult, error) {
	texts, err := e.store.ErrorTexts(ctx, q.Range, 0)
	if err != nil {
		return model.AnalyticsResult{}, fmt.Errorf("analytics: query error texts: %w", err)
	}

	topN := q.TopN
	if topN <= 0 {
		topN = defaultTopN
	}
	points := classifyErrors(texts, topN)

	buckets := make([]storage.Bucket, len(points))
	for i, p := range points {
		buckets[i] = storage.Bucket{Label: p.Label, Value: p.Value, Count: int(p.Value)}
	}

	result := model.AnalyticsResult{
		Metric:     q.Metric,
		DataPoints: points,
		Summary:    summarize(buckets),
	}
	result.Insights = buildInsights(q.Metric, result)
	return result, nil
}

// Overview computes every metric over one window in parallel. Used by the
// dashboard surface; individual metric failures fail the whole overview.
func (e *Engine) Overview(ctx context.Context, rng model.TimeRange) (map[model.MetricType]model.AnalyticsResult, error) {
	metrics := []model.MetricType{
		model.MetricTestCoverage,
		model.MetricExecutionTime,
		model.MetricSuccessRate,
		model.MetricErrorPatterns,
		model.MetricAICost,
		model.MetricRuleCompliance,
	}

	results := make([]model.AnalyticsResult, len(metrics))
	g, gctx := errgroup.WithContext(ctx)
	for i, metric := range metrics {
		g.Go(func() error {
			r, err := e.Query(gctx, model.AnalyticsQuery{Metric: metric, Range: rng})
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	overview := make(map[model.MetricType]model.AnalyticsResult, len(metrics))
	for i, metric := range metrics {
		overview[metric] = results[i]
	}
	return overview, nil
}

func toDataPoints(buckets []storage.Bucket) []model.DataPoint {
	points := make([]model.DataPoint, len(buckets))
	for i, b := range buckets {
		points[i] = model.DataPoint{
			Label: b.Label,
			Value: b.Value,
			Metadata: map[string]string{
				"count": fmt.Sprintf("%d", b.Count),
			},
		}
	}
	return points
}
