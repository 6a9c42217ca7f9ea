package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/merchly-ai/attest/internal/model"
)

// Bucket is one aggregated group returned by the analytics queries.
// Label is a day stamp (YYYY-MM-DD) or a categorical group value.
type Bucket struct {
	Label string
	Value float64
	Count int
}

// metricEventColumns maps query dimensions to metric_events columns.
// Only whitelisted names ever reach the SQL text.
var metricEventColumns = map[model.GroupBy]string{
	model.GroupByDay:      "substr(timestamp, 1, 10)",
	model.GroupByCategory: "category",
	model.GroupByDomain:   "domain",
	model.GroupByCaller:   "caller_id",
}

var metricEventFilters = map[string]string{
	"category": "category",
	"domain":   "domain",
	"caller":   "caller_id",
	"session":  "session_id",
}

// MetricValueBuckets averages metric_events values per bucket for one metric
// type over [from, to).
func (db *DB) MetricValueBuckets(ctx context.Context, metric model.MetricType, rng model.TimeRange, filters map[string]string, groupBy model.GroupBy) ([]Bucket, error) {
	expr, ok := metricEventColumns[groupBy]
	if !ok {
		return nil, fmt.Errorf("storage: unsupported grouping %q for metric events", groupBy)
	}

	where := []string{"type = ?", "timestamp >= ?", "timestamp < ?"}
	args := []any{string(metric), fmtTime(rng.From), fmtTime(rng.To)}
	for key, val := range filters {
		col, ok := metricEventFilters[key]
		if !ok {
			continue
		}
		where = append(where, col+" = ?")
		args = append(args, val)
	}

	query := fmt.Sprintf(
		`SELECT %s, AVG(value), COUNT(*) FROM metric_events
		 WHERE %s GROUP BY 1 ORDER BY 1`,
		expr, strings.Join(where, " AND "),
	)
	return db.queryBuckets(ctx, query, args)
}

var testRunColumns = map[model.GroupBy]string{
	model.GroupByDay:      "substr(created_at, 1, 10)",
	model.GroupByCategory: "category",
	model.GroupByCaller:   "caller_id",
}

var testRunFilters = map[string]string{
	"category": "category",
	"caller":   "caller_id",
	"provider": "provider",
}

// SuccessRateBuckets computes the generation success percentage per bucket
// from test_runs over [from, to).
func (db *DB) SuccessRateBuckets(ctx context.Context, rng model.TimeRange, filters map[string]string, groupBy model.GroupBy) ([]Bucket, error) {
	expr, ok := testRunColumns[groupBy]
	if !ok {
		return nil, fmt.Errorf("storage: unsupported grouping %q for test runs", groupBy)
	}

	where := []string{"created_at >= ?", "created_at < ?"}
	args := []any{fmtTime(rng.From), fmtTime(rng.To)}
	for key, val := range filters {
		col, ok := testRunFilters[key]
		if !ok {
			continue
		}
		where = append(where, col+" = ?")
		args = append(args, val)
	}

	query := fmt.Sprintf(
		`SELECT %s, 100.0 * AVG(CASE WHEN status = 'generated' THEN 1.0 ELSE 0.0 END), COUNT(*)
		 FROM test_runs WHERE %s GROUP BY 1 ORDER BY 1`,
		expr, strings.Join(where, " AND "),
	)
	return db.queryBuckets(ctx, query, args)
}

var callLogColumns = map[model.GroupBy]string{
	model.GroupByDay:    "substr(created_at, 1, 10)",
	model.GroupByCaller: "caller_id",
}

var callLogFilters = map[string]string{
	"caller":   "caller_id",
	"provider": "provider",
	"purpose":  "purpose",
}

// CostBuckets sums the heuristic dollar cost per bucket from ai_call_logs
// over [from, to).
func (db *DB) CostBuckets(ctx context.Context, rng model.TimeRange, filters map[string]string, groupBy model.GroupBy) ([]Bucket, error) {
	expr, ok := callLogColumns[groupBy]
	if !ok {
		return nil, fmt.Errorf("storage: unsupported grouping %q for call logs", groupBy)
	}

	where := []string{"created_at >= ?", "created_at < ?"}
	args := []any{fmtTime(rng.From), fmtTime(rng.To)}
	for key, val := range filters {
		col, ok := callLogFilters[key]
		if !ok {
			continue
		}
		where = append(where, col+" = ?")
		args = append(args, val)
	}

	query := fmt.Sprintf(
		`SELECT %s, SUM(cost_usd), COUNT(*) FROM ai_call_logs
		 WHERE %s GROUP BY 1 ORDER BY 1`,
		expr, strings.Join(where, " AND "),
	)
	return db.queryBuckets(ctx, query, args)
}

// ErrorTexts returns the non-empty error strings recorded in the window,
// across call logs, test runs, and rule checks, newest first, capped.
func (db *DB) ErrorTexts(ctx context.Context, rng model.TimeRange, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.conn.QueryContext(ctx,
		`SELECT error, created_at FROM ai_call_logs WHERE error != '' AND created_at >= ? AND created_at < ?
		 UNION ALL
		 SELECT error, created_at FROM test_runs WHERE error != '' AND created_at >= ? AND created_at < ?
		 UNION ALL
		 SELECT error, created_at FROM rule_checks WHERE error != '' AND created_at >= ? AND created_at < ?
		 ORDER BY created_at DESC LIMIT ?`,
		fmtTime(rng.From), fmtTime(rng.To),
		fmtTime(rng.From), fmtTime(rng.To),
		fmtTime(rng.From), fmtTime(rng.To),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query error texts: %w", err)
	}
	defer rows.Close()

	var texts []string
	for rows.Next() {
		var text, createdAt string
		if err := rows.Scan(&text, &createdAt); err != nil {
			return nil, fmt.Errorf("storage: scan error text: %w", err)
		}
		texts = append(texts, text)
	}
	return texts, rows.Err()
}

func (db *DB) queryBuckets(ctx context.Context, query string, args []any) ([]Bucket, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: bucket query: %w", err)
	}
	defer rows.Close()

	var buckets []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Label, &b.Value, &b.Count); err != nil {
			return nil, fmt.Errorf("storage: scan bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}
