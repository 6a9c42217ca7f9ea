package model

import (
	"fmt"
	"time"
)

// MetricType names an analytics metric.
type MetricType string

const (
	MetricTestCoverage   MetricType = "test-coverage"
	MetricExecutionTime  MetricType = "execution-time"
	MetricSuccessRate    MetricType = "success-rate"
	MetricErrorPatterns  MetricType = "error-patterns"
	MetricAICost         MetricType = "ai-cost"
	MetricRuleCompliance MetricType = "rule-compliance"
)

// Valid reports whether m is a supported metric.
func (m MetricType) Valid() bool {
	switch m {
	case MetricTestCoverage, MetricExecutionTime, MetricSuccessRate,
		MetricErrorPatterns, MetricAICost, MetricRuleCompliance:
		return true
	}
	return false
}

// TrendDirection summarizes the movement of a bucketed series.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// GroupBy selects the bucketing dimension for an analytics query.
type GroupBy string

const (
	GroupByDay      GroupBy = "day" // default
	GroupByCategory GroupBy = "category"
	GroupByDomain   GroupBy = "domain"
	GroupByCaller   GroupBy = "caller"
)

// Valid reports whether g is a supported grouping.
func (g GroupBy) Valid() bool {
	switch g {
	case GroupByDay, GroupByCategory, GroupByDomain, GroupByCaller:
		return true
	}
	return false
}

// MetricEvent is one append-only telemetry row. Events are immutable once
// inserted and only ever read back. Timestamps are monotonically
// non-decreasing within a single recording session; no global ordering is
// guaranteed across callers.
type MetricEvent struct {
	Type       MetricType        `json:"type"`
	Value      float64           `json:"value"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	CallerID   string            `json:"caller_id,omitempty"`
	SessionID  string            `json:"session_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// TimeRange is a half-open [From, To) query window.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// AnalyticsQuery is the input to the analytics engine.
type AnalyticsQuery struct {
	Metric    MetricType        `json:"metric"`
	Range     TimeRange         `json:"range"`
	Filters   map[string]string `json:"filters,omitempty"`
	GroupBy   GroupBy           `json:"group_by,omitempty"` // default day
	TopN      int               `json:"top_n,omitempty"`    // error-patterns only
}

// ValidateAnalyticsQuery checks metric, window, and grouping.
func ValidateAnalyticsQuery(q AnalyticsQuery) error {
	if !q.Metric.Valid() {
		return fmt.Errorf("unknown metric %q", q.Metric)
	}
	if q.Range.From.IsZero() || q.Range.To.IsZero() {
		return fmt.Errorf("time range is required")
	}
	if !q.Range.To.After(q.Range.From) {
		return fmt.Errorf("time range end must be after start")
	}
	if q.GroupBy != "" && !q.GroupBy.Valid() {
		return fmt.Errorf("unknown group_by %q", q.GroupBy)
	}
	if q.TopN < 0 {
		return fmt.Errorf("top_n must be non-negative")
	}
	return nil
}

// DataPoint is one bucket of an analytics series. Label is a day stamp
// (YYYY-MM-DD) or a categorical group value.
type DataPoint struct {
	Label    string            `json:"label"`
	Value    float64           `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// PeriodComparison reports the two halves of a series around its midpoint.
type PeriodComparison struct {
	FirstHalfMean  float64 `json:"first_half_mean"`
	SecondHalfMean float64 `json:"second_half_mean"`
	Change         float64 `json:"change"`
	ChangePercent  float64 `json:"change_percent"`
}

// Summary aggregates a bucketed series.
type Summary struct {
	Total      float64           `json:"total"`
	Average    float64           `json:"average"`
	Trend      TrendDirection    `json:"trend"`
	Comparison *PeriodComparison `json:"period_comparison,omitempty"`
}

// MaxInsights caps the derived insight strings per result.
const MaxInsights = 5

// AnalyticsResult is computed on demand and never persisted. It is a pure
// function of the persisted ledger state for a given query.
type AnalyticsResult struct {
	Metric     MetricType  `json:"metric"`
	DataPoints []DataPoint `json:"data_points"`
	Summary    Summary     `json:"summary"`
	Insights   []string    `json:"insights,omitempty"`
}
