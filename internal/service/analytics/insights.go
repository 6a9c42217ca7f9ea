package analytics

import (
	"fmt"
	"math"

	"github.com/merchly-ai/attest/internal/model"
)

// Metric-specific insight thresholds.
const (
	coverageWarnBelow     = 70.0
	coveragePraiseAbove   = 90.0
	successRateWarnBelow  = 80.0
	executionTimeWarnMS   = 5000.0
	costWarnUSD           = 10.0
	complianceWarnBelow   = 80.0
	comparisonNotablePct  = 10.0
	sufficiencyMinBuckets = 5
)

// buildInsights evaluates a fixed rule list in order and returns at most
// MaxInsights advisory strings. Insights are text, not alerts; nothing
// enforces their delivery.
func buildInsights(metric model.MetricType, result model.AnalyticsResult) []string {
	var insights []string
	add := func(format string, args ...any) {
		if len(insights) < model.MaxInsights {
			insights = append(insights, fmt.Sprintf(format, args...))
		}
	}

	switch result.Summary.Trend {
	case model.TrendIncreasing:
		add("%s is trending upward over the selected window", metric)
	case model.TrendDecreasing:
		add("%s is trending downward over the selected window", metric)
	}

	if c := result.Summary.Comparison; c != nil && math.Abs(c.ChangePercent) > comparisonNotablePct {
		add("%s changed %.1f%% between the first and second half of the window", metric, c.ChangePercent)
	}

	avg := result.Summary.Average
	switch metric {
	case model.MetricTestCoverage:
		if avg < coverageWarnBelow {
			add("average estimated coverage %.1f is below the %.0f target", avg, coverageWarnBelow)
		} else if avg > coveragePraiseAbove {
			add("average estimated coverage %.1f is strong", avg)
		}
	case model.MetricSuccessRate:
		if avg < successRateWarnBelow {
			add("generation success rate %.1f%% is below the %.0f%% quality bar", avg, successRateWarnBelow)
		}
	case model.MetricExecutionTime:
		if avg > executionTimeWarnMS {
			add("average pipeline latency %.0fms exceeds %.0fms; consider a faster model or smaller prompts", avg, executionTimeWarnMS)
		}
	case model.MetricAICost:
		if result.Summary.Total > costWarnUSD {
			add("aggregate AI spend $%.2f exceeds the $%.0f review threshold for this window", result.Summary.Total, costWarnUSD)
		}
	case model.MetricRuleCompliance:
		if avg < complianceWarnBelow {
			add("average compliance score %.1f is below the %.0f review threshold", avg, complianceWarnBelow)
		}
	}

	if len(result.DataPoints) > 0 && len(result.DataPoints) < sufficiencyMinBuckets {
		add("only %d data buckets in this window; treat these figures as low-confidence", len(result.DataPoints))
	}

	return insights
}
