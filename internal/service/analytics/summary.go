package analytics

import (
	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/storage"
)

// trendThreshold is the fractional movement between the first and last
// third of a series that counts as a trend. ±5%.
const trendThreshold = 0.05

// summarize computes total, mean, trend, and the optional period
// comparison for a bucketed series.
func summarize(buckets []storage.Bucket) model.Summary {
	s := model.Summary{Trend: model.TrendStable}
	if len(buckets) == 0 {
		return s
	}

	for _, b := range buckets {
		s.Total += b.Value
	}
	s.Average = s.Total / float64(len(buckets))
	s.Trend = trend(buckets)

	if len(buckets) >= 4 {
		s.Comparison = comparePeriods(buckets)
	}
	return s
}

// trend compares the mean of the first third of buckets against the mean
// of the last third. Movement beyond ±5% is a trend; fewer than 3 buckets
// is stable by definition.
func trend(buckets []storage.Bucket) model.TrendDirection {
	if len(buckets) < 3 {
		return model.TrendStable
	}
	third := len(buckets) / 3
	first := mean(buckets[:third])
	last := mean(buckets[len(buckets)-third:])

	if first == 0 {
		if last > 0 {
			return model.TrendIncreasing
		}
		return model.TrendStable
	}

	change := (last - first) / first
	switch {
	case change > trendThreshold:
		return model.TrendIncreasing
	case change < -trendThreshold:
		return model.TrendDecreasing
	default:
		return model.TrendStable
	}
}

// comparePeriods splits the series at its midpoint and reports each half's
// mean, their difference, and the percentage change. Requires ≥4 buckets.
func comparePeriods(buckets []storage.Bucket) *model.PeriodComparison {
	mid := len(buckets) / 2
	first := mean(buckets[:mid])
	second := mean(buckets[mid:])

	c := &model.PeriodComparison{
		FirstHalfMean:  first,
		SecondHalfMean: second,
		Change:         second - first,
	}
	if first != 0 {
		c.ChangePercent = (second - first) / first * 100
	}
	return c
}

func mean(buckets []storage.Bucket) float64 {
	if len(buckets) == 0 {
		return 0
	}
	var sum float64
	for _, b := range buckets {
		sum += b.Value
	}
	return sum / float64(len(buckets))
}
