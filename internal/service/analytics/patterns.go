package analytics

import (
	"sort"
	"strings"

	"github.com/merchly-ai/attest/internal/model"
)

// errorCategory pairs a bucket label with the keywords that land an error
// text in it. Categories are checked in order; the first match wins, and
// anything unmatched falls into "Other Errors".
type errorCategory struct {
	Label    string
	Keywords []string
}

var errorCategories = []errorCategory{
	{"Network Issues", []string{"timeout", "connection", "network", "unreachable", "refused", "dns"}},
	{"Syntax Errors", []string{"syntax", "parse", "unexpected token", "malformed"}},
	{"Authentication", []string{"auth", "unauthorized", "forbidden", "credential", "token expired", "api key"}},
	{"Validation Errors", []string{"invalid", "validation", "required", "missing field", "out of range"}},
	{"Database Issues", []string{"database", "sqlite", "sql", "constraint", "locked", "no such table"}},
	{"Resource Issues", []string{"memory", "disk", "resource", "quota", "rate limit", "too many"}},
}

const otherErrorsLabel = "Other Errors"

// classifyErrors buckets error texts by keyword category and returns the
// top-N buckets by count, descending, ties broken by label for stable
// output.
func classifyErrors(texts []string, topN int) []model.DataPoint {
	counts := make(map[string]int)
	for _, text := range texts {
		counts[classify(text)]++
	}

	points := make([]model.DataPoint, 0, len(counts))
	for label, count := range counts {
		points = append(points, model.DataPoint{Label: label, Value: float64(count)})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Value != points[j].Value {
			return points[i].Value > points[j].Value
		}
		return points[i].Label < points[j].Label
	})

	if len(points) > topN {
		points = points[:topN]
	}
	return points
}

func classify(text string) string {
	lower := strings.ToLower(text)
	for _, cat := range errorCategories {
		for _, kw := range cat.Keywords {
			if strings.Contains(lower, kw) {
				return cat.Label
			}
		}
	}
	return otherErrorsLabel
}
