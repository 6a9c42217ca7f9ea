package testgen

import (
	"regexp"
	"strings"

	"github.com/merchly-ai/attest/internal/model"
)

var fencedBlock = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\n(.*?)```")

// extractTestCode pulls the first fenced code block out of a completion.
// When no block exists the whole response is treated as code.
func extractTestCode(content string) string {
	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(content)
}

// recommendation-shaped lines mention one of these verbs and fall into a
// sane length band.
var recommendationWords = []string{"recommend", "suggest", "improve", "consider"}

const (
	minRecommendationLen = 10
	maxRecommendationLen = 200
)

// extractRecommendations scans the prose around the code block for
// actionable follow-up lines, capped at MaxTestRecommendations.
func extractRecommendations(content string) []string {
	// Recommendations live outside the code blocks.
	prose := fencedBlock.ReplaceAllString(content, "")

	var recs []string
	for _, line := range strings.Split(prose, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*• \t"))
		if len(line) < minRecommendationLen || len(line) > maxRecommendationLen {
			continue
		}
		lower := strings.ToLower(line)
		for _, word := range recommendationWords {
			if strings.Contains(lower, word) {
				recs = append(recs, line)
				break
			}
		}
		if len(recs) == model.MaxTestRecommendations {
			break
		}
	}
	return recs
}

// Coverage heuristic weights. The estimate starts from a base, adds
// individually capped signal bonuses found in the generated code, then
// scales by category and complexity. The result is an estimate and is
// clamped below 100 so it can never read as a measured figure.
const (
	coverageBase = 50

	perTestCaseBonus = 2
	testCaseCap      = 15
	perAssertBonus   = 1
	assertCap        = 10
	mockingBonus     = 5
	errorPathBonus   = 5
	boundaryBonus    = 5
)

var categoryWeights = map[model.TestCategory]float64{
	model.TestCategoryUnit:        1.0,
	model.TestCategoryIntegration: 0.9,
	model.TestCategoryPerformance: 0.85,
	model.TestCategoryE2E:         0.8,
}

var complexityWeights = map[model.ComplexityTier]float64{
	model.ComplexityBasic:        0.9,
	model.ComplexityIntermediate: 1.0,
	model.ComplexityAdvanced:     1.1,
}

var (
	testCaseMarkers = []string{"it(", "test(", "func test", "def test_"}
	assertMarkers   = []string{"expect(", "assert", "should"}
	mockMarkers     = []string{"mock", "stub", "spy", "fake"}
	errorMarkers    = []string{"throw", "error", "reject", "catch", "panic"}
	boundaryMarkers = []string{"boundary", "edge", "empty", "null", "zero", "overflow"}
)

func countOccurrences(code string, markers []string) int {
	n := 0
	for _, m := range markers {
		n += strings.Count(code, m)
	}
	return n
}

func containsAny(code string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(code, m) {
			return true
		}
	}
	return false
}

// estimateCoverage computes the heuristic coverage estimate for generated
// test code, in [0, MaxCoverageEstimate].
func estimateCoverage(testCode string, category model.TestCategory, complexity model.ComplexityTier) int {
	lower := strings.ToLower(testCode)

	score := float64(coverageBase)

	if bonus := countOccurrences(lower, testCaseMarkers) * perTestCaseBonus; bonus > 0 {
		score += float64(min(bonus, testCaseCap))
	}
	if bonus := countOccurrences(lower, assertMarkers) * perAssertBonus; bonus > 0 {
		score += float64(min(bonus, assertCap))
	}
	if containsAny(lower, mockMarkers) {
		score += mockingBonus
	}
	if containsAny(lower, errorMarkers) {
		score += errorPathBonus
	}
	if containsAny(lower, boundaryMarkers) {
		score += boundaryBonus
	}

	if w, ok := categoryWeights[category]; ok {
		score *= w
	}
	if w, ok := complexityWeights[complexity]; ok {
		score *= w
	}

	estimate := int(score)
	if estimate < 0 {
		estimate = 0
	}
	if estimate > model.MaxCoverageEstimate {
		estimate = model.MaxCoverageEstimate
	}
	return estimate
}
