package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TestCategory selects the generation strategy and prompt guidance.
type TestCategory string

const (
	TestCategoryUnit        TestCategory = "unit"
	TestCategoryIntegration TestCategory = "integration"
	TestCategoryE2E         TestCategory = "e2e"
	TestCategoryPerformance TestCategory = "performance"
)

// Valid reports whether c is a known test category.
func (c TestCategory) Valid() bool {
	switch c {
	case TestCategoryUnit, TestCategoryIntegration, TestCategoryE2E, TestCategoryPerformance:
		return true
	}
	return false
}

// ComplexityTier weights the coverage estimate.
type ComplexityTier string

const (
	ComplexityBasic        ComplexityTier = "basic"
	ComplexityIntermediate ComplexityTier = "intermediate"
	ComplexityAdvanced     ComplexityTier = "advanced"
)

// Valid reports whether t is a known complexity tier.
func (t ComplexityTier) Valid() bool {
	switch t {
	case ComplexityBasic, ComplexityIntermediate, ComplexityAdvanced:
		return true
	}
	return false
}

// TestRunStatus is the terminal execution status of a generation run.
type TestRunStatus string

const (
	TestRunGenerated TestRunStatus = "generated"
	TestRunFailed    TestRunStatus = "failed"
)

// Caps on test-generation output, enforced during extraction.
const (
	MaxTestRecommendations = 5
	MaxCoverageEstimate    = 95 // heuristic estimate; real coverage is never claimed
)

// TestGenerationRequest is the input to the test-generation pipeline.
type TestGenerationRequest struct {
	TargetFunction   string         `json:"target_function"`
	Category         TestCategory   `json:"category"`
	SourcePath       string         `json:"source_path"`
	Dependencies     []string       `json:"dependencies,omitempty"`
	BusinessRules    []string       `json:"business_rules,omitempty"`
	ExpectedBehavior string         `json:"expected_behavior,omitempty"`
	Complexity       ComplexityTier `json:"complexity,omitempty"`      // default intermediate
	TargetCoverage   int            `json:"target_coverage,omitempty"` // percent, advisory
	Provider         ProviderName   `json:"provider,omitempty"`
	CallerID         string         `json:"-"` // set from JWT claims, never from the body
}

// ValidateTestGenerationRequest checks required fields and enum values.
func ValidateTestGenerationRequest(req TestGenerationRequest) error {
	if req.TargetFunction == "" {
		return fmt.Errorf("target_function is required")
	}
	if !req.Category.Valid() {
		return fmt.Errorf("unknown test category %q", req.Category)
	}
	if req.SourcePath == "" {
		return fmt.Errorf("source_path is required")
	}
	if req.Complexity != "" && !req.Complexity.Valid() {
		return fmt.Errorf("unknown complexity tier %q", req.Complexity)
	}
	if req.TargetCoverage < 0 || req.TargetCoverage > 100 {
		return fmt.Errorf("target_coverage must be in [0,100]")
	}
	if req.Provider != "" && !req.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", req.Provider)
	}
	return nil
}

// TestGenerationOutcome is the structured result of one pipeline invocation.
// EstimatedCoverage is a heuristic in [0,95]; it is never a measured figure.
type TestGenerationOutcome struct {
	CorrelationID     uuid.UUID      `json:"correlation_id"`
	Success           bool           `json:"success"`
	TestCode          string         `json:"test_code,omitempty"`
	EstimatedCoverage int            `json:"estimated_coverage"`
	Recommendations   []string       `json:"recommendations,omitempty"`
	Latency           time.Duration  `json:"latency"`
	Model             string         `json:"model,omitempty"`
	Provider          ProviderName   `json:"provider,omitempty"`
	Category          TestCategory   `json:"category"`
	Complexity        ComplexityTier `json:"complexity"`
	Error             string         `json:"error,omitempty"`
}
