package testgen

import (
	"fmt"
	"strings"

	"github.com/merchly-ai/attest/internal/model"
)

// categoryGuidance steers the provider toward the test style each category
// calls for. Keyed by category; every valid category has an entry.
var categoryGuidance = map[model.TestCategory]string{
	model.TestCategoryUnit: "Write focused unit tests that exercise the function in isolation. " +
		"Mock external dependencies. Cover the happy path, error paths, and boundary values.",
	model.TestCategoryIntegration: "Write integration tests that exercise the function together with its " +
		"real collaborators. Verify data flows across component boundaries and that failures propagate correctly.",
	model.TestCategoryE2E: "Write end-to-end tests that drive a complete user-visible flow through the " +
		"storefront. Assert on observable outcomes, not internal state.",
	model.TestCategoryPerformance: "Write performance tests that measure latency and throughput of the " +
		"function under load. Include a baseline assertion and a degradation threshold.",
}

// buildPrompt assembles the provider prompt for one generation request.
func buildPrompt(req model.TestGenerationRequest, source string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate %s tests for the function %q.\n\n", req.Category, req.TargetFunction)
	b.WriteString(categoryGuidance[req.Category])
	b.WriteString("\n\n")

	if len(req.Dependencies) > 0 {
		b.WriteString("Dependencies to account for:\n")
		for _, dep := range req.Dependencies {
			fmt.Fprintf(&b, "- %s\n", dep)
		}
		b.WriteString("\n")
	}
	if len(req.BusinessRules) > 0 {
		b.WriteString("Business rules the tests must verify:\n")
		for _, rule := range req.BusinessRules {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
		b.WriteString("\n")
	}
	if req.ExpectedBehavior != "" {
		fmt.Fprintf(&b, "Expected behavior: %s\n\n", req.ExpectedBehavior)
	}
	if req.TargetCoverage > 0 {
		fmt.Fprintf(&b, "Aim for roughly %d%% coverage of the function's branches.\n\n", req.TargetCoverage)
	}

	fmt.Fprintf(&b, "Source under test (%s):\n```\n%s\n```\n\n", req.SourcePath, source)
	b.WriteString("Return the complete test code in a single fenced code block, " +
		"followed by any recommendations for further testing.")

	return b.String()
}
