package rules

import (
	"fmt"
	"strings"

	"github.com/merchly-ai/attest/internal/model"
)

// categoryGuidance steers the review toward the failure modes each rule
// category attracts.
var categoryGuidance = map[model.RuleCategory]string{
	model.RuleCategoryValidation: "Focus on input sanitation: missing checks, type coercion surprises, " +
		"range and format constraints, and inputs used before validation.",
	model.RuleCategoryCalculation: "Focus on numeric correctness: rounding, precision, overflow, currency " +
		"handling, division by zero, and boundary values.",
	model.RuleCategoryWorkflow: "Focus on state transitions: unreachable or missing states, ordering " +
		"violations, authorization of each transition, and failure recovery.",
	model.RuleCategorySecurity: "Focus on security: injection, authentication and authorization gaps, " +
		"secrets in code, unsafe dynamic evaluation, and OWASP-style weaknesses.",
}

// buildPrompt assembles the validation prompt. The response is requested in
// four labeled sections so the extractor has a predictable shape to scan,
// while still tolerating free-form answers.
func buildPrompt(req model.RuleValidationRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review the following %s business rule from the %s domain of a storefront.\n\n",
		req.Category, req.Domain)
	b.WriteString(categoryGuidance[req.Category])
	b.WriteString("\n\n")

	if len(req.RelatedEntities) > 0 {
		fmt.Fprintf(&b, "Related entities: %s\n", strings.Join(req.RelatedEntities, ", "))
	}
	if len(req.Constraints) > 0 {
		b.WriteString("Constraints the rule must honor:\n")
		for _, c := range req.Constraints {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if req.ExpectedOutcome != "" {
		fmt.Fprintf(&b, "Expected outcome: %s\n", req.ExpectedOutcome)
	}
	if req.AnalysisDepth != "" {
		fmt.Fprintf(&b, "Analysis depth: %s\n", req.AnalysisDepth)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Rule code:\n```\n%s\n```\n\n", req.Code)

	b.WriteString("Structure the response in four sections:\n" +
		"1. Compliance: a score out of 100, a status (compliant, non-compliant, " +
		"partially-compliant, or needs-review), and an Issues list.\n" +
		"2. Business logic: whether the rule is valid, consistent, and complete.\n" +
		"3. Recommendations: a bulleted list of concrete improvements.\n" +
		"4. Risk: a risk level (low, medium, high, critical), risk factors, and mitigations.\n")

	return b.String()
}
