package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RuleCategory selects the review guidance embedded in the validation prompt.
type RuleCategory string

const (
	RuleCategoryValidation  RuleCategory = "validation"
	RuleCategoryCalculation RuleCategory = "calculation"
	RuleCategoryWorkflow    RuleCategory = "workflow"
	RuleCategorySecurity    RuleCategory = "security"
)

// Valid reports whether c is a known rule category.
func (c RuleCategory) Valid() bool {
	switch c {
	case RuleCategoryValidation, RuleCategoryCalculation, RuleCategoryWorkflow, RuleCategorySecurity:
		return true
	}
	return false
}

// ComplianceStatus is the overall verdict of a rule validation.
type ComplianceStatus string

const (
	StatusCompliant          ComplianceStatus = "compliant"
	StatusNonCompliant       ComplianceStatus = "non-compliant"
	StatusPartiallyCompliant ComplianceStatus = "partially-compliant"
	StatusNeedsReview        ComplianceStatus = "needs-review"
)

// Valid reports whether s is a known compliance status.
func (s ComplianceStatus) Valid() bool {
	switch s {
	case StatusCompliant, StatusNonCompliant, StatusPartiallyCompliant, StatusNeedsReview:
		return true
	}
	return false
}

// IssueType classifies a single extracted issue.
type IssueType string

const (
	IssueError      IssueType = "error"
	IssueWarning    IssueType = "warning"
	IssueSuggestion IssueType = "suggestion"
)

// IssueSeverity ranks an extracted issue.
type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

// RiskLevel is the overall risk verdict.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Output caps, enforced during extraction to bound result size.
const (
	MaxIssues              = 10
	MaxRuleRecommendations = 7
	MaxRiskFactors         = 10
)

// MaxRuleCodeLen bounds the submitted code snippet.
const MaxRuleCodeLen = 128 * 1024 // 128 KB

// RuleValidationRequest is the input to the rule analyzer.
type RuleValidationRequest struct {
	Category        RuleCategory `json:"category"`
	Code            string       `json:"code"`
	Domain          string       `json:"domain"`
	RelatedEntities []string     `json:"related_entities,omitempty"`
	Constraints     []string     `json:"constraints,omitempty"`
	ExpectedOutcome string       `json:"expected_outcome,omitempty"`
	AnalysisDepth   string       `json:"analysis_depth,omitempty"` // free-form hint, e.g. "thorough"
	Provider        ProviderName `json:"provider,omitempty"`
	CallerID        string       `json:"-"` // set from JWT claims, never from the body
}

// ValidateRuleValidationRequest checks required fields and enum values.
func ValidateRuleValidationRequest(req RuleValidationRequest) error {
	if !req.Category.Valid() {
		return fmt.Errorf("unknown rule category %q", req.Category)
	}
	if req.Code == "" {
		return fmt.Errorf("code is required")
	}
	if len(req.Code) > MaxRuleCodeLen {
		return fmt.Errorf("code exceeds maximum length of %d bytes", MaxRuleCodeLen)
	}
	if req.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if req.Provider != "" && !req.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", req.Provider)
	}
	return nil
}

// Issue is one discrete finding extracted from the model's response.
type Issue struct {
	Type       IssueType     `json:"type"`
	Severity   IssueSeverity `json:"severity"`
	Message    string        `json:"message"`
	Line       *int          `json:"line,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"`
}

// BusinessLogicAssessment holds the boolean flags and the two static scores.
// Maintainability and Testability are computed from the submitted code, not
// from the model's text, and are authoritative regardless of what the model
// claims.
type BusinessLogicAssessment struct {
	Valid           bool `json:"valid"`
	Consistent      bool `json:"consistent"`
	Complete        bool `json:"complete"`
	Maintainability int  `json:"maintainability"` // 0-100
	Testability     int  `json:"testability"`     // 0-100
}

// RiskAssessment is the extracted risk section.
type RiskAssessment struct {
	Level       RiskLevel `json:"level"`
	Factors     []string  `json:"factors,omitempty"`
	Mitigations []string  `json:"mitigations,omitempty"`
}

// RuleValidationOutcome is the structured result of one analyzer invocation.
// Degraded lists the fields that fell back to their documented defaults
// because the model's text did not match the expected shape; a degraded
// extraction is still a success.
type RuleValidationOutcome struct {
	CorrelationID   uuid.UUID               `json:"correlation_id"`
	Success         bool                    `json:"success"`
	ComplianceScore int                     `json:"compliance_score"` // 0-100, category-adjusted
	Status          ComplianceStatus        `json:"status"`
	Issues          []Issue                 `json:"issues,omitempty"`
	BusinessLogic   BusinessLogicAssessment `json:"business_logic"`
	Recommendations []string                `json:"recommendations,omitempty"`
	Risk            RiskAssessment          `json:"risk"`
	Degraded        []string                `json:"degraded_fields,omitempty"`
	Latency         time.Duration           `json:"latency"`
	Model           string                  `json:"model,omitempty"`
	Provider        ProviderName            `json:"provider,omitempty"`
	Category        RuleCategory            `json:"category"`
	Error           string                  `json:"error,omitempty"`
}

// ClampScore clamps a 0-100 score into range.
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
