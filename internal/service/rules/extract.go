package rules

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/merchly-ai/attest/internal/model"
)

// report is the raw extraction output before category adjustments and
// static scoring are applied.
type report struct {
	Score           int
	Status          model.ComplianceStatus
	Issues          []model.Issue
	Valid           bool
	Consistent      bool
	Complete        bool
	Recommendations []string
	Risk            model.RiskAssessment
}

// Documented extraction defaults. A field that falls back is recorded in
// the degraded list; extraction itself never fails.
const (
	defaultScore  = 50
	defaultStatus = model.StatusNeedsReview
	defaultRisk   = model.RiskMedium
)

const minBulletLen = 10

var (
	scorePattern  = regexp.MustCompile(`(?i)(?:score|compliance)[^\d]{0,20}(\d{1,3})\s*(?:/\s*100)?`)
	slashPattern  = regexp.MustCompile(`(\d{1,3})\s*/\s*100`)
	linePattern   = regexp.MustCompile(`(?i)\bline\s+(\d+)`)
	riskPattern   = regexp.MustCompile(`(?i)\brisk(?:\s+level)?\b[^a-z]{0,10}(low|medium|high|critical)`)
	bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s*(.+)$`)
)

// boolPattern and sectionPattern are templates instantiated per label.
const (
	boolPattern    = `(?i)\b%s\b[^.\n]{0,40}?\b(true|yes|false|no)\b`
	sectionPattern = `(?i)^[#\d.\s]*(?:\*\*)?\s*(?:%s)\b[^\n]{0,40}$`
)

// extractReport parses free-form model text into a structured report. Each
// step is independent; a step that finds nothing applies its default and
// records the field name. The function is total: any input, including empty
// text, yields a complete report.
func extractReport(text string) (report, []string) {
	var degraded []string
	r := report{
		Score:  defaultScore,
		Status: defaultStatus,
		Risk:   model.RiskAssessment{Level: defaultRisk},
	}

	if score, ok := findScore(text); ok {
		r.Score = model.ClampScore(score)
	} else {
		degraded = append(degraded, "compliance_score")
	}

	if status, ok := findStatus(text); ok {
		r.Status = status
	} else {
		degraded = append(degraded, "status")
	}

	if issues := findIssues(text); len(issues) > 0 {
		r.Issues = issues
	} else {
		degraded = append(degraded, "issues")
	}

	valid, validFound := findBool(text, "valid(?:ity)?")
	consistent, consistentFound := findBool(text, "consisten(?:t|cy)")
	complete, completeFound := findBool(text, "complete(?:ness)?")
	r.Valid, r.Consistent, r.Complete = valid, consistent, complete
	if !validFound && !consistentFound && !completeFound {
		degraded = append(degraded, "business_logic")
	}

	if recs := sectionBullets(text, "recommendations|suggestions", model.MaxRuleRecommendations); len(recs) > 0 {
		r.Recommendations = recs
	} else {
		degraded = append(degraded, "recommendations")
	}

	if m := riskPattern.FindStringSubmatch(text); m != nil {
		r.Risk.Level = model.RiskLevel(strings.ToLower(m[1]))
	} else {
		degraded = append(degraded, "risk_level")
	}
	r.Risk.Factors = sectionBullets(text, "risk factors?", model.MaxRiskFactors)
	r.Risk.Mitigations = sectionBullets(text, "mitigations?", model.MaxRiskFactors)
	if len(r.Risk.Factors) == 0 {
		degraded = append(degraded, "risk_factors")
	}

	return r, degraded
}

func findScore(text string) (int, bool) {
	if m := scorePattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	if m := slashPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return n, true
		}
	}
	return 0, false
}

// findStatus scans for the four allowed status keywords. Longer keywords
// are checked first so "non-compliant" is not misread as "compliant".
func findStatus(text string) (model.ComplianceStatus, bool) {
	lower := strings.ToLower(text)
	lower = strings.ReplaceAll(lower, "partially compliant", "partially-compliant")
	lower = strings.ReplaceAll(lower, "non compliant", "non-compliant")
	lower = strings.ReplaceAll(lower, "needs review", "needs-review")

	for _, status := range []model.ComplianceStatus{
		model.StatusPartiallyCompliant,
		model.StatusNonCompliant,
		model.StatusNeedsReview,
		model.StatusCompliant,
	} {
		if strings.Contains(lower, string(status)) {
			return status, true
		}
	}
	return "", false
}

// findIssues parses the issues section into discrete records. Severity and
// type are inferred from keyword presence; absent keywords default to
// medium/suggestion.
func findIssues(text string) []model.Issue {
	var issues []model.Issue
	for _, line := range sectionBullets(text, "issues|problems|violations", model.MaxIssues) {
		issue := model.Issue{
			Type:     issueType(line),
			Severity: issueSeverity(line),
			Message:  line,
		}
		if m := linePattern.FindStringSubmatch(line); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				issue.Line = &n
			}
		}
		issues = append(issues, issue)
	}
	return issues
}

func issueType(line string) model.IssueType {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"):
		return model.IssueError
	case strings.Contains(lower, "warning"):
		return model.IssueWarning
	default:
		return model.IssueSuggestion
	}
}

func issueSeverity(line string) model.IssueSeverity {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "critical"):
		return model.SeverityCritical
	case strings.Contains(lower, "high"):
		return model.SeverityHigh
	case strings.Contains(lower, "low"):
		return model.SeverityLow
	default:
		return model.SeverityMedium
	}
}

// findBool locates a labeled boolean-flavored field. "true"/"yes" map to
// true, "false"/"no" to false. The second return reports whether the label
// was found at all.
func findBool(text, label string) (bool, bool) {
	re := regexp.MustCompile(strings.Replace(boolPattern, "%s", label, 1))
	if m := re.FindStringSubmatch(text); m != nil {
		v := strings.ToLower(m[1])
		return v == "true" || v == "yes", true
	}
	return false, false
}

// sectionBullets finds a labeled section and returns its bullet or numbered
// lines, trimmed of list markers, filtered by minimum length, capped.
func sectionBullets(text, labels string, limit int) []string {
	header := regexp.MustCompile(strings.Replace(sectionPattern, "%s", labels, 1))

	lines := strings.Split(text, "\n")
	start := -1
	for i, line := range lines {
		if header.MatchString(strings.TrimSpace(line)) {
			start = i + 1
			break
		}
	}
	if start < 0 {
		return nil
	}

	var out []string
	for _, line := range lines[start:] {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(out) > 0 {
				break
			}
			continue
		}
		m := bulletPattern.FindStringSubmatch(line)
		if m == nil {
			// A non-bullet line ends the section once bullets have started,
			// and a new section header ends it even before any bullet.
			if len(out) > 0 || strings.HasSuffix(trimmed, ":") {
				break
			}
			continue
		}
		item := strings.TrimSpace(m[1])
		if len(item) < minBulletLen {
			continue
		}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
