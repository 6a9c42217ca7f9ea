package rules

import (
	"regexp"

	"github.com/merchly-ai/attest/internal/model"
)

// categoryAdjustments shift the extracted compliance score per category:
// security reviews are graded stricter, calculations slightly more
// leniently. The adjusted score is clamped to [0,100].
var categoryAdjustments = map[model.RuleCategory]int{
	model.RuleCategorySecurity:    -5,
	model.RuleCategoryCalculation: +2,
	model.RuleCategoryWorkflow:    -2,
	model.RuleCategoryValidation:  0,
}

// adjustScore applies the category adjustment.
func adjustScore(raw int, category model.RuleCategory) int {
	return model.ClampScore(raw + categoryAdjustments[category])
}

// Static-heuristic weights for the maintainability and testability scores.
// Both start from the same base; signals in the submitted code move them.
// These are crude, deliberately stable estimates with no empirical claim
// behind them; changing any constant changes every persisted score's
// meaning, so treat them as frozen.
const (
	staticScoreBase = 70

	commentBonus        = 5 // maintainability: any comment present
	modernDeclBonus     = 3 // maintainability: const/let over var
	namedFunctionBonus  = 5 // testability: a named, callable unit
	explicitReturnBonus = 5 // testability: output is observable

	branchPenaltyPer   = 2 // both: each branching construct beyond the first
	branchPenaltyCap   = 20
	dynamicEvalPenalty = 15 // both: eval-style constructs

	lengthThreshold  = 1000 // maintainability: chars before length penalty
	lengthPenaltyPer = 100  // one point per this many chars beyond threshold
	lengthPenaltyCap = 20
)

var (
	commentMarker  = regexp.MustCompile(`//|/\*|(?m)^\s*#`)
	modernDecl     = regexp.MustCompile(`\b(?:const|let)\s+\w`)
	namedFunction  = regexp.MustCompile(`\bfunction\s+\w+|\b(?:const|let|var)\s+\w+\s*=\s*(?:async\s+)?(?:function\b|\()`)
	explicitReturn = regexp.MustCompile(`\breturn\b`)
	branching      = regexp.MustCompile(`\b(?:if|while|for)\s*\(`)
	dynamicEval    = regexp.MustCompile(`\beval\s*\(|\bnew\s+Function\s*\(`)
)

// staticScores computes the maintainability and testability estimates
// purely from the submitted code. Both are authoritative over anything the
// model claims about the code.
func staticScores(code string) (maintainability, testability int) {
	m, t := staticScoreBase, staticScoreBase

	if commentMarker.MatchString(code) {
		m += commentBonus
	}
	if modernDecl.MatchString(code) {
		m += modernDeclBonus
	}
	if namedFunction.MatchString(code) {
		t += namedFunctionBonus
	}
	if explicitReturn.MatchString(code) {
		t += explicitReturnBonus
	}

	if branches := len(branching.FindAllString(code, -1)); branches > 1 {
		penalty := (branches - 1) * branchPenaltyPer
		if penalty > branchPenaltyCap {
			penalty = branchPenaltyCap
		}
		m -= penalty
		t -= penalty
	}

	if dynamicEval.MatchString(code) {
		m -= dynamicEvalPenalty
		t -= dynamicEvalPenalty
	}

	if excess := len(code) - lengthThreshold; excess > 0 {
		penalty := excess / lengthPenaltyPer
		if penalty > lengthPenaltyCap {
			penalty = lengthPenaltyCap
		}
		m -= penalty
	}

	return model.ClampScore(m), model.ClampScore(t)
}
