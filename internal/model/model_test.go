package model

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPurposeValid(t *testing.T) {
	assert.True(t, PurposeTestGeneration.Valid())
	assert.True(t, PurposeRuleValidation.Valid())
	assert.True(t, PurposeCodeAnalysis.Valid())
	assert.False(t, Purpose("chat").Valid())
	assert.False(t, Purpose("").Valid())
}

func TestProviderNameValid(t *testing.T) {
	for _, n := range []ProviderName{ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderLMStudio, ProviderMock} {
		assert.True(t, n.Valid(), string(n))
	}
	assert.False(t, ProviderName("gemini").Valid())
}

func TestValidateCompletionRequest(t *testing.T) {
	valid := CompletionRequest{Purpose: PurposeTestGeneration, Prompt: "generate tests"}
	require.NoError(t, ValidateCompletionRequest(valid))

	missing := valid
	missing.Prompt = ""
	assert.Error(t, ValidateCompletionRequest(missing))

	badPurpose := valid
	badPurpose.Purpose = "chitchat"
	assert.Error(t, ValidateCompletionRequest(badPurpose))

	oversized := valid
	oversized.Prompt = strings.Repeat("x", MaxPromptLen+1)
	assert.Error(t, ValidateCompletionRequest(oversized))

	badProvider := valid
	badProvider.Provider = "gemini"
	assert.Error(t, ValidateCompletionRequest(badProvider))
}

func TestValidateTestGenerationRequest(t *testing.T) {
	valid := TestGenerationRequest{
		TargetFunction: "calculateTotal",
		Category:       TestCategoryUnit,
		SourcePath:     "src/cart.js",
	}
	require.NoError(t, ValidateTestGenerationRequest(valid))

	tests := []struct {
		name   string
		mutate func(*TestGenerationRequest)
	}{
		{"missing target", func(r *TestGenerationRequest) { r.TargetFunction = "" }},
		{"bad category", func(r *TestGenerationRequest) { r.Category = "smoke" }},
		{"missing source", func(r *TestGenerationRequest) { r.SourcePath = "" }},
		{"bad complexity", func(r *TestGenerationRequest) { r.Complexity = "extreme" }},
		{"coverage out of range", func(r *TestGenerationRequest) { r.TargetCoverage = 120 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.mutate(&req)
			assert.Error(t, ValidateTestGenerationRequest(req))
		})
	}
}

func TestValidateRuleValidationRequest(t *testing.T) {
	valid := RuleValidationRequest{
		Category: RuleCategorySecurity,
		Code:     "function checkAuth(user) { return user.role === 'admin'; }",
		Domain:   "checkout",
	}
	require.NoError(t, ValidateRuleValidationRequest(valid))

	missing := valid
	missing.Code = ""
	assert.Error(t, ValidateRuleValidationRequest(missing))

	badCategory := valid
	badCategory.Category = "styling"
	assert.Error(t, ValidateRuleValidationRequest(badCategory))

	oversized := valid
	oversized.Code = strings.Repeat("a", MaxRuleCodeLen+1)
	assert.Error(t, ValidateRuleValidationRequest(oversized))
}

func TestValidateAnalyticsQuery(t *testing.T) {
	now := time.Now().UTC()
	valid := AnalyticsQuery{
		Metric: MetricTestCoverage,
		Range:  TimeRange{From: now.Add(-24 * time.Hour), To: now},
	}
	require.NoError(t, ValidateAnalyticsQuery(valid))

	badMetric := valid
	badMetric.Metric = "velocity"
	assert.Error(t, ValidateAnalyticsQuery(badMetric))

	inverted := valid
	inverted.Range = TimeRange{From: now, To: now.Add(-time.Hour)}
	assert.Error(t, ValidateAnalyticsQuery(inverted))

	badGroup := valid
	badGroup.GroupBy = "hour"
	assert.Error(t, ValidateAnalyticsQuery(badGroup))
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0, ClampScore(-10))
	assert.Equal(t, 100, ClampScore(150))
	assert.Equal(t, 75, ClampScore(75))
}
