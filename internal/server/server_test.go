package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchly-ai/attest/internal/auth"
	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/progress"
	"github.com/merchly-ai/attest/internal/provider"
	"github.com/merchly-ai/attest/internal/ratelimit"
	"github.com/merchly-ai/attest/internal/server"
	"github.com/merchly-ai/attest/internal/service/analytics"
	"github.com/merchly-ai/attest/internal/service/rules"
	"github.com/merchly-ai/attest/internal/service/testgen"
	"github.com/merchly-ai/attest/internal/storage"
	"github.com/merchly-ai/attest/internal/testutil"
)

const (
	testCallerID = "checkout-ci"
	testAPIKey   = "test-api-key-123"
)

type testEnv struct {
	srv *server.Server
	db  *storage.DB
}

// newTestEnv wires a full server against an in-memory store and the mock
// provider, with a seeded caller and a seeded source file.
func newTestEnv(t *testing.T, limiter ratelimit.Limiter) *testEnv {
	t.Helper()
	logger := testutil.DiscardLogger()
	db := testutil.NewTestDB(t)

	hash, err := auth.HashAPIKey(testAPIKey)
	require.NoError(t, err)
	require.NoError(t, db.UpsertCaller(context.Background(), testCallerID, hash))

	sourceRoot := t.TempDir()
	require.NoError(t, os.WriteFile(
		filepath.Join(sourceRoot, "checkout.js"),
		[]byte("function applyDiscount(total, pct) {\n  if (pct < 0 || pct > 100) throw new Error('invalid pct');\n  return total * (1 - pct / 100);\n}\n"),
		0644,
	))

	gateway := provider.NewGateway(
		[]provider.Provider{provider.NewMockClientNoDelay()},
		db, logger, provider.GatewayOptions{MockEligible: true},
	)
	hub := progress.NewHub(logger)
	reader := testgen.NewFileSourceReader(sourceRoot)

	jwtMgr, err := auth.NewJWTManager("", "", time.Hour)
	require.NoError(t, err)

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		TestGen:             testgen.NewPipeline(gateway, reader, db, hub, logger),
		RuleSvc:             rules.NewAnalyzer(gateway, db, hub, logger),
		AnalyticsSvc:        analytics.NewEngine(db, logger),
		Hub:                 hub,
		Logger:              logger,
		Limiter:             limiter,
		Port:                0,
		Version:             "test",
		Providers:           "mock",
		MaxRequestBodyBytes: 1 << 20,
		RateLimitWindow:     time.Minute,
	})

	return &testEnv{srv: srv, db: db}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "198.51.100.1:4000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) token(t *testing.T) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{
		CallerID: testCallerID,
		APIKey:   testAPIKey,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data model.AuthTokenResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T                  `json:"data"`
		Meta model.ResponseMeta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Meta.RequestID)
	return resp.Data
}

func genRequest() model.TestGenerationRequest {
	return model.TestGenerationRequest{
		TargetFunction: "applyDiscount",
		Category:       model.TestCategoryUnit,
		SourcePath:     "checkout.js",
		BusinessRules:  []string{"discount percent must be within [0,100]"},
	}
}

func ruleRequest() model.RuleValidationRequest {
	return model.RuleValidationRequest{
		Category: model.RuleCategoryValidation,
		Code:     "function validateSKU(sku) {\n  return /^[A-Z]{3}-\\d{4}$/.test(sku);\n}",
		Domain:   "catalog",
	}
}

func TestAuthTokenExchange(t *testing.T) {
	env := newTestEnv(t, nil)

	token := env.token(t)
	assert.NotEmpty(t, token)

	rec := env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{
		CallerID: testCallerID,
		APIKey:   "wrong-key",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{
		CallerID: "nobody",
		APIKey:   testAPIKey,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/auth/token", "", model.AuthTokenRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodPost, "/v1/tests/generate", "", genRequest())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/tests/generate", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Basic abc123")
	rec2 := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec2, req)
	assert.Equal(t, http.StatusUnauthorized, rec2.Code)

	rec = env.do(t, http.MethodPost, "/v1/tests/generate", "not-a-jwt", genRequest())
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateTestsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	rec := env.do(t, http.MethodPost, "/v1/tests/generate", token, genRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	outcome := decodeData[model.TestGenerationOutcome](t, rec)
	assert.True(t, outcome.Success)
	assert.Contains(t, outcome.TestCode, "describe(")
	assert.Equal(t, model.ProviderMock, outcome.Provider)
	assert.Equal(t, model.TestCategoryUnit, outcome.Category)
	assert.Equal(t, model.ComplexityIntermediate, outcome.Complexity)
	assert.Greater(t, outcome.EstimatedCoverage, 0)
	assert.LessOrEqual(t, outcome.EstimatedCoverage, model.MaxCoverageEstimate)
	assert.NotEqual(t, uuid.Nil, outcome.CorrelationID)
}

func TestGenerateTestsInvalidRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	req := genRequest()
	req.Category = "quantum"
	rec := env.do(t, http.MethodPost, "/v1/tests/generate", token, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var apiErr model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, model.ErrCodeInvalidInput, apiErr.Error.Code)
}

func TestGenerateTestsMissingSource(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	req := genRequest()
	req.SourcePath = "does-not-exist.js"
	rec := env.do(t, http.MethodPost, "/v1/tests/generate", token, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestValidateRuleEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	rec := env.do(t, http.MethodPost, "/v1/rules/validate", token, ruleRequest())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	outcome := decodeData[model.RuleValidationOutcome](t, rec)
	assert.True(t, outcome.Success)
	// Mock response scores 78; validation rules carry no category adjustment.
	assert.Equal(t, 78, outcome.ComplianceScore)
	assert.Equal(t, model.StatusPartiallyCompliant, outcome.Status)
	assert.NotEmpty(t, outcome.Issues)
	assert.Greater(t, outcome.BusinessLogic.Maintainability, 0)
}

func TestAnalyticsQueryEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	ctx := context.Background()
	base := time.Now().UTC().AddDate(0, 0, -3)
	for i := 0; i < 3; i++ {
		require.NoError(t, env.db.InsertMetricEvent(ctx, model.MetricEvent{
			Type:      model.MetricTestCoverage,
			Value:     float64(60 + i*10),
			Timestamp: base.AddDate(0, 0, i),
			CallerID:  testCallerID,
		}))
	}

	q := model.AnalyticsQuery{
		Metric: model.MetricTestCoverage,
		Range: model.TimeRange{
			From: base.AddDate(0, 0, -1),
			To:   time.Now().UTC().Add(time.Hour),
		},
	}
	rec := env.do(t, http.MethodPost, "/v1/analytics/query", token, q)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decodeData[model.AnalyticsResult](t, rec)
	assert.Equal(t, model.MetricTestCoverage, result.Metric)
	assert.Len(t, result.DataPoints, 3)
	assert.InDelta(t, 70.0, result.Summary.Average, 0.01)
}

func TestAnalyticsQueryInvalid(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	rec := env.do(t, http.MethodPost, "/v1/analytics/query", token, model.AnalyticsQuery{
		Metric: "made-up-metric",
		Range: model.TimeRange{
			From: time.Now().Add(-time.Hour),
			To:   time.Now(),
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyticsOverviewEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	rec := env.do(t, http.MethodGet, "/v1/analytics/overview", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	results := decodeData[map[model.MetricType]model.AnalyticsResult](t, rec)
	assert.Len(t, results, 6)

	// Bad range parameter.
	rec = env.do(t, http.MethodGet, "/v1/analytics/overview?from=yesterday", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	health := decodeData[model.HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.Store)
	assert.Equal(t, "mock", health.Providers)
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/health", "", nil)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	// A provided request ID is echoed back.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "trace-me-42")
	rec2 := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec2, req)
	assert.Equal(t, "trace-me-42", rec2.Header().Get("X-Request-ID"))
}

func TestAuthTokenRateLimited(t *testing.T) {
	limiter := ratelimit.NewMemoryLimiter(2, time.Minute)
	t.Cleanup(func() { _ = limiter.Close() })
	env := newTestEnv(t, limiter)

	body := model.AuthTokenRequest{CallerID: testCallerID, APIKey: testAPIKey}
	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodPost, "/auth/token", "", body)
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := env.do(t, http.MethodPost, "/auth/token", "", body)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var apiErr model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &apiErr))
	assert.Equal(t, model.ErrCodeRateLimited, apiErr.Error.Code)
}

func TestGenerateTestsStream(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	id := uuid.New()
	rec := env.do(t, http.MethodPost, "/v1/tests/generate/stream", token, model.StreamRequest[model.TestGenerationRequest]{
		CorrelationID: id,
		Request:       genRequest(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: started")
	assert.Contains(t, body, "event: progress")
	assert.Contains(t, body, "event: completed")
	assert.Contains(t, body, id.String())

	// Late re-attach replays the full history from the hub.
	rec2 := env.do(t, http.MethodGet, "/v1/subscribe?correlation_id="+id.String(), token, nil)
	require.Equal(t, http.StatusOK, rec2.Code)
	assert.Contains(t, rec2.Body.String(), "event: completed")
}

func TestValidateRuleStream(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	// Zero correlation id: the server assigns one.
	rec := env.do(t, http.MethodPost, "/v1/rules/validate/stream", token, model.StreamRequest[model.RuleValidationRequest]{
		Request: ruleRequest(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := rec.Body.String()
	assert.Contains(t, body, "event: started")
	assert.Contains(t, body, "event: completed")
}

func TestStreamInvalidRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	rec := env.do(t, http.MethodPost, "/v1/tests/generate/stream", token, model.StreamRequest[model.TestGenerationRequest]{
		Request: model.TestGenerationRequest{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubscribeUnknownSession(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	rec := env.do(t, http.MethodGet, "/v1/subscribe?correlation_id="+uuid.NewString(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/subscribe", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/v1/subscribe?correlation_id=garbage", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownFieldRejected(t *testing.T) {
	env := newTestEnv(t, nil)
	token := env.token(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/rules/validate",
		strings.NewReader(`{"category":"validation","code":"x","domain":"d","surprise":true}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
