package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/merchly-ai/attest/internal/auth"
	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/progress"
	"github.com/merchly-ai/attest/internal/service/analytics"
	"github.com/merchly-ai/attest/internal/service/rules"
	"github.com/merchly-ai/attest/internal/service/testgen"
	"github.com/merchly-ai/attest/internal/storage"
)

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	db                  *storage.DB
	jwtMgr              *auth.JWTManager
	testGen             *testgen.Pipeline
	ruleSvc             *rules.Analyzer
	analyticsSvc        *analytics.Engine
	hub                 *progress.Hub
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	providers           string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
type HandlersDeps struct {
	DB                  *storage.DB
	JWTMgr              *auth.JWTManager
	TestGen             *testgen.Pipeline
	RuleSvc             *rules.Analyzer
	AnalyticsSvc        *analytics.Engine
	Hub                 *progress.Hub
	Logger              *slog.Logger
	Version             string
	Providers           string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	return &Handlers{
		db:                  d.DB,
		jwtMgr:              d.JWTMgr,
		testGen:             d.TestGen,
		ruleSvc:             d.RuleSvc,
		analyticsSvc:        d.AnalyticsSvc,
		hub:                 d.Hub,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		providers:           d.Providers,
		maxRequestBodyBytes: d.MaxRequestBodyBytes,
	}
}

// HandleAuthToken handles POST /auth/token.
// Exchanges a caller_id + api_key pair for a short-lived JWT.
func (h *Handlers) HandleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req model.AuthTokenRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if req.CallerID == "" || req.APIKey == "" {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "caller_id and api_key are required")
		return
	}

	hash, err := h.db.GetCallerKeyHash(r.Context(), req.CallerID)
	if err != nil {
		// Burn comparable time so unknown callers are indistinguishable
		// from wrong keys.
		auth.DummyVerify()
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	valid, err := auth.VerifyAPIKey(req.APIKey, hash)
	if err != nil || !valid {
		writeError(w, r, http.StatusUnauthorized, model.ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := h.jwtMgr.IssueToken(req.CallerID)
	if err != nil {
		h.writeInternalError(w, r, "failed to issue token", err)
		return
	}

	writeJSON(w, r, http.StatusOK, model.AuthTokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// HandleGenerateTests handles POST /v1/tests/generate.
// Runs the full pipeline synchronously and returns the outcome.
func (h *Handlers) HandleGenerateTests(w http.ResponseWriter, r *http.Request) {
	var req model.TestGenerationRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateTestGenerationRequest(req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	req.CallerID = callerID(r.Context())

	outcome, err := h.testGen.Generate(r.Context(), req, uuid.New())
	if err != nil {
		if errors.Is(err, testgen.ErrSourceUnavailable) {
			writeError(w, r, http.StatusUnprocessableEntity, model.ErrCodeInvalidInput, err.Error())
			return
		}
		h.writeInternalError(w, r, "test generation failed", err)
		return
	}

	writeJSON(w, r, http.StatusOK, outcome)
}

// HandleValidateRule handles POST /v1/rules/validate.
func (h *Handlers) HandleValidateRule(w http.ResponseWriter, r *http.Request) {
	var req model.RuleValidationRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateRuleValidationRequest(req); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	req.CallerID = callerID(r.Context())

	outcome, err := h.ruleSvc.Validate(r.Context(), req, uuid.New())
	if err != nil {
		h.writeInternalError(w, r, "rule validation failed", err)
		return
	}

	writeJSON(w, r, http.StatusOK, outcome)
}

// HandleAnalyticsQuery handles POST /v1/analytics/query.
func (h *Handlers) HandleAnalyticsQuery(w http.ResponseWriter, r *http.Request) {
	var q model.AnalyticsQuery
	if err := decodeJSON(w, r, &q, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := model.ValidateAnalyticsQuery(q); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	result, err := h.analyticsSvc.Query(r.Context(), q)
	if err != nil {
		h.writeInternalError(w, r, "analytics query failed", err)
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}

// HandleAnalyticsOverview handles GET /v1/analytics/overview.
// Returns every metric for the requested window (default: trailing 30 days).
func (h *Handlers) HandleAnalyticsOverview(w http.ResponseWriter, r *http.Request) {
	rng, err := queryRange(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	results, err := h.analyticsSvc.Overview(r.Context(), rng)
	if err != nil {
		h.writeInternalError(w, r, "analytics overview failed", err)
		return
	}

	writeJSON(w, r, http.StatusOK, results)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "connected"
	status := "healthy"
	httpStatus := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		storeStatus = "disconnected"
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, r, httpStatus, model.HealthResponse{
		Status:    status,
		Version:   h.version,
		Store:     storeStatus,
		Providers: h.providers,
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	})
}

func (h *Handlers) writeInternalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, msg)
}

// callerID returns the authenticated caller from the request context,
// or empty when the route is unauthenticated.
func callerID(ctx context.Context) string {
	if claims := ClaimsFromContext(ctx); claims != nil {
		return claims.CallerID
	}
	return ""
}

// queryRange parses optional from/to query parameters (RFC3339).
// Defaults to the trailing 30 days.
func queryRange(r *http.Request) (model.TimeRange, error) {
	now := time.Now().UTC()
	rng := model.TimeRange{From: now.AddDate(0, 0, -30), To: now}

	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return model.TimeRange{}, fmt.Errorf("invalid from: expected RFC3339 format (e.g. 2026-01-01T00:00:00Z)")
		}
		rng.From = t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return model.TimeRange{}, fmt.Errorf("invalid to: expected RFC3339 format (e.g. 2026-01-31T00:00:00Z)")
		}
		rng.To = t
	}
	if !rng.To.After(rng.From) {
		return model.TimeRange{}, fmt.Errorf("time range end must be after start")
	}
	return rng, nil
}
