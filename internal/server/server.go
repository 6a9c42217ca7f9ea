package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/merchly-ai/attest/internal/auth"
	"github.com/merchly-ai/attest/internal/progress"
	"github.com/merchly-ai/attest/internal/ratelimit"
	"github.com/merchly-ai/attest/internal/service/analytics"
	"github.com/merchly-ai/attest/internal/service/rules"
	"github.com/merchly-ai/attest/internal/service/testgen"
	"github.com/merchly-ai/attest/internal/storage"
)

// Server is the Attest HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, MCPServer.
type ServerConfig struct {
	// Required dependencies.
	DB           *storage.DB
	JWTMgr       *auth.JWTManager
	TestGen      *testgen.Pipeline
	RuleSvc      *rules.Analyzer
	AnalyticsSvc *analytics.Engine
	Hub          *progress.Hub
	Logger       *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter   ratelimit.Limiter
	MCPServer *mcpserver.MCPServer

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	Providers           string
	MaxRequestBodyBytes int64
	RateLimitWindow     time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		DB:                  cfg.DB,
		JWTMgr:              cfg.JWTMgr,
		TestGen:             cfg.TestGen,
		RuleSvc:             cfg.RuleSvc,
		AnalyticsSvc:        cfg.AnalyticsSvc,
		Hub:                 cfg.Hub,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		Providers:           cfg.Providers,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Request ID extractor for rate limit error responses.
	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Authenticated endpoints are limited per caller; the token exchange
	// is limited per client IP since there are no claims yet.
	callerRL := ratelimit.Middleware(cfg.Limiter, callerKeyFunc, reqIDFunc, cfg.RateLimitWindow, cfg.Logger)
	authRL := ratelimit.Middleware(cfg.Limiter, authKeyFunc, reqIDFunc, cfg.RateLimitWindow, cfg.Logger)

	mux := http.NewServeMux()

	// Auth endpoint (no auth required, rate limited by IP).
	mux.Handle("POST /auth/token", authRL(http.HandlerFunc(h.HandleAuthToken)))

	// Pipelines (rate limited per caller).
	mux.Handle("POST /v1/tests/generate", callerRL(http.HandlerFunc(h.HandleGenerateTests)))
	mux.Handle("POST /v1/rules/validate", callerRL(http.HandlerFunc(h.HandleValidateRule)))

	// Streaming variants (rate limited per caller; the limit applies to
	// starting a pipeline, not to the long-lived connection itself).
	mux.Handle("POST /v1/tests/generate/stream", callerRL(http.HandlerFunc(h.HandleGenerateTestsStream)))
	mux.Handle("POST /v1/rules/validate/stream", callerRL(http.HandlerFunc(h.HandleValidateRuleStream)))

	// Analytics (rate limited per caller).
	mux.Handle("POST /v1/analytics/query", callerRL(http.HandlerFunc(h.HandleAnalyticsQuery)))
	mux.Handle("GET /v1/analytics/overview", callerRL(http.HandlerFunc(h.HandleAnalyticsOverview)))

	// Re-attach to an in-flight session (no rate limit; long-lived connection).
	mux.Handle("GET /v1/subscribe", http.HandlerFunc(h.HandleSubscribe))

	// MCP StreamableHTTP transport (auth required).
	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.JWTMgr, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// callerKeyFunc extracts the caller ID from the request context for rate limiting.
func callerKeyFunc(r *http.Request) string {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return ""
	}
	return "caller:" + claims.CallerID
}

// authKeyFunc rate-limits the unauthenticated token exchange by client IP.
func authKeyFunc(r *http.Request) string {
	return "ip:" + ratelimit.IPKeyFunc(r)
}

// Handlers returns the underlying Handlers for access in tests.
func (s *Server) Handlers() *Handlers {
	return s.handlers
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
