// Command attest runs the Attest HTTP API server: AI-assisted test
// generation, business rule validation, and quality analytics for
// storefront codebases.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/merchly-ai/attest/internal/auth"
	"github.com/merchly-ai/attest/internal/config"
	"github.com/merchly-ai/attest/internal/mcp"
	"github.com/merchly-ai/attest/internal/model"
	"github.com/merchly-ai/attest/internal/progress"
	"github.com/merchly-ai/attest/internal/provider"
	"github.com/merchly-ai/attest/internal/ratelimit"
	"github.com/merchly-ai/attest/internal/server"
	"github.com/merchly-ai/attest/internal/service/analytics"
	"github.com/merchly-ai/attest/internal/service/rules"
	"github.com/merchly-ai/attest/internal/service/testgen"
	"github.com/merchly-ai/attest/internal/storage"
	"github.com/merchly-ai/attest/internal/telemetry"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("ATTEST_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("attest exited with error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// .env is a convenience for local development; absence is not an error.
	if err := godotenv.Load(); err == nil {
		logger.Debug("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("attest starting",
		"version", version,
		"environment", cfg.Environment,
		"port", cfg.Port,
	)

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	db, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("store close failed", "error", err)
		}
	}()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if err := seedCallers(ctx, db, cfg.SeedAPIKeys, logger); err != nil {
		return fmt.Errorf("seed callers: %w", err)
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		return fmt.Errorf("init jwt manager: %w", err)
	}

	clients, providerNames := buildProviders(ctx, cfg, logger)
	if len(providerNames) == 0 && !cfg.MockEligible() {
		return fmt.Errorf("no AI provider configured and mock mode is not eligible in %s", cfg.Environment)
	}
	gateway := provider.NewGateway(clients, db, logger, provider.GatewayOptions{
		PurposeDefaults: purposeDefaults(cfg.PurposeProviders, logger),
		MockEligible:    cfg.MockEligible(),
		Timeout:         cfg.ProviderTimeout,
	})

	hub := progress.NewHub(logger)
	reader := testgen.NewFileSourceReader(cfg.SourceRoot)
	testGen := testgen.NewPipeline(gateway, reader, db, hub, logger)
	ruleSvc := rules.NewAnalyzer(gateway, db, hub, logger)
	analyticsSvc := analytics.NewEngine(db, logger)
	mcpSrv := mcp.New(testGen, ruleSvc, analyticsSvc, logger, version)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.RateLimitBudget, cfg.RateLimitWindow)
		defer func() {
			if err := memLimiter.Close(); err != nil {
				logger.Warn("rate limiter close failed", "error", err)
			}
		}()
		limiter = memLimiter
		logger.Info("rate limiting: enabled",
			"budget", cfg.RateLimitBudget,
			"window", cfg.RateLimitWindow.String(),
		)
	} else {
		limiter = ratelimit.NoopLimiter{}
		logger.Info("rate limiting: disabled")
	}

	srv := server.New(server.ServerConfig{
		DB:                  db,
		JWTMgr:              jwtMgr,
		TestGen:             testGen,
		RuleSvc:             ruleSvc,
		AnalyticsSvc:        analyticsSvc,
		Hub:                 hub,
		Logger:              logger,
		Limiter:             limiter,
		MCPServer:           mcpSrv.MCPServer(),
		Port:                cfg.Port,
		ReadTimeout:         cfg.ReadTimeout,
		WriteTimeout:        cfg.WriteTimeout,
		Version:             version,
		Providers:           providersLabel(providerNames, cfg.MockEligible()),
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
		RateLimitWindow:     cfg.RateLimitWindow,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		logger.Warn("http server shutdown failed", "error", err)
	}

	logger.Info("attest stopped")
	return nil
}

// seedCallers hashes and stores the configured caller API keys. Seeding is
// idempotent: re-running with the same pairs refreshes the stored hashes.
func seedCallers(ctx context.Context, db *storage.DB, keys map[string]string, logger *slog.Logger) error {
	for callerID, apiKey := range keys {
		hash, err := auth.HashAPIKey(apiKey)
		if err != nil {
			return fmt.Errorf("hash key for caller %s: %w", callerID, err)
		}
		if err := db.UpsertCaller(ctx, callerID, hash); err != nil {
			return fmt.Errorf("upsert caller %s: %w", callerID, err)
		}
	}
	if len(keys) > 0 {
		logger.Info("seeded caller credentials", "count", len(keys))
	}
	return nil
}

// buildProviders constructs a client for every configured backend. Local
// backends are probed for reachability first so a dead Ollama or LM Studio
// does not sit ahead of working remotes in the resolution order.
func buildProviders(ctx context.Context, cfg config.Config, logger *slog.Logger) ([]provider.Provider, []string) {
	var clients []provider.Provider
	var names []string

	if cfg.OpenAIAPIKey != "" {
		clients = append(clients, provider.NewOpenAIClient(
			cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.ProviderTimeout, cfg.DefaultMaxTokens, cfg.DefaultTemperature))
		names = append(names, string(model.ProviderOpenAI))
		logger.Info("provider configured", "provider", "openai", "model", cfg.OpenAIModel)
	}
	if cfg.AnthropicAPIKey != "" {
		clients = append(clients, provider.NewAnthropicClient(
			cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.ProviderTimeout, cfg.DefaultMaxTokens, cfg.DefaultTemperature))
		names = append(names, string(model.ProviderAnthropic))
		logger.Info("provider configured", "provider", "anthropic", "model", cfg.AnthropicModel)
	}
	if cfg.OllamaURL != "" {
		client := provider.NewOllamaClient(
			cfg.OllamaURL, cfg.OllamaModel, cfg.ProviderTimeout, cfg.DefaultMaxTokens, cfg.DefaultTemperature)
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Healthy(probeCtx)
		cancel()
		if err != nil {
			logger.Info("provider skipped: not reachable", "provider", "ollama", "url", cfg.OllamaURL, "error", err)
		} else {
			clients = append(clients, client)
			names = append(names, string(model.ProviderOllama))
			logger.Info("provider configured", "provider", "ollama", "model", cfg.OllamaModel)
		}
	}
	if cfg.LMStudioURL != "" {
		client := provider.NewLMStudioClient(
			cfg.LMStudioURL, cfg.LMStudioModel, cfg.ProviderTimeout, cfg.DefaultMaxTokens, cfg.DefaultTemperature)
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Healthy(probeCtx)
		cancel()
		if err != nil {
			logger.Info("provider skipped: not reachable", "provider", "lmstudio", "url", cfg.LMStudioURL, "error", err)
		} else {
			clients = append(clients, client)
			names = append(names, string(model.ProviderLMStudio))
			logger.Info("provider configured", "provider", "lmstudio", "model", cfg.LMStudioModel)
		}
	}
	if cfg.MockEligible() {
		clients = append(clients, provider.NewMockClient())
		logger.Info("mock fallback available", "environment", cfg.Environment)
	}
	return clients, names
}

// purposeDefaults converts the raw purpose:provider pairs from the
// environment into typed gateway defaults, dropping invalid entries.
func purposeDefaults(raw map[string]string, logger *slog.Logger) map[model.Purpose]model.ProviderName {
	defaults := make(map[model.Purpose]model.ProviderName, len(raw))
	for p, name := range raw {
		purpose := model.Purpose(p)
		providerName := model.ProviderName(name)
		if !purpose.Valid() || !providerName.Valid() {
			logger.Warn("ignoring invalid purpose default", "purpose", p, "provider", name)
			continue
		}
		defaults[purpose] = providerName
	}
	return defaults
}

// providersLabel renders the configured provider list for the health
// endpoint, e.g. "anthropic,openai" or "mock".
func providersLabel(names []string, mockEligible bool) string {
	if len(names) == 0 {
		if mockEligible {
			return string(model.ProviderMock)
		}
		return "none"
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}
