// Command server runs claudepipe, an OpenAI-compatible chat completions
// endpoint backed by the Anthropic Messages API.
//
// Configuration is read from a YAML file (-config, CLAUDEPIPE_CONFIG,
// ./config.yaml or /etc/claudepipe/config.yaml) and environment variables.
// The most common ones:
//
//	ANTHROPIC_API_KEY      - upstream API key (requests fail without it)
//	THINKING_BUDGET_TOKENS - thinking budget for "-thinking" models (default: 16000)
//	CLAUDEPIPE_PORT        - listen port (default: 8080)
//	CLAUDEPIPE_BASE_URL    - upstream API root (default: https://api.anthropic.com)
//	CLAUDEPIPE_STORAGE     - usage ledger: "none", "memory" or "postgres" (default: "memory")
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/auth"
	"github.com/rhuss/claudepipe/pkg/auth/apikey"
	"github.com/rhuss/claudepipe/pkg/auth/jwt"
	"github.com/rhuss/claudepipe/pkg/config"
	"github.com/rhuss/claudepipe/pkg/debug"
	"github.com/rhuss/claudepipe/pkg/engine"
	"github.com/rhuss/claudepipe/pkg/mcpserver"
	"github.com/rhuss/claudepipe/pkg/observability"
	"github.com/rhuss/claudepipe/pkg/provider/anthropic"
	"github.com/rhuss/claudepipe/pkg/storage"
	"github.com/rhuss/claudepipe/pkg/storage/memory"
	"github.com/rhuss/claudepipe/pkg/storage/postgres"
	"github.com/rhuss/claudepipe/pkg/transport"
	transporthttp "github.com/rhuss/claudepipe/pkg/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	debug.Init(cfg.Debug.Categories, cfg.Debug.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Anthropic.APIKey == "" {
		slog.Warn("ANTHROPIC_API_KEY is not set; chat requests will fail with a configuration error")
	}

	prov, err := anthropic.New(anthropic.Config{
		APIKey:               cfg.Anthropic.APIKey,
		BaseURL:              cfg.Anthropic.BaseURL,
		APIVersion:           cfg.Anthropic.APIVersion,
		Timeout:              cfg.Anthropic.Timeout,
		ThinkingBudgetTokens: cfg.Anthropic.ThinkingBudgetTokens,
		MaxAttempts:          cfg.Anthropic.MaxRetries,
		RetryBaseDelay:       cfg.Anthropic.RetryBaseDelay,
		ModelPrefix:          cfg.Anthropic.ModelPrefix,
	})
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	defer prov.Close()

	store, err := buildStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	eng, err := engine.New(prov, store, engine.Config{
		DefaultModel: cfg.Anthropic.DefaultModel,
		Validation:   api.DefaultValidationConfig(),
	})
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	opts := []transporthttp.ServerOption{
		transporthttp.WithAddr(cfg.Addr()),
		transporthttp.WithMaxBodySize(cfg.Server.MaxBodySize),
		transporthttp.WithShutdownTimeout(cfg.Server.ShutdownTimeout),
	}

	if cfg.Observability.Metrics.Enabled {
		opts = append(opts,
			transporthttp.WithHTTPMiddleware(observability.MetricsMiddleware),
			transporthttp.WithMount(cfg.Observability.Metrics.Path, promhttp.Handler()),
		)
		slog.Info("metrics enabled", "path", cfg.Observability.Metrics.Path)
	}

	authMW, err := buildAuth(cfg.Auth, cfg.Observability.Metrics.Path)
	if err != nil {
		return err
	}
	if authMW != nil {
		opts = append(opts, transporthttp.WithHTTPMiddleware(authMW))
	}

	if cfg.MCP.Enabled {
		completer := transport.Chain(
			transport.Recovery(),
			transport.RequestID(),
			transport.Logging(slog.Default()),
		)(eng)
		mcpSrv := mcpserver.New(completer, eng, mcpserver.Config{DefaultModel: cfg.Anthropic.DefaultModel})
		opts = append(opts, transporthttp.WithMount(cfg.MCP.Path, mcpSrv.Handler()))
		slog.Info("MCP server enabled", "path", cfg.MCP.Path)
	}

	srv := transporthttp.NewServer(eng, eng, store, opts...)
	slog.Info("claudepipe configured",
		"addr", cfg.Addr(),
		"upstream", cfg.Anthropic.BaseURL,
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
	)
	return srv.Run(ctx)
}

// buildStore returns the configured usage ledger, or nil for "none".
func buildStore(ctx context.Context, cfg config.StorageConfig) (storage.UsageStore, error) {
	switch cfg.Type {
	case "memory":
		slog.Info("usage ledger enabled", "type", "memory", "max_size", cfg.MaxSize)
		return memory.New(cfg.MaxSize), nil
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{
			DSN:            cfg.Postgres.DSN,
			MaxConns:       cfg.Postgres.MaxConns,
			MigrateOnStart: cfg.Postgres.MigrateOnStart,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		slog.Info("usage ledger enabled", "type", "postgres")
		return s, nil
	default:
		slog.Info("usage ledger disabled")
		return nil, nil
	}
}

// buildAuth returns the authentication middleware, or nil when auth is off.
func buildAuth(cfg config.AuthConfig, metricsPath string) (func(http.Handler) http.Handler, error) {
	var authn auth.Authenticator
	switch cfg.Type {
	case "apikey":
		entries := make([]apikey.RawKeyEntry, 0, len(cfg.APIKeys))
		for _, k := range cfg.APIKeys {
			id := auth.Identity{Subject: k.Subject, ServiceTier: k.ServiceTier}
			if k.TenantID != "" {
				id.Metadata = map[string]string{"tenant_id": k.TenantID}
			}
			entries = append(entries, apikey.RawKeyEntry{Key: k.Key, Identity: id})
		}
		authn = apikey.New(entries)
	case "jwt":
		a, err := jwt.New(jwt.Config{
			Issuer:       cfg.JWT.Issuer,
			Audience:     cfg.JWT.Audience,
			Secret:       []byte(cfg.JWT.Secret),
			PublicKeyPEM: cfg.JWT.PublicKey,
			UserClaim:    cfg.JWT.UserClaim,
			TenantClaim:  cfg.JWT.TenantClaim,
			ScopesClaim:  cfg.JWT.ScopesClaim,
			TierClaim:    cfg.JWT.TierClaim,
			Leeway:       cfg.JWT.Leeway,
		})
		if err != nil {
			return nil, fmt.Errorf("creating JWT authenticator: %w", err)
		}
		authn = a
	default:
		return nil, nil
	}

	var limiter auth.RateLimiter
	if cfg.RateLimit.DefaultRequestsPerMinute > 0 || len(cfg.RateLimit.Tiers) > 0 {
		tiers := make(map[string]auth.TierConfig, len(cfg.RateLimit.Tiers))
		for name, rpm := range cfg.RateLimit.Tiers {
			tiers[name] = auth.TierConfig{RequestsPerMinute: rpm}
		}
		limiter = auth.NewInProcessLimiter(tiers, cfg.RateLimit.DefaultRequestsPerMinute)
	}

	bypass := append([]string{}, auth.DefaultBypassEndpoints...)
	if metricsPath != "" {
		bypass = append(bypass, metricsPath)
	}

	slog.Info("authentication enabled", "type", cfg.Type, "rate_limited", limiter != nil)
	chain := &auth.AuthChain{Authenticators: []auth.Authenticator{authn}, DefaultDecision: auth.No}
	return auth.Middleware(chain, limiter, bypass), nil
}
