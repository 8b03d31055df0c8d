package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// maxThinkingBudget matches the upstream ceiling for thinking.budget_tokens.
const maxThinkingBudget = 96000

// Validate reports every invalid field, joined into one error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBodySize <= 0 {
		add("server.max_body_size must be > 0, got %d", c.Server.MaxBodySize)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		add("server timeouts must not be negative")
	}

	a := c.Anthropic
	if u, err := url.Parse(a.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("anthropic.base_url must be an absolute http(s) URL, got %q", a.BaseURL)
	}
	if a.APIVersion == "" {
		add("anthropic.api_version is required")
	}
	if a.Timeout <= 0 {
		add("anthropic.timeout must be > 0, got %v", a.Timeout)
	}
	if a.ThinkingBudgetTokens < 0 || a.ThinkingBudgetTokens > maxThinkingBudget {
		add("anthropic.thinking_budget_tokens must be between 0 and %d, got %d", maxThinkingBudget, a.ThinkingBudgetTokens)
	}
	if a.MaxRetries < 1 {
		add("anthropic.max_retries must be >= 1, got %d", a.MaxRetries)
	}
	if a.RetryBaseDelay <= 0 {
		add("anthropic.retry_base_delay must be > 0, got %v", a.RetryBaseDelay)
	}

	switch c.Storage.Type {
	case "none":
	case "memory":
		if c.Storage.MaxSize <= 0 {
			add("storage.max_size must be > 0, got %d", c.Storage.MaxSize)
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			add(`storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is "postgres"`)
		}
		if c.Storage.Postgres.MaxConns < 0 {
			add("storage.postgres.max_conns must not be negative")
		}
	default:
		add(`storage.type must be "none", "memory" or "postgres", got %q`, c.Storage.Type)
	}

	switch c.Auth.Type {
	case "none":
	case "apikey":
		if len(c.Auth.APIKeys) == 0 {
			add(`auth.api_keys must not be empty when auth.type is "apikey"`)
		}
		for i, k := range c.Auth.APIKeys {
			if k.Key == "" && k.KeyFile == "" {
				add("auth.api_keys[%d]: key or key_file is required", i)
			}
			if strings.TrimSpace(k.Subject) == "" {
				add("auth.api_keys[%d]: subject is required", i)
			}
		}
	case "jwt":
		hasSecret := c.Auth.JWT.Secret != "" || c.Auth.JWT.SecretFile != ""
		hasKey := c.Auth.JWT.PublicKeyFile != ""
		if hasSecret == hasKey {
			add(`auth.jwt needs exactly one of secret/secret_file or public_key_file`)
		}
	default:
		add(`auth.type must be "none", "apikey" or "jwt", got %q`, c.Auth.Type)
	}
	if c.Auth.RateLimit.DefaultRequestsPerMinute < 0 {
		add("auth.rate_limit.default_requests_per_minute must not be negative")
	}
	for tier, rpm := range c.Auth.RateLimit.Tiers {
		if rpm < 0 {
			add("auth.rate_limit.tiers.%s must not be negative", tier)
		}
	}

	if c.Observability.Metrics.Enabled && !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		add("observability.metrics.path must start with /, got %q", c.Observability.Metrics.Path)
	}
	if c.MCP.Enabled && !strings.HasPrefix(c.MCP.Path, "/") {
		add("mcp.path must start with /, got %q", c.MCP.Path)
	}

	return errors.Join(errs...)
}
