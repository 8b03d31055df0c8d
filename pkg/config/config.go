// Package config loads claudepipe's configuration.
//
// Sources are layered, later ones winning:
//  1. Built-in defaults
//  2. YAML file (explicit path, CLAUDEPIPE_CONFIG, ./config.yaml,
//     /etc/claudepipe/config.yaml)
//  3. Environment variables (ANTHROPIC_API_KEY, THINKING_BUDGET_TOKENS and
//     the CLAUDEPIPE_ prefix)
//  4. _file references for secrets
//
// The result is validated before it is returned. A missing Anthropic API
// key is not a load error: requests then fail with a configuration error.
package config

import (
	"strconv"
	"time"
)

// Config is the complete claudepipe configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Anthropic     AnthropicConfig     `yaml:"anthropic"`
	Storage       StorageConfig       `yaml:"storage"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
	MCP           MCPConfig           `yaml:"mcp"`
	Debug         DebugConfig         `yaml:"debug"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8080
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	WriteTimeout    time.Duration `yaml:"write_timeout"`    // 0: streams are unbounded
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 50 MiB
}

// AnthropicConfig configures the upstream Messages API client.
type AnthropicConfig struct {
	APIKey               string        `yaml:"api_key"`
	APIKeyFile           string        `yaml:"api_key_file"`
	BaseURL              string        `yaml:"base_url"`               // default: https://api.anthropic.com
	APIVersion           string        `yaml:"api_version"`            // default: 2023-06-01
	Timeout              time.Duration `yaml:"timeout"`                // default: 300s
	ThinkingBudgetTokens int           `yaml:"thinking_budget_tokens"` // default: 16000
	MaxRetries           int           `yaml:"max_retries"`            // attempts on HTTP 429, default: 3
	RetryBaseDelay       time.Duration `yaml:"retry_base_delay"`       // default: 1s
	ModelPrefix          string        `yaml:"model_prefix"`           // default: "api"
	DefaultModel         string        `yaml:"default_model"`          // used when a request names none
}

// StorageConfig selects the usage ledger backend.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "none", "memory" or "postgres", default: "memory"
	MaxSize  int            `yaml:"max_size"` // memory only, default: 10000
	Postgres PostgresConfig `yaml:"postgres"`
}

// PostgresConfig holds PostgreSQL settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`
	MaxConns       int32  `yaml:"max_conns"` // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// AuthConfig configures inbound authentication.
type AuthConfig struct {
	Type      string          `yaml:"type"` // "none", "apikey" or "jwt", default: "none"
	APIKeys   []APIKeyConfig  `yaml:"api_keys"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// APIKeyConfig is one static API key and the identity it grants.
type APIKeyConfig struct {
	Key         string `yaml:"key" json:"key"`
	KeyFile     string `yaml:"key_file" json:"key_file"`
	Subject     string `yaml:"subject" json:"subject"`
	TenantID    string `yaml:"tenant_id" json:"tenant_id"`
	ServiceTier string `yaml:"service_tier" json:"service_tier"`
}

// JWTConfig configures bearer token validation. Secret selects HMAC,
// PublicKeyFile selects RSA.
type JWTConfig struct {
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	Secret        string        `yaml:"secret"`
	SecretFile    string        `yaml:"secret_file"`
	PublicKeyFile string        `yaml:"public_key_file"`
	UserClaim     string        `yaml:"user_claim"`
	TenantClaim   string        `yaml:"tenant_claim"`
	ScopesClaim   string        `yaml:"scopes_claim"`
	TierClaim     string        `yaml:"tier_claim"`
	Leeway        time.Duration `yaml:"leeway"`

	// PublicKey is the PEM read from PublicKeyFile.
	PublicKey []byte `yaml:"-"`
}

// RateLimitConfig sets per-tier request budgets. 0 means unlimited.
type RateLimitConfig struct {
	DefaultRequestsPerMinute int            `yaml:"default_requests_per_minute"`
	Tiers                    map[string]int `yaml:"tiers"`
}

// ObservabilityConfig holds monitoring settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"` // default: true
	Path    string `yaml:"path"`    // default: "/metrics"
}

// MCPConfig exposes the pipe as an MCP server.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"` // default: false
	Path    string `yaml:"path"`    // default: "/mcp"
}

// DebugConfig sets debug categories and the log level. CLAUDEPIPE_DEBUG
// and CLAUDEPIPE_LOG_LEVEL take precedence.
type DebugConfig struct {
	Categories string `yaml:"categories"`
	Level      string `yaml:"level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     50 << 20,
		},
		Anthropic: AnthropicConfig{
			BaseURL:              "https://api.anthropic.com",
			APIVersion:           "2023-06-01",
			Timeout:              300 * time.Second,
			ThinkingBudgetTokens: 16000,
			MaxRetries:           3,
			RetryBaseDelay:       time.Second,
			ModelPrefix:          "api",
		},
		Storage: StorageConfig{
			Type:     "memory",
			MaxSize:  10000,
			Postgres: PostgresConfig{MaxConns: 10},
		},
		Auth: AuthConfig{Type: "none"},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
		},
		MCP: MCPConfig{Path: "/mcp"},
	}
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Server.Port)
}
