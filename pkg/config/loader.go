package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/claudepipe/pkg/debug"
)

// Load builds the configuration from defaults, the discovered YAML file,
// environment variables and _file references, then validates it.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := discoverConfigFile(configPath); path != "" {
		if err := loadYAMLFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
		debug.Log("config", "loaded config file", "path", path)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := resolveFileReferences(&cfg); err != nil {
		return nil, fmt.Errorf("resolving file references: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	debug.Log("config", "configuration loaded",
		"port", cfg.Server.Port,
		"base_url", cfg.Anthropic.BaseURL,
		"api_key", debug.Redact(cfg.Anthropic.APIKey),
		"storage", cfg.Storage.Type,
		"auth", cfg.Auth.Type,
		"mcp", cfg.MCP.Enabled,
	)
	return &cfg, nil
}

// discoverConfigFile returns the first of: configPath, CLAUDEPIPE_CONFIG,
// ./config.yaml, /etc/claudepipe/config.yaml that applies, or "".
func discoverConfigFile(configPath string) string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("CLAUDEPIPE_CONFIG"); p != "" {
		return p
	}
	for _, p := range []string{"config.yaml", "/etc/claudepipe/config.yaml"} {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// loadYAMLFile decodes path over cfg. Keys absent from the file keep their
// current values; unknown keys are an error.
func loadYAMLFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides applies environment variables. Malformed numeric,
// boolean or duration values are reported, not ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not an integer", name, v))
				return
			}
			*dst = n
		}
	}
	dur := func(name string, dst *time.Duration) {
		if v := os.Getenv(name); v != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v := os.Getenv(name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %q is not a boolean", name, v))
				return
			}
			*dst = b
		}
	}

	str("ANTHROPIC_API_KEY", &cfg.Anthropic.APIKey)
	num("THINKING_BUDGET_TOKENS", &cfg.Anthropic.ThinkingBudgetTokens)

	num("CLAUDEPIPE_PORT", &cfg.Server.Port)
	str("CLAUDEPIPE_BASE_URL", &cfg.Anthropic.BaseURL)
	str("CLAUDEPIPE_API_VERSION", &cfg.Anthropic.APIVersion)
	dur("CLAUDEPIPE_TIMEOUT", &cfg.Anthropic.Timeout)
	num("CLAUDEPIPE_MAX_RETRIES", &cfg.Anthropic.MaxRetries)
	str("CLAUDEPIPE_MODEL_PREFIX", &cfg.Anthropic.ModelPrefix)
	str("CLAUDEPIPE_DEFAULT_MODEL", &cfg.Anthropic.DefaultModel)

	str("CLAUDEPIPE_STORAGE", &cfg.Storage.Type)
	num("CLAUDEPIPE_STORAGE_SIZE", &cfg.Storage.MaxSize)
	str("CLAUDEPIPE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)

	str("CLAUDEPIPE_AUTH_TYPE", &cfg.Auth.Type)
	str("CLAUDEPIPE_JWT_SECRET", &cfg.Auth.JWT.Secret)
	num("CLAUDEPIPE_RATE_LIMIT_RPM", &cfg.Auth.RateLimit.DefaultRequestsPerMinute)

	flag("CLAUDEPIPE_METRICS_ENABLED", &cfg.Observability.Metrics.Enabled)
	flag("CLAUDEPIPE_MCP_ENABLED", &cfg.MCP.Enabled)

	// CLAUDEPIPE_API_KEYS is a JSON array of api_keys entries.
	if v := os.Getenv("CLAUDEPIPE_API_KEYS"); v != "" {
		var keys []APIKeyConfig
		if err := json.Unmarshal([]byte(v), &keys); err != nil {
			errs = append(errs, fmt.Errorf("CLAUDEPIPE_API_KEYS: %w", err))
		} else {
			cfg.Auth.APIKeys = keys
		}
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s") and bare seconds ("90").
func parseDuration(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%q is not a duration", v)
	}
	return d, nil
}

type secretRef struct {
	name string
	file string
	dst  *string
}

// resolveFileReferences fills secret fields from their _file variants.
// An inline value wins over a file.
func resolveFileReferences(cfg *Config) error {
	refs := []secretRef{
		{"anthropic.api_key_file", cfg.Anthropic.APIKeyFile, &cfg.Anthropic.APIKey},
		{"storage.postgres.dsn_file", cfg.Storage.Postgres.DSNFile, &cfg.Storage.Postgres.DSN},
		{"auth.jwt.secret_file", cfg.Auth.JWT.SecretFile, &cfg.Auth.JWT.Secret},
	}
	for i := range cfg.Auth.APIKeys {
		k := &cfg.Auth.APIKeys[i]
		refs = append(refs, secretRef{fmt.Sprintf("auth.api_keys[%d].key_file", i), k.KeyFile, &k.Key})
	}

	for _, ref := range refs {
		if ref.file == "" || *ref.dst != "" {
			continue
		}
		val, err := readSecretFile(ref.file)
		if err != nil {
			return fmt.Errorf("%s: %w", ref.name, err)
		}
		*ref.dst = val
	}

	if p := cfg.Auth.JWT.PublicKeyFile; p != "" {
		pem, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("auth.jwt.public_key_file: %w", err)
		}
		cfg.Auth.JWT.PublicKey = pem
	}
	return nil
}

// readSecretFile returns the file content with surrounding whitespace trimmed.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
