package anthropic

import "time"

const (
	// DefaultBaseURL is the public Anthropic API endpoint.
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is sent as the anthropic-version header.
	DefaultAPIVersion = "2023-06-01"

	// DefaultTimeout bounds one upstream call end to end.
	DefaultTimeout = 300 * time.Second

	// DefaultThinkingBudget is the thinking budget used for "-thinking" models.
	DefaultThinkingBudget = 16000

	// MaxThinkingBudget is the largest accepted thinking budget.
	MaxThinkingBudget = 96000

	// DefaultMaxAttempts is the number of non-streaming attempts on HTTP 429.
	DefaultMaxAttempts = 3

	// DefaultRetryBaseDelay is the first backoff delay when no retry-after is given.
	DefaultRetryBaseDelay = time.Second

	// DefaultModelPrefix prefixes catalogue model ids ("api/claude-...").
	DefaultModelPrefix = "api"
)

// Config holds configuration for the Anthropic provider adapter.
type Config struct {
	// APIKey is sent as x-api-key. An empty key is not a construction error;
	// each request then fails with a configuration error instead.
	APIKey string

	// BaseURL is the API root, without the /v1/messages path.
	BaseURL string

	// APIVersion is the anthropic-version header value.
	APIVersion string

	// Timeout is the wall-clock ceiling for one upstream call.
	Timeout time.Duration

	// ThinkingBudgetTokens is used as thinking.budget_tokens for "-thinking" models.
	ThinkingBudgetTokens int

	// MaxAttempts for non-streaming calls that hit HTTP 429.
	MaxAttempts int

	// RetryBaseDelay is the base of the exponential delay (base * 2^attempt).
	RetryBaseDelay time.Duration

	// ModelPrefix is prepended to catalogue ids returned by ListModels.
	ModelPrefix string
}

// DefaultConfig returns a Config with the standard Anthropic endpoint and limits.
func DefaultConfig(apiKey string) Config {
	return Config{
		APIKey:               apiKey,
		BaseURL:              DefaultBaseURL,
		APIVersion:           DefaultAPIVersion,
		Timeout:              DefaultTimeout,
		ThinkingBudgetTokens: DefaultThinkingBudget,
		MaxAttempts:          DefaultMaxAttempts,
		RetryBaseDelay:       DefaultRetryBaseDelay,
		ModelPrefix:          DefaultModelPrefix,
	}
}

// withDefaults fills zero values.
func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if c.ThinkingBudgetTokens < 0 {
		c.ThinkingBudgetTokens = 0
	}
	if c.ThinkingBudgetTokens > MaxThinkingBudget {
		c.ThinkingBudgetTokens = MaxThinkingBudget
	}
	return c
}
