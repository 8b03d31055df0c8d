package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/debug"
	"github.com/rhuss/claudepipe/pkg/observability"
	"github.com/rhuss/claudepipe/pkg/provider"
)

const providerName = "anthropic"

// Provider implements provider.Provider for Anthropic's Messages API.
type Provider struct {
	cfg     Config
	builder *Builder
	client  *http.Client
	sleep   Sleeper
}

// Ensure Provider implements provider.Provider at compile time.
var _ provider.Provider = (*Provider)(nil)

// Option customizes a Provider.
type Option func(*Provider)

// WithHTTPClient replaces the HTTP client. Its Timeout should be zero;
// call deadlines come from Config.Timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithSleeper replaces the sleep used between rate-limit retries.
func WithSleeper(s Sleeper) Option {
	return func(p *Provider) { p.sleep = s }
}

// New creates a Provider. A missing API key is accepted here and reported
// per request.
func New(cfg Config, opts ...Option) (*Provider, error) {
	cfg = cfg.withDefaults()
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("anthropic: timeout must not be negative")
	}

	p := &Provider{
		cfg:     cfg,
		builder: NewBuilder(cfg),
		client:  &http.Client{},
		sleep:   SleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// Capabilities returns what this provider supports.
func (p *Provider) Capabilities() provider.ProviderCapabilities {
	return provider.ProviderCapabilities{
		Streaming:        true,
		ToolCalling:      true,
		Vision:           true,
		Documents:        true,
		Reasoning:        true,
		MaxContextWindow: contextWindow,
	}
}

// Complete performs a non-streaming call, retrying on HTTP 429.
func (p *Provider) Complete(ctx context.Context, req *api.ChatCompletionRequest) (*api.ChatCompletion, error) {
	built, apiErr := p.builder.Build(req)
	if apiErr != nil {
		return nil, apiErr
	}
	built.Payload.Stream = false

	body, err := json.Marshal(built.Payload)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}
	debug.Raw("anthropic", string(body))

	session := NewSession()
	r := &retrier{
		maxAttempts: p.cfg.MaxAttempts,
		baseDelay:   p.cfg.RetryBaseDelay,
		sleep:       p.sleep,
		timeout:     p.cfg.Timeout,
		onRetry: func(int, time.Duration) {
			observability.ProviderRetriesTotal.WithLabelValues(providerName, built.Model).Inc()
		},
	}

	start := time.Now()
	res, apiErr := r.do(ctx, session, func(ctx context.Context) (*http.Response, error) {
		return p.send(ctx, built, body, false)
	})
	observability.ProviderLatency.WithLabelValues(providerName, built.Model).Observe(time.Since(start).Seconds())

	if apiErr != nil {
		recordRequest(built.Model, apiErr)
		return nil, apiErr
	}
	if res.Status != http.StatusOK {
		upErr := session.Annotate(mapHTTPError(res.Status, res.Body))
		recordRequest(built.Model, upErr)
		return nil, upErr
	}

	var resp MessagesResponse
	if err := json.Unmarshal(res.Body, &resp); err != nil {
		parseErr := session.Annotate(api.NewServerError(fmt.Sprintf("failed to parse upstream response: %s", err.Error())))
		recordRequest(built.Model, parseErr)
		return nil, parseErr
	}

	out := translateResponse(&resp, built.Model)
	recordRequest(built.Model, nil)
	recordUsage(built.Model, out.Usage)
	return out, nil
}

// Stream performs a streaming call. Request building errors are returned
// directly; everything after that, including upstream non-200 responses
// and transport failures, arrives as a single error item on the channel.
// The channel is closed when the stream ends.
func (p *Provider) Stream(ctx context.Context, req *api.ChatCompletionRequest) (<-chan provider.StreamItem, error) {
	built, apiErr := p.builder.Build(req)
	if apiErr != nil {
		return nil, apiErr
	}
	built.Payload.Stream = true

	body, err := json.Marshal(built.Payload)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to marshal request: %s", err.Error()))
	}
	debug.Raw("anthropic", string(body))

	ch := make(chan provider.StreamItem, 16)
	go func() {
		defer close(ch)
		p.runStream(ctx, built, body, ch)
	}()
	return ch, nil
}

func (p *Provider) runStream(ctx context.Context, built *BuiltRequest, body []byte, ch chan<- provider.StreamItem) {
	session := NewSession()
	start := time.Now()
	defer func() {
		observability.ProviderLatency.WithLabelValues(providerName, built.Model).Observe(time.Since(start).Seconds())
	}()

	callCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	fail := func(err *api.APIError) {
		recordRequest(built.Model, err)
		select {
		case ch <- provider.ErrorItem(session.Annotate(err)):
		case <-ctx.Done():
		}
	}

	resp, err := p.send(callCtx, built, body, true)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		fail(mapNetworkError(err))
		return
	}
	defer resp.Body.Close()
	session.Observe(resp.Header)

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		fail(mapHTTPError(resp.StatusCode, data))
		return
	}

	outcome := TranslateStream(callCtx, resp.Body, built.Model, session, ch)
	switch {
	case outcome.Terminated && outcome.Usage != nil:
		recordRequest(built.Model, nil)
		recordUsage(built.Model, outcome.Usage)
	case outcome.Terminated:
		recordRequest(built.Model, &api.APIError{Type: api.ErrorTypeUpstream})
	case ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded):
		fail(api.NewTransportError("Request timed out", true))
	default:
		slog.Debug("stream abandoned by client", "model", built.Model, "request_id", session.RequestID())
	}
}

// send issues one POST to the Messages API.
func (p *Provider) send(ctx context.Context, built *BuiltRequest, body []byte, stream bool) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.builder.URL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header = built.Header.Clone()
	if stream {
		httpReq.Header.Set("accept", "text/event-stream")
	}

	debug.Log("anthropic", "sending request",
		"url", httpReq.URL.String(),
		"model", built.Model,
		"stream", stream,
		"api_key", debug.Redact(p.cfg.APIKey),
	)
	observability.ProviderRequestsTotal.WithLabelValues(providerName, built.Model, "sent").Inc()
	return p.client.Do(httpReq)
}

// ListModels returns the static model catalogue.
func (p *Provider) ListModels(_ context.Context) ([]api.Model, error) {
	return Catalogue(p.cfg.ModelPrefix), nil
}

// Close releases idle connections.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

// recordRequest counts a finished call by outcome.
func recordRequest(model string, err *api.APIError) {
	status := "ok"
	if err != nil {
		status = string(err.Type)
	}
	observability.ProviderRequestsTotal.WithLabelValues(providerName, model, status).Inc()
}

func recordUsage(model string, u *api.Usage) {
	if u == nil {
		return
	}
	tokens := observability.ProviderTokensTotal
	tokens.WithLabelValues(providerName, model, "input").Add(float64(u.PromptTokens))
	tokens.WithLabelValues(providerName, model, "output").Add(float64(u.CompletionTokens))
	tokens.WithLabelValues(providerName, model, "cache_creation").Add(float64(u.CacheCreationInputTokens))
	tokens.WithLabelValues(providerName, model, "cache_read").Add(float64(u.CacheReadInputTokens))
}
