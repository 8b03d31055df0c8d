package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/debug"
	"github.com/rhuss/claudepipe/pkg/provider"
	"github.com/rhuss/claudepipe/pkg/storage"
	"github.com/rhuss/claudepipe/pkg/transport"
)

// Engine orchestrates request processing between the transport layer
// and the provider backend.
type Engine struct {
	provider provider.Provider
	store    storage.UsageStore
	cfg      Config
}

// Ensure Engine implements the transport handler interfaces at compile time.
var (
	_ transport.ChatCompleter = (*Engine)(nil)
	_ transport.ModelLister   = (*Engine)(nil)
)

// New creates a new Engine. The provider must not be nil. The store can be
// nil, in which case usage is not recorded.
func New(p provider.Provider, store storage.UsageStore, cfg Config) (*Engine, error) {
	if p == nil {
		return nil, fmt.Errorf("engine: provider must not be nil")
	}
	return &Engine{
		provider: p,
		store:    store,
		cfg:      cfg,
	}, nil
}

// CreateChatCompletion validates req and runs it against the provider.
// Errors returned before anything was written become JSON error responses;
// once streaming has started, failures are written as an in-stream error
// and also returned for logging.
func (e *Engine) CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	if req.Model == "" && e.cfg.DefaultModel != "" {
		req.Model = e.cfg.DefaultModel
	}

	if apiErr := api.ValidateChatRequest(req, e.cfg.Validation); apiErr != nil {
		return apiErr
	}
	if apiErr := provider.ValidateCapabilities(e.provider.Capabilities(), req); apiErr != nil {
		return apiErr
	}

	if req.IsStream() {
		return e.stream(ctx, req, w)
	}
	return e.complete(ctx, req, w)
}

func (e *Engine) complete(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return err
	}
	if len(resp.Choices) == 0 {
		return api.NewServerError("backend produced no choices")
	}

	e.recordUsage(ctx, resp.ID, resp.Model, false, resp.Choices[0].FinishReason, resp.Created, resp.Usage)
	return w.WriteCompletion(ctx, resp)
}

// stream relays provider items to w. The usage carried on the finish chunk
// is recorded once [DONE] has been written.
func (e *Engine) stream(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	ch, err := e.provider.Stream(ctx, req)
	if err != nil {
		return err
	}

	var finish *api.ChatCompletionChunk
	for item := range ch {
		switch {
		case item.Chunk != nil:
			if isFinishChunk(item.Chunk) {
				finish = item.Chunk
			}
			if err := w.WriteChunk(ctx, item.Chunk); err != nil {
				debug.Log("streaming", "client write failed", "error", err.Error())
				return err
			}

		case item.Err != nil:
			if err := w.WriteStreamError(ctx, item.Err); err != nil {
				debug.Log("streaming", "client write failed", "error", err.Error())
			}
			return item.Err

		case item.Done:
			if err := w.WriteDone(ctx); err != nil {
				return err
			}
			if finish != nil {
				e.recordUsage(ctx, finish.ID, finish.Model, true, *finish.Choices[0].FinishReason, finish.Created, finish.Usage)
			}
			return nil
		}
	}

	// The provider closed the channel without a terminal item: the client
	// went away and the provider stopped sending.
	if ctx.Err() != nil {
		return ctx.Err()
	}
	streamErr := api.NewServerError("stream ended without a terminal event")
	_ = w.WriteStreamError(ctx, streamErr)
	return streamErr
}

// ListModels returns the provider's model catalogue.
func (e *Engine) ListModels(ctx context.Context) ([]api.Model, error) {
	return e.provider.ListModels(ctx)
}

func (e *Engine) recordUsage(ctx context.Context, id, model string, stream bool, finishReason string, created int64, usage *api.Usage) {
	if e.store == nil || usage == nil {
		return
	}
	rec := storage.NewUsageRecord(ctx, id, model, stream, finishReason, created, usage)
	// The client may already be gone; the ledger entry is still wanted.
	if err := e.store.Record(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("failed to record usage",
			"completion_id", id,
			"request_id", transport.RequestIDFromContext(ctx),
			"error", err.Error(),
		)
		return
	}
	debug.Log("storage", "usage recorded",
		"completion_id", id,
		"input_tokens", rec.InputTokens,
		"output_tokens", rec.OutputTokens,
	)
}

func isFinishChunk(c *api.ChatCompletionChunk) bool {
	return len(c.Choices) > 0 && c.Choices[0].FinishReason != nil
}
