package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/debug"
	"github.com/rhuss/claudepipe/pkg/storage"
	"github.com/rhuss/claudepipe/pkg/transport"
)

// Adapter serves the OpenAI-compatible chat API over HTTP.
type Adapter struct {
	completer transport.ChatCompleter
	models    transport.ModelLister
	store     storage.UsageStore // nil when the ledger is disabled
	inflight  *transport.InFlightRegistry
	mux       *http.ServeMux
	config    Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 50 << 20, // base64 media makes bodies large
	}
}

// NewAdapter creates an HTTP adapter. store may be nil, in which case the
// usage endpoints report that no ledger is configured. Middleware is
// applied to the completer in the given order.
func NewAdapter(completer transport.ChatCompleter, models transport.ModelLister, store storage.UsageStore, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		completer = transport.Chain(middlewares...)(completer)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}

	a := &Adapter{
		completer: completer,
		models:    models,
		store:     store,
		inflight:  transport.NewInFlightRegistry(),
		mux:       http.NewServeMux(),
		config:    cfg,
	}

	a.mux.HandleFunc("POST /v1/chat/completions", a.handleChatCompletions)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	a.mux.HandleFunc("GET /v1/usage", a.handleListUsage)
	a.mux.HandleFunc("GET /v1/usage/{id}", a.handleGetUsage)
	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)

	return a
}

// Handler returns the http.Handler for this adapter, including request ID
// propagation.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(a.mux)
}

// InFlight returns the registry of running streams.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

// httpRequestIDMiddleware puts a request ID into the context, taking the
// client's X-Request-ID when present, and echoes it in the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// handleChatCompletions handles POST /v1/chat/completions.
func (a *Adapter) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err != nil || mt != "application/json" {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
				http.StatusUnsupportedMediaType,
			)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)

	var req api.ChatCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return
	}

	debug.Log("transport", "chat completion request",
		"request_id", transport.RequestIDFromContext(r.Context()),
		"model", req.Model,
		"stream", req.IsStream(),
		"messages", len(req.Messages),
		"tools", len(req.Tools),
	)

	if req.IsStream() {
		a.handleStreaming(w, r, &req)
		return
	}

	cw := newChunkWriter(w, nil)
	if err := a.completer.CreateChatCompletion(r.Context(), &req, cw); err != nil {
		a.writeHandlerError(r.Context(), w, cw, err)
	}
}

// handleStreaming runs a streaming completion. The stream is registered
// with the in-flight registry once its completion id is known, so a
// shutting-down server can cancel it.
func (a *Adapter) handleStreaming(w http.ResponseWriter, r *http.Request, req *api.ChatCompletionRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	cw := newChunkWriter(w, func(id string) {
		registeredID = id
		a.inflight.Register(id, cancel)
	})

	err := a.completer.CreateChatCompletion(ctx, req, cw)

	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}
	if err != nil {
		a.writeHandlerError(ctx, w, cw, err)
	}
}

// writeHandlerError reports a handler error. Before any output it is a JSON
// error response; mid-stream it becomes an in-stream error frame unless
// the stream was already completed.
func (a *Adapter) writeHandlerError(ctx context.Context, w http.ResponseWriter, cw *chunkWriter, err error) {
	apiErr := transport.AsAPIError(err)

	if !cw.started() {
		transport.WriteAPIError(w, apiErr)
		return
	}
	if cw.completed() {
		return
	}
	if ctx.Err() != nil {
		// Client is gone; nothing can be delivered.
		return
	}
	if werr := cw.WriteStreamError(ctx, apiErr); werr != nil {
		slog.Debug("failed to write stream error", "error", werr.Error())
	}
}

// handleListModels handles GET /v1/models.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := a.models.ListModels(r.Context())
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	if models == nil {
		models = []api.Model{}
	}
	writeJSON(w, http.StatusOK, api.ModelList{Object: "list", Data: models})
}

// handleListUsage handles GET /v1/usage.
func (a *Adapter) handleListUsage(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeNoStore(w)
		return
	}

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, http.StatusBadRequest)
		return
	}

	list, err := a.store.List(r.Context(), opts)
	if err != nil {
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleGetUsage handles GET /v1/usage/{id}.
func (a *Adapter) handleGetUsage(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		writeNoStore(w)
		return
	}

	id := r.PathValue("id")
	if !api.ValidateChatCompletionID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed completion ID"),
			http.StatusBadRequest,
		)
		return
	}

	rec, err := a.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			transport.WriteAPIError(w, api.NewNotFoundError("usage record "+id+" not found"))
			return
		}
		transport.WriteAPIError(w, transport.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleReadyz reports ready when the ledger, if any, is reachable.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.store != nil {
		if err := a.store.HealthCheck(r.Context()); err != nil {
			slog.Warn("readiness check failed", "error", err.Error())
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}

// parseListOptions extracts ledger filters from the query string.
func parseListOptions(r *http.Request) (storage.ListOptions, *api.APIError) {
	q := r.URL.Query()
	opts := storage.ListOptions{Model: q.Get("model")}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			return opts, api.NewInvalidRequestError("limit", "limit must be a positive integer")
		}
		opts.Limit = limit
	}
	return opts, nil
}

func writeNoStore(w http.ResponseWriter) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", "usage ledger is not available (no storage configured)"),
		http.StatusNotImplemented,
	)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
