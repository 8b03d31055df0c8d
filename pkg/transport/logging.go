package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhuss/claudepipe/pkg/api"
)

// Logging returns middleware that emits one structured log entry per chat
// completion with the request ID, model, stream flag and duration. HTTP
// status codes are logged by the HTTP adapter.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next ChatCompleter) ChatCompleter {
		return ChatCompleterFunc(func(ctx context.Context, req *api.ChatCompletionRequest, w ResponseWriter) error {
			start := time.Now()

			err := next.CreateChatCompletion(ctx, req, w)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.String("model", req.Model),
				slog.Bool("stream", req.IsStream()),
				slog.Int("messages", len(req.Messages)),
				slog.Duration("duration", time.Since(start)),
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "chat completion failed", attrs...)
			} else {
				logger.LogAttrs(ctx, slog.LevelInfo, "chat completion finished", attrs...)
			}

			return err
		})
	}
}
