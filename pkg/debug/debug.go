// Package debug gates verbose diagnostics by category and configures the
// process-wide slog handler.
//
// Categories select what is logged (CLAUDEPIPE_DEBUG=anthropic,streaming or
// "all"); the level selects how much (CLAUDEPIPE_LOG_LEVEL=TRACE shows raw
// upstream bodies). CLAUDEPIPE_LOG_FORMAT=json switches to JSON output.
//
//	debug.Log("streaming", "tool call started", "id", id)
//
// Categories in use: anthropic, streaming, auth, storage, transport, mcp, config.
package debug

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// LevelTrace sits below slog.LevelDebug. Raw output requires it.
const LevelTrace = slog.LevelDebug - 4

type categorySet struct {
	all  bool
	cats map[string]bool
}

func (s *categorySet) has(category string) bool {
	return s.all || s.cats[category]
}

var (
	enabled atomic.Pointer[categorySet]
	rawOut  io.Writer = os.Stderr
)

func init() {
	enabled.Store(parseCategories(os.Getenv("CLAUDEPIPE_DEBUG")))
}

// Init applies the configured categories and level. The CLAUDEPIPE_DEBUG
// and CLAUDEPIPE_LOG_LEVEL environment variables take precedence.
func Init(configCategories, configLevel string) {
	setup(os.Stderr,
		firstNonEmpty(os.Getenv("CLAUDEPIPE_DEBUG"), configCategories),
		firstNonEmpty(os.Getenv("CLAUDEPIPE_LOG_LEVEL"), configLevel),
		os.Getenv("CLAUDEPIPE_LOG_FORMAT"),
	)
}

func setup(w io.Writer, categories, level, format string) {
	enabled.Store(parseCategories(categories))
	rawOut = w

	opts := &slog.HandlerOptions{Level: ParseLevel(level), ReplaceAttr: levelName}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// levelName prints LevelTrace as "TRACE" instead of "DEBUG-4".
func levelName(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// Enabled reports whether category is switched on.
func Enabled(category string) bool {
	return enabled.Load().has(category)
}

// Log writes a debug record tagged with category.
func Log(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Debug(msg, append([]any{"debug", category}, args...)...)
}

// Trace writes a trace record tagged with category.
func Trace(category, msg string, args ...any) {
	if !Enabled(category) {
		return
	}
	slog.Log(context.Background(), LevelTrace, msg, append([]any{"debug", category}, args...)...)
}

// Raw prints text unformatted, for payloads meant to be copied out of the
// log. It needs both the category and the TRACE level.
func Raw(category, text string) {
	if !Enabled(category) || !slog.Default().Enabled(context.Background(), LevelTrace) {
		return
	}
	fmt.Fprintf(rawOut, "--- %s ---\n%s\n", category, text)
}

// ParseLevel maps a level name onto a slog.Level. Unknown names mean INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return LevelTrace
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Redact keeps the first 8 characters of a secret.
func Redact(secret string) string {
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:8] + "***"
}

// Truncate shortens s to maxLen bytes plus "...".
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

func parseCategories(s string) *categorySet {
	set := &categorySet{cats: map[string]bool{}}
	for _, cat := range strings.Split(s, ",") {
		cat = strings.ToLower(strings.TrimSpace(cat))
		switch cat {
		case "":
		case "all":
			set.all = true
		default:
			set.cats[cat] = true
		}
	}
	return set
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
