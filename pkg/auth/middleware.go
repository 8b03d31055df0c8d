package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/rhuss/claudepipe/pkg/api"
	"github.com/rhuss/claudepipe/pkg/debug"
	"github.com/rhuss/claudepipe/pkg/observability"
	"github.com/rhuss/claudepipe/pkg/storage"
	"github.com/rhuss/claudepipe/pkg/transport"
)

// DefaultBypassEndpoints are served without authentication.
var DefaultBypassEndpoints = []string{"/healthz", "/readyz", "/metrics"}

// Middleware authenticates every request not in bypass, rate limits it
// when limiter is non-nil, and stores the identity and tenant in the
// request context. Rejections use the same JSON error envelope as the API.
func Middleware(chain *AuthChain, limiter RateLimiter, bypass []string) func(http.Handler) http.Handler {
	skip := make(map[string]bool, len(bypass))
	for _, p := range bypass {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			res := chain.Authenticate(r.Context(), r)
			if res.Decision != Yes || res.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", res.Err,
				)
				w.Header().Set("WWW-Authenticate", `Bearer realm="claudepipe"`)
				transport.WriteErrorResponse(w,
					api.NewInvalidRequestError("", "authentication required"),
					http.StatusUnauthorized,
				)
				return
			}

			id := res.Identity
			if strings.TrimSpace(id.Subject) == "" {
				slog.Error("authenticator returned an identity without subject")
				transport.WriteAPIError(w, api.NewServerError("internal authentication error"))
				return
			}

			if limiter != nil {
				if err := limiter.Allow(r.Context(), id); err != nil {
					slog.Warn("rate limit exceeded", "subject", id.Subject, "tier", id.Tier())
					observability.RateLimitRejectedTotal.WithLabelValues(id.Tier()).Inc()
					w.Header().Set("Retry-After", "60")
					transport.WriteAPIError(w, api.NewTooManyRequestsError("rate limit exceeded"))
					return
				}
			}

			debug.Log("auth", "authenticated",
				"subject", id.Subject,
				"tier", id.Tier(),
				"tenant", id.TenantID(),
				"path", r.URL.Path,
			)

			ctx := SetIdentity(r.Context(), id)
			if tenant := id.TenantID(); tenant != "" {
				ctx = storage.SetTenant(ctx, tenant)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
