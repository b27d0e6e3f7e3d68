package inbound

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/shandysiswandi/otpgate/internal/pkg/config"
	"github.com/shandysiswandi/otpgate/internal/pkg/goerror"
	"github.com/shandysiswandi/otpgate/internal/pkg/ratelimit"
	"github.com/shandysiswandi/otpgate/internal/pkg/router"
)

const (
	defaultIPLimit  = 3
	defaultIPWindow = time.Minute
)

// IPThrottle limits requests per client address before they reach the handler.
// The address comes from router.ClientIP, which reads proxy headers only from
// app.server.trusted_proxies. Limiter errors let the request through; the
// per-phone limit still applies.
func IPThrottle(limiter ratelimit.Limiter, cfg config.Config) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := router.ClientIP(r)
			if !cfg.GetBool("modules.phoneauth.ratelimit.ip.enabled") || ip == "" {
				next.ServeHTTP(w, r)
				return
			}

			limit := cfg.GetInt("modules.phoneauth.ratelimit.ip.limit")
			if limit <= 0 {
				limit = defaultIPLimit
			}
			window := cfg.GetSecond("modules.phoneauth.ratelimit.ip.window_seconds")
			if window <= 0 {
				window = defaultIPWindow
			}

			decision, err := limiter.Allow(r.Context(), "ip:"+ip, limit, window)
			if err != nil {
				slog.ErrorContext(r.Context(), "failed to check ip rate limit", "client_ip", ip, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if !decision.Allowed {
				slog.WarnContext(r.Context(), "request rate limited by ip", "client_ip", ip)
				router.WriteError(w, goerror.NewTooManyRequest("Too many requests, please try again after a minute", decision.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
