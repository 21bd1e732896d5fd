package http

import (
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/render"
	"github.com/tinylink/tinylink/pkg/response"
)

// clientIP extracts the caller's IP. The RealIP middleware has already folded
// X-Forwarded-For into RemoteAddr when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// rateLimit rejects requests over the client's window budget with 429. The
// limiter itself fails open, so a degraded counter backend never blocks
// traffic.
func rateLimit(limiter Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := limiter.Admit(r.Context(), clientIP(r))
			if !decision.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(decision.RetryAfter.Seconds())))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.RateLimitedResponse(decision.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
