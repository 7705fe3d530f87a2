package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	pkghttp "github.com/BradenHooton/loginpopup/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	// IPConfig decides which forwarding headers identify the client
	IPConfig *pkghttp.IPConfig
}

// DefaultEndpointRateLimit returns the default throttle for the popup endpoints (60 requests per minute)
func DefaultEndpointRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
	}
}

// EndpointRateLimit throttles requests per client IP before they reach the
// handlers. It only bounds request volume; failed logins are counted by the
// authenticator's own limiter.
func EndpointRateLimit(config RateLimitConfig) func(next http.Handler) http.Handler {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultEndpointRateLimit().RequestsPerMinute
	}
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, config.IPConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteFailureMessage(w, http.StatusTooManyRequests, "Too many requests. Please slow down.")
		}),
	)
}
