package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/BradenHooton/loginpopup/internal/auth"
	"github.com/BradenHooton/loginpopup/internal/handlers"
	"github.com/BradenHooton/loginpopup/internal/middleware"
)

// RegisterRoutes registers all application routes. twoFactorHandler may be
// nil when the second factor is disabled.
func RegisterRoutes(
	router chi.Router,
	popupHandler *handlers.PopupHandler,
	twoFactorHandler *handlers.TwoFactorHandler,
	sessions *auth.SessionManager,
	rateLimitConfig middleware.RateLimitConfig,
) {
	router.Group(func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(auth.LoadSession(sessions))

		r.With(middleware.EndpointRateLimit(rateLimitConfig)).Post("/ajax", popupHandler.Ajax)

		if twoFactorHandler != nil {
			r.Get("/2fa/validate", twoFactorHandler.Prompt)
			r.With(middleware.EndpointRateLimit(rateLimitConfig)).Post("/2fa/validate", twoFactorHandler.Validate)
		}
	})
}
