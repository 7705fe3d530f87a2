package middleware

import "net/http"

// NoStore marks responses as uncacheable by browsers and shared caches.
// Popup responses depend on the caller's live session.
func NoStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0, private")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")
		h.Set("Surrogate-Control", "no-store")
		h.Add("Vary", "Cookie")
		next.ServeHTTP(w, r)
	})
}
