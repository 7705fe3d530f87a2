package auth

import (
	"net/http"
	"strings"
	"time"
)

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Name     string
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetSessionCookie writes the session cookie. maxAge 0 makes it a browser-session cookie.
func SetSessionCookie(w http.ResponseWriter, value string, maxAge int, config CookieConfig) {
	cookie := &http.Cookie{
		Name:     config.Name,
		Value:    value,
		Path:     "/",
		Domain:   config.Domain,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	}
	if maxAge > 0 {
		cookie.MaxAge = maxAge
		cookie.Expires = time.Now().Add(time.Duration(maxAge) * time.Second)
	}
	http.SetCookie(w, cookie)
}

// ClearSessionCookie expires the session cookie
func ClearSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     config.Name,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: parseSameSite(config.SameSite),
	})
}

// GetSessionCookie retrieves the session cookie value
func GetSessionCookie(r *http.Request, config CookieConfig) (string, error) {
	cookie, err := r.Cookie(config.Name)
	if err != nil {
		return "", err
	}
	return cookie.Value, nil
}

func parseSameSite(sameSite string) http.SameSite {
	switch strings.ToLower(sameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
