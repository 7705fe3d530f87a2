package http

import (
	"net/url"
	"strings"
)

// Query parameters that open the login popup.
var TriggerParams = []string{"sl", "show_login"}

// IsTriggered reports whether the query carries a popup trigger set to "true" or "1".
func IsTriggered(q url.Values) bool {
	for _, p := range TriggerParams {
		switch strings.ToLower(q.Get(p)) {
		case "true", "1":
			return true
		}
	}
	return false
}

// StripTriggerParams removes the popup trigger parameters from a URL.
// Unparseable input is returned unchanged.
func StripTriggerParams(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	removed := false
	for _, p := range TriggerParams {
		if q.Has(p) {
			q.Del(p)
			removed = true
		}
	}
	if removed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// SafeRedirect resolves target against home and returns it only when it stays
// on home's origin; anything else yields home. Trigger parameters are stripped
// from the result so the popup does not reopen after the redirect.
func SafeRedirect(target, home string) string {
	base, err := url.Parse(home)
	if err != nil || base.Host == "" {
		return home
	}

	target = strings.TrimSpace(target)
	if target == "" || strings.HasPrefix(target, "//") || strings.ContainsAny(target, "\\\r\n\t") {
		return home
	}

	ref, err := url.Parse(target)
	if err != nil {
		return home
	}
	if ref.User != nil {
		return home
	}

	resolved := base.ResolveReference(ref)
	if !sameOrigin(resolved, base) {
		return home
	}

	return StripTriggerParams(resolved.String())
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
