package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	// TrustForwardHeaders enables the edge/real-ip/forwarded-for headers.
	TrustForwardHeaders bool
	// TrustedProxies restricts header trust to peers in these CIDR ranges.
	// Empty means every peer is treated as a proxy.
	TrustedProxies []string
}

// forwardHeaders in priority order: edge proxy, real-ip, forwarded-for.
var forwardHeaders = []string{"CF-Connecting-IP", "X-Real-IP", "X-Forwarded-For"}

// ExtractClientIP extracts the real client IP address from the request.
// Forwarding headers are consulted only when the config enables them and,
// if trusted proxies are configured, only when the peer is one of them.
//
// Flow:
// 1. CF-Connecting-IP
// 2. X-Real-IP
// 3. first valid entry of X-Forwarded-For
// 4. RemoteAddr
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !config.TrustForwardHeaders {
		return remoteIP
	}
	if len(config.TrustedProxies) > 0 && !isTrustedProxy(remoteIP, config.TrustedProxies) {
		return remoteIP
	}

	for _, header := range forwardHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		// X-Forwarded-For can contain multiple IPs, take the first real one
		for _, ip := range strings.Split(value, ",") {
			ip = strings.TrimSpace(ip)
			if isValidIP(ip) {
				return ip
			}
		}
	}

	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // Skip invalid CIDR ranges
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

// isValidIP checks if a string is a valid IPv4 or IPv6 address
func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
