package parse

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"crawl-scheduler/pkg/utils"
)

// Origin identifies a policy/throttle scope: a normalized scheme+host(+port).
// Immutable once derived; used as the identity key for per-origin state.
type Origin string

// String returns the origin as a plain string.
func (o Origin) String() string { return string(o) }

// Host returns the host (and port, if non-default) component of the origin.
func (o Origin) Host() string {
	if idx := strings.Index(string(o), "://"); idx >= 0 {
		return string(o)[idx+3:]
	}
	return string(o)
}

// RobotsURL returns the robots.txt URL for this origin.
func (o Origin) RobotsURL() string {
	return string(o) + "/robots.txt"
}

// DeriveOrigin extracts the normalized origin from a raw URL string.
// Only http and https URLs are accepted; anything else is a fatal input error
// wrapped with utils.ErrInvalidURL.
func DeriveOrigin(rawURL string) (Origin, error) {
	parsed, err := url.ParseRequestURI(rawURL) // Stricter parsing, requires scheme
	if err != nil {
		return "", fmt.Errorf("%w: %v", utils.ErrInvalidURL, err)
	}
	return OriginOf(parsed)
}

// OriginOf derives the normalized origin from an already-parsed URL.
func OriginOf(u *url.URL) (Origin, error) {
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", utils.ErrInvalidURL, u.Scheme)
	}
	host := strings.ToLower(u.Host)
	if host == "" {
		return "", fmt.Errorf("%w: missing host", utils.ErrInvalidURL)
	}

	// Strip default ports so http://example.com:80 and http://example.com share state
	if h, port, err := net.SplitHostPort(host); err == nil {
		if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
			host = h
		}
	}

	return Origin(scheme + "://" + host), nil
}

// NormalizeURL standardizes a URL for comparison and journal keys.
// It lowercases the scheme and host, removes default ports (80 for http, 443
// for https), removes trailing slashes from paths (unless root "/"), ensures
// empty path becomes "/", and removes fragments and query strings.
// Does not modify the input *url.URL.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil { // Host included a port
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host // Use hostname without default port
		}
	} // If no port or error, Host remains unchanged

	// Handle path normalization
	if normalized.Path == "" {
		normalized.Path = "/" // Ensure empty path becomes "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1] // Remove trailing slash
	}

	normalized.Fragment = "" // Remove fragment
	normalized.RawQuery = "" // Remove query string

	return normalized.String()
}

// ParseAndNormalize parses a URL string using the stricter url.ParseRequestURI
// (requiring a scheme) and then normalizes it using NormalizeURL.
// Returns the normalized string, the parsed URL object, and any parse error.
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr) // Stricter parsing
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", utils.ErrInvalidURL, err)
	}
	normalizedStr := NormalizeURL(parsed)
	return normalizedStr, parsed, nil
}
