package parse

import (
	"errors"
	"net/url"
	"testing"

	"crawl-scheduler/pkg/utils"
)

func TestDeriveOrigin_Valid(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Origin
	}{
		{"SimpleHTTP", "http://example.com/page", "http://example.com"},
		{"SimpleHTTPS", "https://example.com/docs/intro", "https://example.com"},
		{"UppercaseHostLowercased", "https://EXAMPLE.com/Page", "https://example.com"},
		{"UppercaseSchemeLowercased", "HTTPS://example.com/page", "https://example.com"},
		{"DefaultHTTPPortStripped", "http://example.com:80/page", "http://example.com"},
		{"DefaultHTTPSPortStripped", "https://example.com:443/page", "https://example.com"},
		{"NonDefaultPortKept", "http://example.com:8080/page", "http://example.com:8080"},
		{"HTTPSPort80Kept", "https://example.com:80/page", "https://example.com:80"},
		{"QueryAndFragmentIgnored", "https://example.com/p?q=1#frag", "https://example.com"},
		{"Subdomain", "https://docs.example.com/api", "https://docs.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeriveOrigin(tt.input)
			if err != nil {
				t.Fatalf("DeriveOrigin(%q) returned error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("DeriveOrigin(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDeriveOrigin_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"Empty", ""},
		{"NoScheme", "example.com/page"},
		{"RelativePath", "/just/a/path"},
		{"FTPScheme", "ftp://example.com/file"},
		{"FileScheme", "file:///etc/passwd"},
		{"Garbage", "ht!tp://bad url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeriveOrigin(tt.input)
			if err == nil {
				t.Fatalf("DeriveOrigin(%q) succeeded, want error", tt.input)
			}
			if !errors.Is(err, utils.ErrInvalidURL) {
				t.Errorf("DeriveOrigin(%q) error = %v, want wrapped ErrInvalidURL", tt.input, err)
			}
		})
	}
}

func TestOriginOf_MissingHost(t *testing.T) {
	u := &url.URL{Scheme: "http", Path: "/page"}
	_, err := OriginOf(u)
	if !errors.Is(err, utils.ErrInvalidURL) {
		t.Errorf("OriginOf with empty host error = %v, want wrapped ErrInvalidURL", err)
	}
}

func TestOrigin_Host(t *testing.T) {
	tests := []struct {
		name     string
		origin   Origin
		expected string
	}{
		{"Plain", "https://example.com", "example.com"},
		{"WithPort", "http://example.com:8080", "example.com:8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.origin.Host(); got != tt.expected {
				t.Errorf("Origin(%q).Host() = %q, want %q", tt.origin, got, tt.expected)
			}
		})
	}
}

func TestOrigin_RobotsURL(t *testing.T) {
	origin := Origin("https://example.com")
	expected := "https://example.com/robots.txt"
	if got := origin.RobotsURL(); got != expected {
		t.Errorf("RobotsURL() = %q, want %q", got, expected)
	}
}

func TestDeriveOrigin_SameOriginDifferentPaths(t *testing.T) {
	a, err := DeriveOrigin("https://example.com/a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := DeriveOrigin("https://example.com:443/b?x=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("origins differ: %q vs %q, want identical", a, b)
	}
}
