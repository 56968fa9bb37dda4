package utils

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"Simple", "hello", "hello"},
		{"AgentToken", "crawl-scheduler/1.0", "crawl-scheduler_1.0"},
		{"WithSpaces", "hello world", "hello world"},
		{"WithSlash", "path/to/file", "path_to_file"},
		{"WithColon", "file:name", "file_name"},
		{"WithMultipleInvalid", "a<b>c:d", "a_b_c_d"},
		{"ConsecutiveUnderscores", "a___b", "a_b"},
		{"LeadingTrailingSpaces", "  file  ", "file"},
		{"Empty", "", "untitled"},
		{"OnlyInvalidChars", "<>:", "untitled"},
		{"NullChar", "file\x00name", "file_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestSanitizeFilename_LongNames(t *testing.T) {
	longName := strings.Repeat("a", 150)
	result := SanitizeFilename(longName)
	if len(result) > 100 {
		t.Errorf("SanitizeFilename(long) length = %d, want <= 100", len(result))
	}
}

func TestHashContent(t *testing.T) {
	// Known SHA-256 of "hello"
	const expected = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := HashContent([]byte("hello")); got != expected {
		t.Errorf("HashContent(hello) = %q, want %q", got, expected)
	}
}

func TestHashContent_EmptyAndDistinct(t *testing.T) {
	empty := HashContent(nil)
	if len(empty) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(empty))
	}
	if HashContent([]byte("a")) == HashContent([]byte("b")) {
		t.Error("distinct payloads produced identical hashes")
	}
}
