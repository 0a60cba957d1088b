package errors

import (
	"math"
	"strings"
	"unicode"
)

// ValidateItemID validates an item identifier from the projected-point table.
// Identifiers participate in cache keys, file names, and tie-break ordering,
// so the rules are intentionally conservative:
//   - No empty identifiers
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - Maximum length of 512 characters
func ValidateItemID(id string) error {
	if id == "" {
		return New(ErrCodeInvalidInput, "item identifier cannot be empty")
	}

	if len(id) > 512 {
		return New(ErrCodeInvalidInput, "item identifier too long (max 512 characters)")
	}

	for _, r := range id {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "item identifier contains control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"\x00", // Null byte
		"\\",   // Backslash (Windows path)
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(id, pattern) {
			return New(ErrCodeInvalidInput, "item identifier contains invalid sequence: %q", pattern)
		}
	}

	return nil
}

// ValidateCoordinate validates a projected coordinate value.
// NaN and infinities are rejected; they would poison binning arithmetic.
func ValidateCoordinate(v float64) error {
	if math.IsNaN(v) {
		return New(ErrCodeInvalidInput, "coordinate is NaN")
	}
	if math.IsInf(v, 0) {
		return New(ErrCodeInvalidInput, "coordinate is infinite")
	}
	return nil
}

// ValidateDocumentName validates an output document base name.
// It ensures the name is a simple basename without path components.
func ValidateDocumentName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPath, "document name cannot be empty")
	}

	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidPath, "document name cannot contain path separators")
	}

	if strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidPath, "document name cannot be a hidden file")
	}

	return nil
}

// ValidateURL validates a URL string for safety.
// It ensures the URL has a safe scheme (http or https).
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return New(ErrCodeInvalidInput, "URL cannot be empty")
	}

	// Simple scheme validation without full URL parsing
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return New(ErrCodeInvalidInput, "URL must use http or https scheme")
	}

	return nil
}
