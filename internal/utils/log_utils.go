package utils

import (
	"regexp"
	"strings"
	"unicode"
)

// MaxLogStringLength defines the maximum length for user-provided strings in logs
const MaxLogStringLength = 200

// PreviewLength is the number of characters of transcript text shown in logs
const PreviewLength = 50

var unprintable = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{S}\p{Z}]`)

// SanitizeLogString sanitizes a user-controlled string for safe logging.
// Meeting ids, participant ids and display names all arrive from clients.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	if len(input) > MaxLogStringLength {
		input = input[:MaxLogStringLength] + "... (truncated)"
	}

	input = strings.ReplaceAll(input, "\r\n", "\n")

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	// Escape format verbs so the value can never act as a format string
	sanitized = strings.ReplaceAll(sanitized, "%", "%%")

	return unprintable.ReplaceAllString(sanitized, "")
}

// Preview returns a sanitized, shortened form of transcript text for logs
func Preview(text string) string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) > PreviewLength {
		return SanitizeLogString(string(runes[:PreviewLength])) + "..."
	}
	return SanitizeLogString(string(runes))
}
