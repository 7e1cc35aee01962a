package httpserver

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ValidationError describes one rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult is the outcome of validating a request parameter.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

var validIdentifier = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateJobID validates path identifiers (job ids and session ids share
// the same shape).
func ValidateJobID(id string) ValidationResult {
	if id == "" {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Field: "id", Code: "REQUIRED", Message: "ID is required"},
			},
		}
	}
	if len(id) > 100 {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Field: "id", Code: "TOO_LONG", Message: "ID is too long (max 100 characters)"},
			},
		}
	}
	if !validIdentifier.MatchString(id) {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{
				{Field: "id", Code: "INVALID_FORMAT", Message: "ID contains invalid characters"},
			},
		}
	}
	return ValidationResult{Valid: true}
}

// SanitizeIdea normalises a research idea: strips null bytes, trims
// whitespace and guarantees valid UTF-8. Length is left to the request
// validator; an empty idea is a legal request.
func SanitizeIdea(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}
