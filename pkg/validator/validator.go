package validator

import (
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var msgs []string
	for _, e := range v {
		msgs = append(msgs, e.Field+": "+e.Message)
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any errors
func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

// Add adds a validation error
func (v *ValidationErrors) Add(field, message string) {
	*v = append(*v, ValidationError{Field: field, Message: message})
}

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

// ParseUUID parses a required id field, recording an error when it is
// missing or malformed.
func ParseUUID(errs *ValidationErrors, field, value string) uuid.UUID {
	value = strings.TrimSpace(value)
	if value == "" {
		errs.Add(field, "is required")
		return uuid.Nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		errs.Add(field, "must be a valid id")
		return uuid.Nil
	}
	return id
}

// NormalizeMessageBody prepares plain chat text for storage. The text is kept
// as sent apart from surrounding whitespace, invalid UTF-8 sequences (replaced
// with U+FFFD) and the rune cap. Escaping belongs to whoever renders it.
func NormalizeMessageBody(body string, maxLen int) string {
	return SanitizeString(strings.ToValidUTF8(body, "\uFFFD"), maxLen)
}

// SanitizeString trims whitespace and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) > maxLen {
		return string([]rune(s)[:maxLen])
	}
	return s
}
