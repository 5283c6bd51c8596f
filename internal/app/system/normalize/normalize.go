// Package normalize holds the canonical forms stored for free-text input.
package normalize

import (
	"strings"

	"github.com/MacielDouglas/direcciones-sub001/internal/domain/models"
)

// Email trims and lowercases an email address.
func Email(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Name trims a display name and collapses inner whitespace. Case is kept.
func Name(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Text trims and lowercases address text (street, city, neighborhood, type).
func Text(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Trim is strings.TrimSpace, for fields stored as entered (number, photo, gps).
func Trim(s string) string {
	return strings.TrimSpace(s)
}

// Group maps blank group values onto the default group.
func Group(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return models.DefaultGroup
	}
	return s
}

// OptionalText applies Trim to a pointer value, mapping blank to nil.
func OptionalText(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}
