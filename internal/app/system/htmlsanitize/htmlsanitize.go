// Package htmlsanitize strips markup from user-entered free text.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// strict removes every tag and attribute. It is safe for concurrent use.
var strict = bluemonday.StrictPolicy()

// StripTags returns s with all HTML removed and entities decoded, trimmed.
// Comments and address complements are plain text; they are never rendered
// as HTML.
func StripTags(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}

// IsPlainText reports whether s contains no HTML tags.
func IsPlainText(s string) bool {
	if s == "" {
		return true
	}
	return !strings.Contains(s, "<") || !strings.Contains(s, ">")
}
