// Package htmlsanitize strips markup from user-supplied text.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText removes every tag from s, decodes entities and collapses runs
// of whitespace. Center and class names go through it before storage.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	clean := html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(clean), " ")
}

// IsPlainText reports whether s survives PlainText unchanged.
func IsPlainText(s string) bool {
	return PlainText(s) == s
}
