// Package sanitize cleans short free-text answers received from booking
// platforms before they are stored. Intake-form answers can carry markup
// pasted from rich-text editors.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
	entityReplacer  = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// StripHTML removes tags, decodes the common entities and strips again so
// encoded tags do not survive.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips markup, collapses runs of whitespace and cuts the result to
// maxRunes. maxRunes <= 0 means no limit.
func Text(s string, maxRunes int) string {
	result := whitespaceRegex.ReplaceAllString(StripHTML(s), " ")
	if maxRunes > 0 {
		if r := []rune(result); len(r) > maxRunes {
			result = strings.TrimSpace(string(r[:maxRunes]))
		}
	}
	return result
}

// Optional is Text for nullable columns: empty results become nil.
func Optional(s string, maxRunes int) *string {
	result := Text(s, maxRunes)
	if result == "" {
		return nil
	}
	return &result
}
