package util

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const maxReasonLength = 500

var strictPolicy = bluemonday.StrictPolicy()

// SanitizeReason strips markup from free text a customer typed and caps its length
func SanitizeReason(s string) string {
	clean := html.UnescapeString(strictPolicy.Sanitize(s))
	clean = strings.Join(strings.Fields(clean), " ")
	if utf8.RuneCountInString(clean) > maxReasonLength {
		clean = string([]rune(clean)[:maxReasonLength])
	}
	return clean
}
