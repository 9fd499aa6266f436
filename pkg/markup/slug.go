package markup

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// deaccent decomposes to NFD and strips combining marks, so "café"
// slugs the same as "cafe".
var deaccent = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slug converts free text into a property symbol: lowercase, diacritics
// stripped, runs of characters outside [a-z0-9_ ] mapped to a single
// space, whitespace collapsed and trimmed, remaining spaces replaced by
// underscores. An empty result, or one starting with a digit, gets a
// leading underscore so the result is always a valid symbol.
//
// Slug is idempotent: Slug(Slug(x)) == Slug(x).
func Slug(text string) string {
	text = strings.ToLower(text)
	if out, _, err := transform.String(deaccent, text); err == nil {
		text = out
	}

	var sb strings.Builder
	space := false
	for _, ch := range text {
		switch {
		case ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9'):
			if space && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			space = false
			sb.WriteRune(ch)
		default:
			// Whitespace and every other character collapse to one space.
			space = true
		}
	}

	res := strings.ReplaceAll(sb.String(), " ", "_")
	if res == "" || (res[0] >= '0' && res[0] <= '9') {
		res = "_" + res
	}
	return res
}
