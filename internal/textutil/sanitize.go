package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var spanishTitle = cases.Title(language.Spanish)

// diacriticStripper decomposes runes and drops the combining marks, turning
// "corazón" into "corazon".
var diacriticStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// TitleCase renders a name in Spanish title casing.
func TitleCase(value string) string {
	return spanishTitle.String(strings.TrimSpace(value))
}

// StripDiacritics folds accented characters to their base form.
func StripDiacritics(value string) string {
	out, _, err := transform.String(diacriticStripper, value)
	if err != nil {
		return value
	}
	return out
}

// SanitizeToken converts a string to a lowercase storage-safe token.
// Diacritics are folded first; letters are lowercased, digits and
// hyphens/underscores are kept, everything else becomes an underscore.
// Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(StripDiacritics(value))
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}

// TruncateRunes cuts a string to at most limit runes, trimming trailing
// whitespace left by the cut.
func TruncateRunes(value string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(value)
	if len(r) <= limit {
		return value
	}
	return strings.TrimSpace(string(r[:limit]))
}
