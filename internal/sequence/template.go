package sequence

import (
	"regexp"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*(\w+)\s*\}\}`)

// Render substitutes {{campo}} placeholders in content using the data map.
// Unknown placeholders render as empty strings rather than leaking braces
// into an outbound message.
func Render(content string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		return data[key]
	})
}

// References reports whether content mentions the placeholder name.
func References(content, name string) bool {
	for _, match := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		if match[1] == name {
			return true
		}
	}
	return false
}
