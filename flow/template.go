package flow

import (
	"regexp"
	"strconv"
	"strings"
)

var placeholderRe = regexp.MustCompile(`#\{([a-zA-Z0-9_.-]+)\}`)

// Substitute replaces every #{variable} placeholder in text with the
// variable's value from user data. Unknown variables render as the empty
// string. The same template syntax is used by message text, API call URLs,
// headers and bodies.
func Substitute(text string, userData map[string]any) string {
	if !strings.Contains(text, "#{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := m[2 : len(m)-1]
		v, ok := userData[name]
		if !ok {
			return ""
		}
		switch s := v.(type) {
		case string:
			return s
		case float64:
			return strconv.FormatFloat(s, 'f', -1, 64)
		case bool:
			return strconv.FormatBool(s)
		case nil:
			return ""
		default:
			return stringify(v)
		}
	})
}
