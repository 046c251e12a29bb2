package logger

import (
	"fmt"
	"strings"
)

// Sanitize escapes control characters so a string is safe to put in a log
// field. Object keys come from API callers and error messages carry raw
// encoder stderr; either can embed newlines or ANSI sequences that would
// forge log entries or drive the terminal. Printable Unicode passes
// through untouched.
func Sanitize(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch r {
		case '\n':
			result.WriteString("\\n")
		case '\r':
			result.WriteString("\\r")
		case '\t':
			result.WriteString("\\t")
		case '\x00':
			result.WriteString("\\x00")
		default:
			if r < 32 || r == 127 || r == '\x1b' {
				result.WriteString(fmt.Sprintf("\\x%02x", r))
			} else {
				result.WriteRune(r)
			}
		}
	}
	return result.String()
}
