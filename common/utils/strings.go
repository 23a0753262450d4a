package utils

import (
	"strings"
	"unicode"
)

// Trim removes control symbols from both ends of a string. Attachment
// names pass through here before they become file names.
func Trim(str string) string {
	return strings.TrimFunc(str, func(c rune) bool {
		return unicode.IsControl(c)
	})
}
