package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"unicode/utf8"
)

// RandomString returns n lowercase hex characters.
func RandomString(n int) string {
	if n <= 0 {
		return ""
	}
	buf := make([]byte, (n+1)/2)
	rand.Read(buf)
	return hex.EncodeToString(buf)[:n]
}

// RuneLen counts characters the way a text input's maxlength does.
func RuneLen(s string) int {
	return utf8.RuneCountInString(s)
}

// IsBlank reports whether s is empty after trimming whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
