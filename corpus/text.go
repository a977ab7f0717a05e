package corpus

import (
	"strings"
	"unicode/utf8"
)

// CutUTF8 returns the longest prefix of text that fits in limit bytes
// without splitting a rune.
func CutUTF8(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// Clip trims text and shortens it to at most limit bytes, marking the cut
// with "...".
func Clip(text string, limit int) string {
	text = strings.TrimSpace(text)
	if len(text) <= limit {
		return text
	}
	return CutUTF8(text, limit) + "..."
}
