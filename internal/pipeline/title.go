package pipeline

import (
	"strings"
	"unicode/utf8"
)

// Title derives a record title from text: the first 20 characters for
// Chinese, Japanese and Korean, 50 otherwise, with "…" when truncated.
func Title(text, locale string) string {
	text = strings.Join(strings.Fields(text), " ")
	limit := 50
	switch baseLocale(locale) {
	case "zh", "ja", "ko":
		limit = 20
	}
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return strings.TrimSpace(string([]rune(text)[:limit])) + "…"
}

func baseLocale(locale string) string {
	if i := strings.IndexAny(locale, "-_"); i > 0 {
		locale = locale[:i]
	}
	return strings.ToLower(locale)
}
