package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const emptySlug = "untitled"

// Slug turns a topic into a lowercase, hyphen-separated file name stem. Letters
// and digits of any script are kept along with their combining marks, so Hindi
// and Tamil topics stay readable. maxLen counts runes; truncation prefers the
// last hyphen in the second half of the cut.
func Slug(value string, maxLen int) string {
	var b strings.Builder
	separate := false
	for _, r := range norm.NFC.String(strings.ToLower(value)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.M, r) {
			if separate && b.Len() > 0 {
				b.WriteByte('-')
			}
			separate = false
			b.WriteRune(r)
			continue
		}
		separate = true
	}
	slug := b.String()
	if slug == "" {
		return emptySlug
	}
	if maxLen > 0 && utf8.RuneCountInString(slug) > maxLen {
		cut := string([]rune(slug)[:maxLen])
		if idx := strings.LastIndexByte(cut, '-'); idx > len(cut)/2 {
			cut = cut[:idx]
		}
		slug = strings.Trim(cut, "-")
	}
	return slug
}
