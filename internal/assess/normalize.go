package assess

import (
	"strings"
	"unicode"
)

// NormalizeText splits a reference text into normalized tokens: lowercased,
// with punctuation stripped. Tokens that are pure punctuation disappear, so
// "Hello, world!" becomes ["hello", "world"]. Apostrophes inside words are
// kept ("don't" stays one token).
func NormalizeText(text string) []string {
	fields := strings.Fields(text)
	words := make([]string, 0, len(fields))
	for _, f := range fields {
		w := normalizeWord(f)
		if w != "" {
			words = append(words, w)
		}
	}
	return words
}

// normalizeWord lowercases w and removes every rune that is not a letter, a
// digit, or an apostrophe between letters.
func normalizeWord(w string) string {
	var b strings.Builder
	b.Grow(len(w))
	runes := []rune(strings.ToLower(w))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		case r == '\'' && i > 0 && i < len(runes)-1 &&
			unicode.IsLetter(runes[i-1]) && unicode.IsLetter(runes[i+1]):
			b.WriteRune(r)
		}
	}
	return b.String()
}
