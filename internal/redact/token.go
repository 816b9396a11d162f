package redact

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenize splits s into maximal runs of whitespace and non-whitespace.
// Concatenating the result reproduces s exactly.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range s {
		space := unicode.IsSpace(r)
		if i == 0 {
			inSpace = space
			continue
		}
		if space != inSpace {
			tokens = append(tokens, s[start:i])
			start = i
			inSpace = space
		}
	}
	return append(tokens, s[start:])
}

// IsWord reports whether tok is a word token: its first rune is a letter,
// a digit or an underscore.
func IsWord(tok string) bool {
	r, size := utf8.DecodeRuneInString(tok)
	if size == 0 {
		return false
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// endsSentence reports whether a separator token carries sentence-ending
// punctuation.
func endsSentence(tok string) bool {
	return strings.ContainsAny(tok, ".!?")
}
