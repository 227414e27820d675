// Package textnorm provides the text normalization shared by the transcript
// reconciler and the similarity scorer.
package textnorm

import (
	"strings"
	"unicode"
)

// Normalize lowercases s, strips every character that is neither a word
// character (letter, digit, underscore) nor whitespace, and collapses runs of
// whitespace into single spaces.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', unicode.IsMark(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Words returns the normalized words of s.
func Words(s string) []string {
	n := Normalize(s)
	if n == "" {
		return nil
	}
	return strings.Split(n, " ")
}

// Token is a single whitespace-separated word in its original spelling
// together with its normalized form.
type Token struct {
	Raw  string
	Norm string
}

// Tokenize splits s on whitespace and drops tokens that normalize to nothing
// (stray punctuation, dashes).
func Tokenize(s string) []Token {
	fields := strings.Fields(s)
	tokens := make([]Token, 0, len(fields))
	for _, f := range fields {
		n := Normalize(f)
		if n == "" {
			continue
		}
		tokens = append(tokens, Token{Raw: f, Norm: n})
	}
	return tokens
}
