package matcher

import (
	"strings"
	"unicode"
)

// Token is one script word with its position in the source text.
type Token struct {
	Normalized string
	WordIndex  int
	CharStart  int
	CharEnd    int
}

// TokenizeScript splits a script on whitespace into a dense, zero-based
// token sequence. Char offsets are byte offsets into the original text so
// a renderer can map a word index back to a highlight range.
func TokenizeScript(text string) []Token {
	var res []Token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				res = appendToken(res, text, start, i)
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		res = appendToken(res, text, start, len(text))
	}
	return res
}

func appendToken(tokens []Token, text string, start, end int) []Token {
	return append(tokens, Token{
		Normalized: NormalizeWord(text[start:end]),
		WordIndex:  len(tokens),
		CharStart:  start,
		CharEnd:    end,
	})
}

// NormalizeWord lowercases a word and strips punctuation so script and
// transcript tokens compare on their spoken form.
func NormalizeWord(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) {
			return -1
		}
		return r
	}, s)
}

// lastFields returns up to n trailing whitespace-delimited fields of s.
// It scans backwards from the end so the cost stays bounded by the tail,
// not by the transcript length.
func lastFields(s string, n int) []string {
	res := make([]string, 0, n)
	end := -1
	for i := len(s) - 1; i >= 0 && len(res) < n; i-- {
		if isSpaceByte(s[i]) {
			if end >= 0 {
				res = append(res, s[i+1:end+1])
				end = -1
			}
			continue
		}
		if end < 0 {
			end = i
		}
	}
	if end >= 0 && len(res) < n {
		res = append(res, s[:end+1])
	}
	// Collected back to front.
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return res
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
