package textnorm

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// removeFunc decides whether a token is dropped from its sentence
type removeFunc func(s *Sentence, tok Token) bool

// filter returns the retained tokens of doc in order and how many tokens
// were dropped. When the first word of a capitalized sentence is dropped,
// the first retained word of that sentence takes over the capital letter.
func filter(doc *Document, remove removeFunc) ([]Token, int) {
	retained := make([]Token, 0, doc.TokenCount())
	removed := 0

	for _, s := range doc.Sentences {
		firstWordSeen := false
		capitalize := false

		for _, tok := range s.Tokens {
			if remove(s, tok) {
				removed++
				if !tok.IsPunct() && !firstWordSeen {
					firstWordSeen = true
					capitalize = startsUpper(tok.Text)
				}
				continue
			}

			if !tok.IsPunct() {
				if capitalize {
					tok.Text = upperFirst(tok.Text)
					capitalize = false
				}
				firstWordSeen = true
			}
			retained = append(retained, tok)
		}
	}
	return retained, removed
}

// restore renders tokens back to text. Punctuation attaches to the previous
// token without a space; punctuation that opens the paragraph or follows
// other retained punctuation is dropped. Every other token is preceded by a
// single space, and the leading space is stripped.
func restore(tokens []Token) string {
	var b strings.Builder
	for i, tok := range tokens {
		if tok.IsPunct() {
			if i != 0 && !tokens[i-1].IsPunct() {
				b.WriteString(tok.Text)
			}
			continue
		}
		b.WriteByte(' ')
		b.WriteString(tok.Text)
	}
	return strings.TrimPrefix(b.String(), " ")
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || !unicode.IsLower(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
