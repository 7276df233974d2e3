package textnorm

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Parser segments a paragraph into sentences and builds a dependency tree
// for each one. Implementations are reused across calls.
type Parser interface {
	// Name returns the parser name used in logs
	Name() string

	// Parse returns the sentences of a single paragraph
	Parse(ctx context.Context, paragraph string) (*Document, error)

	// IsAvailable reports whether the parser can serve requests
	IsAvailable(ctx context.Context) bool

	// Close releases the model handle
	Close() error
}

// RulesParserName is the name of the built-in parser
const RulesParserName = "rules"

// RulesParser is a dependency-free parser. Every word attaches to the
// sentence root with relation "dep"; punctuation attaches to the preceding
// word (or the following one at sentence start) with relation "punct".
// Fillers therefore only ever govern punctuation, which makes every filler
// removable. Use the natasha parser when syntax matters.
type RulesParser struct{}

// NewRulesParser creates the built-in parser
func NewRulesParser() *RulesParser {
	return &RulesParser{}
}

// Name returns the parser name
func (p *RulesParser) Name() string { return RulesParserName }

// IsAvailable always reports true
func (p *RulesParser) IsAvailable(ctx context.Context) bool { return true }

// Close is a no-op
func (p *RulesParser) Close() error { return nil }

// Parse tokenizes paragraph and splits sentences after terminal punctuation
func (p *RulesParser) Parse(ctx context.Context, paragraph string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := &Document{}
	var current []span
	for _, sp := range tokenize(norm.NFC.String(paragraph)) {
		current = append(current, sp)
		if sp.punct && isTerminal(sp.text) {
			doc.Sentences = append(doc.Sentences, buildSentence(len(doc.Sentences)+1, current))
			current = nil
		}
	}
	if len(current) > 0 {
		doc.Sentences = append(doc.Sentences, buildSentence(len(doc.Sentences)+1, current))
	}
	return doc, nil
}

type span struct {
	text  string
	punct bool
}

// buildSentence assigns natasha-style ids ("sent_tok", root "sent_0")
func buildSentence(sent int, spans []span) *Sentence {
	prefix := strconv.Itoa(sent) + "_"
	root := prefix + "0"
	id := func(i int) string { return prefix + strconv.Itoa(i+1) }

	tokens := make([]Token, len(spans))
	for i, sp := range spans {
		tokens[i] = Token{ID: id(i), Text: sp.text, HeadID: root, Rel: RelDep}
		if !sp.punct {
			continue
		}
		tokens[i].Rel = RelPunct
		if j := nearestWord(spans, i, -1); j >= 0 {
			tokens[i].HeadID = id(j)
		} else if j := nearestWord(spans, i, 1); j >= 0 {
			tokens[i].HeadID = id(j)
		}
	}
	return NewSentence(tokens)
}

func nearestWord(spans []span, from, step int) int {
	for j := from + step; j >= 0 && j < len(spans); j += step {
		if !spans[j].punct {
			return j
		}
	}
	return -1
}

func isTerminal(punct string) bool {
	return strings.ContainsAny(punct, ".!?…")
}

// tokenize splits text into word and punctuation spans. Words keep inner
// hyphens and apostrophes (вообще-то, д'Артаньян) and inner separators
// between digits (3.5, 1,000). Consecutive punctuation forms one span.
func tokenize(text string) []span {
	runes := []rune(text)
	var spans []span

	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++

		case isWordRune(r):
			start := i
			for i < len(runes) {
				if isWordRune(runes[i]) {
					i++
					continue
				}
				if i+1 < len(runes) && joinsWord(runes[i-1], runes[i], runes[i+1]) {
					i += 2
					continue
				}
				break
			}
			spans = append(spans, span{text: string(runes[start:i])})

		default:
			start := i
			for i < len(runes) && !unicode.IsSpace(runes[i]) && !isWordRune(runes[i]) {
				i++
			}
			spans = append(spans, span{text: string(runes[start:i]), punct: true})
		}
	}
	return spans
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}

// joinsWord reports whether sep glues prev and next into one word
func joinsWord(prev, sep, next rune) bool {
	switch sep {
	case '-', '\'', '’':
		return isWordRune(prev) && isWordRune(next)
	case '.', ',':
		return unicode.IsDigit(prev) && unicode.IsDigit(next)
	}
	return false
}
