package textnorm

import (
	"context"
	"fmt"
	"strings"

	"github.com/lexiqai/transcriber/internal/observability"
)

// DefaultMaxPasses bounds repeated stopword passes
const DefaultMaxPasses = 10

// StopwordOptions controls RemoveStopwords
type StopwordOptions struct {
	// RemoveSwearWords also drops profanity
	RemoveSwearWords bool

	// GoFewTimes re-parses and re-filters the output while a pass still
	// removes something, up to the configured pass limit. Repeated passes
	// can drop meaningful words.
	GoFewTimes bool
}

// Normalizer removes filler, profanity or caller-chosen words from Russian
// text using a dependency parse
type Normalizer struct {
	parser    Parser
	maxPasses int
}

// NewNormalizer takes ownership of parser; Close releases it.
// maxPasses <= 0 selects DefaultMaxPasses.
func NewNormalizer(parser Parser, maxPasses int) *Normalizer {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	return &Normalizer{parser: parser, maxPasses: maxPasses}
}

// RemoveStopwords drops every filler (and, if requested, profanity) token
// whose dependents are all discourse, punctuation or clausal complements
func (n *Normalizer) RemoveStopwords(ctx context.Context, language, text string, opts StopwordOptions) (string, error) {
	if err := checkLanguage(language); err != nil {
		return "", err
	}

	isStopword := func(s *Sentence, tok Token) bool {
		word := normalizeWord(tok.Text)
		if !fillerWords.has(word) && !(opts.RemoveSwearWords && swearWords.has(word)) {
			return false
		}
		for _, dep := range s.Dependents(tok.ID) {
			if !removableDependentRels.has(dep.Rel) {
				return false
			}
		}
		return true
	}

	logger := observability.LoggerFromContext(ctx)
	passes := 0
	for {
		out, removed, err := n.pass(ctx, text, isStopword)
		if err != nil {
			return "", err
		}
		passes++
		text = out

		if !opts.GoFewTimes || removed == 0 || passes >= n.maxPasses {
			logger.Debug().
				Int("passes", passes).
				Int("last_pass_removed", removed).
				Str("parser", n.parser.Name()).
				Msg("Stopwords removed")
			break
		}
	}

	observability.RecordNormalizerPasses(passes)
	return text, nil
}

// RemoveWords drops every token whose lowercase form equals one of words
// (compared trimmed and lowercase). Runs a single pass.
func (n *Normalizer) RemoveWords(ctx context.Context, language, text string, words []string) (string, error) {
	if err := checkLanguage(language); err != nil {
		return "", err
	}

	targets := newWordSet(words...)
	out, _, err := n.pass(ctx, text, func(s *Sentence, tok Token) bool {
		return targets.has(strings.ToLower(tok.Text))
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// pass parses every paragraph (split on "\n"), filters and restores it
func (n *Normalizer) pass(ctx context.Context, text string, remove removeFunc) (string, int, error) {
	paragraphs := strings.Split(text, "\n")
	restored := make([]string, len(paragraphs))
	total := 0

	for i, paragraph := range paragraphs {
		if strings.TrimSpace(paragraph) == "" {
			restored[i] = ""
			continue
		}

		doc, err := n.parser.Parse(ctx, paragraph)
		if err != nil {
			return "", 0, fmt.Errorf("%s parse: %w", n.parser.Name(), err)
		}

		tokens, removed := filter(doc, remove)
		restored[i] = restore(tokens)
		total += removed
	}

	return strings.Join(restored, "\n"), total, nil
}

// Name returns the parser name
func (n *Normalizer) Name() string {
	return n.parser.Name()
}

// IsAvailable reports whether the parser can serve requests
func (n *Normalizer) IsAvailable(ctx context.Context) bool {
	return n.parser.IsAvailable(ctx)
}

// Close releases the parser
func (n *Normalizer) Close() error {
	return n.parser.Close()
}
