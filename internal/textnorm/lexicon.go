package textnorm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsupportedLanguage is returned for any language other than Russian
var ErrUnsupportedLanguage = errors.New("unsupported language")

// fillerWords are Russian discourse fillers removed by RemoveStopwords
var fillerWords = newWordSet(
	"типа", "короче", "ну", "э", "вообще", "вообще-то", "похоже",
	"походу", "вот", "блин", "эм", "так",
)

// swearWords are removed only when requested
var swearWords = newWordSet("бля", "блять", "пиздец", "ахуеть")

// removableDependentRels are the relations a filler may govern and still be
// dropped without breaking the sentence
var removableDependentRels = newWordSet(RelDiscourse, RelPunct, RelCComp)

type wordSet map[string]struct{}

func newWordSet(words ...string) wordSet {
	s := make(wordSet, len(words))
	for _, w := range words {
		s[normalizeWord(w)] = struct{}{}
	}
	return s
}

func (s wordSet) has(word string) bool {
	_, ok := s[word]
	return ok
}

// normalizeWord is the form words are compared in: trimmed and lowercase
func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

// FillerWords returns the filler lexicon, sorted
func FillerWords() []string {
	return fillerWords.list()
}

// SwearWords returns the profanity lexicon, sorted
func SwearWords() []string {
	return swearWords.list()
}

func (s wordSet) list() []string {
	out := make([]string, 0, len(s))
	for w := range s {
		out = append(out, w)
	}
	slices.Sort(out)
	return out
}

// checkLanguage accepts ru, rus and russian with optional region suffixes
// such as ru-RU or ru_RU
func checkLanguage(language string) error {
	base := normalizeWord(language)
	if i := strings.IndexAny(base, "-_"); i >= 0 {
		base = base[:i]
	}
	switch base {
	case "ru", "rus", "russian":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)
}
