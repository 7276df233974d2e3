package textnorm

// Dependency relations the normalizer looks at
const (
	RelPunct     = "punct"
	RelDiscourse = "discourse"
	RelCComp     = "ccomp"
	RelDep       = "dep"
	RelRoot      = "root"
)

// Token is one node of a sentence dependency tree
type Token struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	HeadID string `json:"head_id"`
	Rel    string `json:"rel"`
}

// IsPunct reports whether the token is punctuation
func (t Token) IsPunct() bool {
	return t.Rel == RelPunct
}

// Sentence is an arena of tokens with a parent-to-children index, so
// dependent lookups do not scan the whole sentence
type Sentence struct {
	Tokens   []Token
	children map[string][]int
}

// NewSentence builds the children index for tokens
func NewSentence(tokens []Token) *Sentence {
	s := &Sentence{
		Tokens:   tokens,
		children: make(map[string][]int, len(tokens)),
	}
	for i, tok := range tokens {
		s.children[tok.HeadID] = append(s.children[tok.HeadID], i)
	}
	return s
}

// Dependents returns the tokens whose head is id, in sentence order
func (s *Sentence) Dependents(id string) []Token {
	idx := s.children[id]
	deps := make([]Token, len(idx))
	for i, j := range idx {
		deps[i] = s.Tokens[j]
	}
	return deps
}

// Document is one parsed paragraph
type Document struct {
	Sentences []*Sentence
}

// TokenCount returns the number of tokens across all sentences
func (d *Document) TokenCount() int {
	n := 0
	for _, s := range d.Sentences {
		n += len(s.Tokens)
	}
	return n
}
