package textnorm

import (
	"context"
	"testing"
)

func tokenTexts(doc *Document) [][]string {
	out := make([][]string, len(doc.Sentences))
	for i, s := range doc.Sentences {
		for _, tok := range s.Tokens {
			out[i] = append(out[i], tok.Text)
		}
	}
	return out
}

func TestRulesParser_Tokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{"simple", "Ну, короче, я пошёл домой.", []string{"Ну", ",", "короче", ",", "я", "пошёл", "домой", "."}},
		{"hyphenated word", "Вообще-то да", []string{"Вообще-то", "да"}},
		{"dash is punctuation", "это — он", []string{"это", "—", "он"}},
		{"decimal number", "ровно 3.5 часа", []string{"ровно", "3.5", "часа"}},
		{"grouped punctuation", "Что?! Нет...", []string{"Что", "?!", "Нет", "..."}},
		{"quotes", "он сказал «да»", []string{"он", "сказал", "«", "да", "»"}},
	}

	p := NewRulesParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := p.Parse(context.Background(), tt.input)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			var got []string
			for _, s := range tokenTexts(doc) {
				got = append(got, s...)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %q, got %q", tt.expected, got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Token %d: expected %q, got %q", i, tt.expected[i], got[i])
				}
			}
		})
	}
}

func TestRulesParser_Sentences(t *testing.T) {
	doc, err := NewRulesParser().Parse(context.Background(), "Привет! Как дела? Хорошо")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(doc.Sentences) != 3 {
		t.Fatalf("Expected 3 sentences, got %d: %q", len(doc.Sentences), tokenTexts(doc))
	}

	second := doc.Sentences[1].Tokens
	if second[0].ID != "2_1" || second[0].HeadID != "2_0" || second[0].Rel != RelDep {
		t.Errorf("Unexpected word token %+v", second[0])
	}
	last := second[len(second)-1]
	if last.Rel != RelPunct || last.HeadID != "2_2" {
		t.Errorf("Expected '?' to attach to the preceding word, got %+v", last)
	}
}

func TestRulesParser_PunctuationHeads(t *testing.T) {
	doc, err := NewRulesParser().Parse(context.Background(), "— Ну, да")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	s := doc.Sentences[0]
	// A leading dash has no preceding word and attaches forward
	if s.Tokens[0].HeadID != "1_2" {
		t.Errorf("Expected leading dash to attach to 1_2, got %s", s.Tokens[0].HeadID)
	}

	deps := s.Dependents("1_2")
	if len(deps) != 2 {
		t.Fatalf("Expected 2 dependents of 'Ну', got %+v", deps)
	}
	for _, d := range deps {
		if d.Rel != RelPunct {
			t.Errorf("Expected punct dependent, got %+v", d)
		}
	}
}

func TestRulesParser_NFC(t *testing.T) {
	// "й" written as "и" + combining breve
	doc, err := NewRulesParser().Parse(context.Background(), "мои\u0306 дом")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := doc.Sentences[0].Tokens[0].Text; got != "мой" {
		t.Errorf("Expected composed 'мой', got %q", got)
	}
}

func TestRulesParser_Empty(t *testing.T) {
	doc, err := NewRulesParser().Parse(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(doc.Sentences) != 0 {
		t.Errorf("Expected no sentences, got %d", len(doc.Sentences))
	}
}

func TestRulesParser_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewRulesParser().Parse(ctx, "да"); err == nil {
		t.Error("Expected error for cancelled context")
	}
}
