package analyzer

import (
	"testing"
)

func TestTokenizer_Tokenize_WithStemming(t *testing.T) {
	tok := NewTokenizer(true)

	tokens := tok.Tokenize("running dogs are playing")
	if len(tokens) != 3 {
		t.Errorf("expected 3 tokens, got %d: %v", len(tokens), tokens)
	}

	hasRun := false
	for _, token := range tokens {
		if token == "run" {
			hasRun = true
		}
	}
	if !hasRun {
		t.Errorf("expected 'running' to be stemmed to 'run', got %v", tokens)
	}
}

func TestTokenizer_Tokenize_WithoutStemming(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("running dogs are playing")
	if len(tokens) != 3 {
		t.Errorf("expected 3 tokens, got %d: %v", len(tokens), tokens)
	}

	hasRunning := false
	for _, token := range tokens {
		if token == "running" {
			hasRunning = true
		}
	}
	if !hasRunning {
		t.Errorf("expected 'running' to remain unstemmed, got %v", tokens)
	}
}

func TestTokenizer_StopwordRemoval(t *testing.T) {
	tok := NewTokenizer(false)

	tokens := tok.Tokenize("the quick brown fox")
	for _, token := range tokens {
		if token == "the" {
			t.Errorf("stopword 'the' should be removed, got %v", tokens)
		}
	}
}

func TestTokenizer_CountTokens(t *testing.T) {
	tok := NewTokenizer(false)

	count := tok.CountTokens("hello world this is a test")
	if count < 6 {
		t.Errorf("expected count >= 6 words, got %d", count)
	}
	if tok.CountTokens("") != 0 {
		t.Error("expected 0 count for empty input")
	}
}

func TestTokenizer_Truncate(t *testing.T) {
	tok := NewTokenizer(false)
	text := "one two three four five six seven eight nine ten"

	if got := tok.Truncate(text, 100); got != text {
		t.Errorf("text within budget should be unchanged, got %q", got)
	}

	got := tok.Truncate(text, 5)
	if tok.CountTokens(got) > 5 {
		t.Errorf("truncated text %q still over budget (%d tokens)", got, tok.CountTokens(got))
	}
	if got != "one two three" {
		t.Errorf("unexpected truncation: %q", got)
	}
}

func TestStemmer(t *testing.T) {
	s := NewStemmer()
	tests := map[string]string{
		"cakes":    "cake",
		"baking":   "bake",
		"baked":    "bake",
		"chopped":  "chop",
		"grilled":  "grill",
		"berries":  "berry",
		"tomatoes": "tomato",
		"desserts": "dessert",
		"hummus":   "hummus",
		"glass":    "glass",
		"need":     "need",
		"egg":      "egg",
	}
	for in, want := range tests {
		if got := s.Stem(in); got != want {
			t.Errorf("Stem(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"hello world", 2},
		{"hello-world", 2},
		{"what's cooking?", 3},
		{"CamelCase", 1},
		{"123numbers456", 1},
		{"  ", 0},
	}

	for _, tt := range tests {
		words := splitWords(tt.input)
		if len(words) != tt.expected {
			t.Errorf("splitWords(%q) = %d words, want %d: %v", tt.input, len(words), tt.expected, words)
		}
	}
}
