package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into index terms with optional stemming and
// stop-word removal. It feeds the hashing embedder and token budgeting.
type Tokenizer struct {
	stemmer   *Stemmer
	stopwords map[string]struct{}
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(useStemming bool) *Tokenizer {
	var stemmer *Stemmer
	if useStemming {
		stemmer = NewStemmer()
	}
	return &Tokenizer{
		stemmer:   stemmer,
		stopwords: defaultStopwords(),
	}
}

// Tokenize splits text into tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := splitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if len(word) < 2 {
			continue
		}
		if _, isStop := t.stopwords[word]; isStop {
			continue
		}
		if t.stemmer != nil {
			word = t.stemmer.Stem(word)
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// CountTokens returns an approximate model token count for budget checks.
// Word pieces average about 1.3 tokens per whitespace word in English text.
func (t *Tokenizer) CountTokens(text string) int {
	words := splitWords(text)
	if len(words) == 0 {
		return 0
	}
	return int(float64(len(words))*1.3 + 0.5)
}

// Truncate cuts text after the last word that keeps it within maxTokens.
// Text already within budget is returned unchanged.
func (t *Tokenizer) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 || t.CountTokens(text) <= maxTokens {
		return text
	}
	maxWords := int(float64(maxTokens) / 1.3)
	if maxWords <= 0 {
		return ""
	}

	words := 0
	inWord := false
	for i, r := range text {
		isWord := isWordRune(r)
		if isWord && !inWord {
			if words == maxWords {
				return strings.TrimRightFunc(text[:i], func(r rune) bool { return !isWordRune(r) })
			}
			words++
		}
		inWord = isWord
	}
	return text
}

// splitWords splits text into runs of letters and digits.
func splitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if isWordRune(r) {
			current.WriteRune(r)
			continue
		}
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
