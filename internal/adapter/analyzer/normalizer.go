package analyzer

import "strings"

// Normalizer prepares free text for embedding: lower-case, split on word
// boundaries, drop English stop words, rejoin with single spaces.
// It is pure and safe for concurrent use.
type Normalizer struct {
	stopwords map[string]struct{}
}

// NewNormalizer creates a Normalizer with the English stop-word set.
func NewNormalizer() *Normalizer {
	return &Normalizer{stopwords: defaultStopwords()}
}

// Normalize returns the normalized form of text. An empty result means the
// text carried no searchable signal.
func (n *Normalizer) Normalize(text string) string {
	words := splitWords(strings.ToLower(text))
	kept := words[:0]
	for _, w := range words {
		if _, stop := n.stopwords[w]; stop {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

// IsStopword reports whether word (already lower-cased) is in the stop-word set.
func (n *Normalizer) IsStopword(word string) bool {
	_, ok := n.stopwords[word]
	return ok
}
