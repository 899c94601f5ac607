package analyzer

import "strings"

// Stemmer strips common English inflections so that "cakes", "baking" and
// "baked" share a term with "cake" and "bake". It is deliberately lighter
// than Porter: derivational suffixes are left alone.
type Stemmer struct{}

// NewStemmer creates a new Stemmer.
func NewStemmer() *Stemmer {
	return &Stemmer{}
}

// Stem returns the stem of a lower-case word.
func (s *Stemmer) Stem(word string) string {
	if len(word) < 4 {
		return word
	}

	switch {
	case strings.HasSuffix(word, "sses"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "oes") && len(word) > 4:
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ss"), strings.HasSuffix(word, "us"), strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return word[:len(word)-1]
	}

	for _, suffix := range []string{"ing", "ed"} {
		if !strings.HasSuffix(word, suffix) {
			continue
		}
		stem := word[:len(word)-len(suffix)]
		if len(stem) < 3 || !hasVowel(stem) {
			return word
		}
		return restoreStem(stem)
	}

	return word
}

// restoreStem undoes doubling ("chopped" -> "chop") and restores a dropped
// silent e ("baking" -> "bake").
func restoreStem(stem string) string {
	n := len(stem)
	if n >= 2 && stem[n-1] == stem[n-2] && isConsonant(stem, n-1) {
		switch stem[n-1] {
		case 'l', 's', 'z':
			return stem
		}
		return stem[:n-1]
	}
	if n >= 3 && isConsonant(stem, n-1) && !isConsonant(stem, n-2) && isConsonant(stem, n-3) {
		switch stem[n-1] {
		case 'w', 'x', 'y':
			return stem
		}
		return stem + "e"
	}
	return stem
}

func isConsonant(word string, i int) bool {
	switch word[i] {
	case 'a', 'e', 'i', 'o', 'u':
		return false
	case 'y':
		if i == 0 {
			return true
		}
		return !isConsonant(word, i-1)
	}
	return true
}

func hasVowel(word string) bool {
	for i := 0; i < len(word); i++ {
		if !isConsonant(word, i) {
			return true
		}
	}
	return false
}
