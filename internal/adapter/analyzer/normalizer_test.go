package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizer_Normalize(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lower-cases and drops stop words", "A Chocolate Dessert for the party", "chocolate dessert party"},
		{"collapses whitespace and punctuation", "  spicy,   chicken!! curry ", "spicy chicken curry"},
		{"contractions split into stop words", "What's a recipe I can't burn?", "recipe burn"},
		{"empty input", "", ""},
		{"only stop words", "what is the and of", ""},
		{"keeps digits", "cook for 20 minutes", "cook 20 minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, n.Normalize(tt.input))
		})
	}
}

func TestNormalizer_Deterministic(t *testing.T) {
	n := NewNormalizer()
	in := "Recipes that make from chickens"
	assert.Equal(t, n.Normalize(in), n.Normalize(in))
	assert.Equal(t, "recipes make chickens", n.Normalize(in))
}

func TestNormalizer_IsStopword(t *testing.T) {
	n := NewNormalizer()
	assert.True(t, n.IsStopword("the"))
	assert.True(t, n.IsStopword("wouldn"))
	assert.False(t, n.IsStopword("garlic"))
}
