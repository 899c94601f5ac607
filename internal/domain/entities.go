package domain

import (
	"fmt"
	"strings"
	"time"
)

// EmbeddingDimension is the output size of the default sentence embedding
// model (all-MiniLM-L6-v2) the corpus was built with.
const EmbeddingDimension = 384

// Recipe is the subset of a corpus record the pipeline needs to build a
// searchable document.
type Recipe struct {
	ID           int64     `json:"id" yaml:"id"`
	Name         string    `json:"name" yaml:"name"`
	Description  string    `json:"description" yaml:"description"`
	Quantities   []string  `json:"quantities,omitempty" yaml:"quantities,omitempty"`
	Ingredients  []string  `json:"ingredients" yaml:"ingredients"`
	Instructions []string  `json:"instructions" yaml:"instructions"`
	Published    time.Time `json:"published,omitempty" yaml:"published,omitempty"`
}

// RecipeDocument is the embeddable form of a recipe.
type RecipeDocument struct {
	RecipeID  int64
	Name      string
	Text      string
	CreatedAt time.Time
}

// Document derives the embeddable text of a recipe. The text is headed by
// the recipe name; the id stays out of it and is carried as RecipeID.
// Ingredients are paired with their quantities positionally; a missing
// quantity leaves the bare ingredient.
func (r Recipe) Document() RecipeDocument {
	ingredients := make([]string, 0, len(r.Ingredients))
	for i, ing := range r.Ingredients {
		qty := ""
		if i < len(r.Quantities) {
			qty = strings.TrimSpace(r.Quantities[i])
		}
		if qty == "" {
			ingredients = append(ingredients, ing)
			continue
		}
		ingredients = append(ingredients, qty+" "+ing)
	}

	text := fmt.Sprintf("Recipe: %s, Description: %s, Ingredients: %s, Instructions: %s",
		r.Name,
		r.Description,
		strings.Join(ingredients, ", "),
		strings.Join(r.Instructions, ", "),
	)

	return RecipeDocument{
		RecipeID:  r.ID,
		Name:      r.Name,
		Text:      text,
		CreatedAt: r.Published,
	}
}

// EmbeddingVector is a dense vector owned by exactly one IndexEntry.
type EmbeddingVector []float32

// EntryMetadata is stored next to each vector and returned with candidates.
type EntryMetadata struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Text      string    `json:"text"`
}

// IndexEntry is one recipe in the vector index, keyed by RecipeID.
type IndexEntry struct {
	RecipeID int64
	Vector   EmbeddingVector
	Metadata EntryMetadata
}

// Candidate is a transient search hit.
type Candidate struct {
	RecipeID  int64     `json:"recipe_id"`
	Name      string    `json:"name"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Distance  float64   `json:"distance"`
}

// ConversationTurn is one exchange of a session transcript. Failed marks
// turns whose reply is the fallback message rather than a generated answer.
type ConversationTurn struct {
	UserQuery string `json:"user"`
	BotReply  string `json:"bot"`
	Failed    bool   `json:"failed,omitempty"`
}

// QueryClassification is the closed set of intents a query can have.
type QueryClassification string

const (
	RelevantRecipe QueryClassification = "relevant_recipe"
	OffTopic       QueryClassification = "off_topic"
	Recommendation QueryClassification = "recommendation"
)

// Classifications lists every valid label.
var Classifications = []QueryClassification{RelevantRecipe, OffTopic, Recommendation}

// Valid reports whether c is one of the known labels.
func (c QueryClassification) Valid() bool {
	switch c {
	case RelevantRecipe, OffTopic, Recommendation:
		return true
	}
	return false
}

// Metric is the distance function an index is built and queried with.
type Metric string

const (
	Cosine    Metric = "cosine"
	Euclidean Metric = "euclidean"
)

// ParseMetric accepts the metric names case-insensitively, including the
// upper-case spellings common in vector database configs.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "":
		return Cosine, nil
	case "euclidean", "l2":
		return Euclidean, nil
	}
	return "", &ConfigurationError{Field: "metric", Reason: fmt.Sprintf("unknown metric %q", s)}
}
