package usecase

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"recipechat/internal/adapter/embedding"
	"recipechat/internal/adapter/store"
	"recipechat/internal/domain"
)

type generateCall struct {
	Prompt string
	Role   string
}

// fakeGenerator answers with respond and records every call.
type fakeGenerator struct {
	mu      sync.Mutex
	calls   []generateCall
	respond func(ctx context.Context, prompt, role string) (string, error)
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt, role string) (string, error) {
	g.mu.Lock()
	g.calls = append(g.calls, generateCall{Prompt: prompt, Role: role})
	g.mu.Unlock()
	return g.respond(ctx, prompt, role)
}

func (g *fakeGenerator) ModelName() string { return "fake" }

func (g *fakeGenerator) Calls() []generateCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]generateCall(nil), g.calls...)
}

func replyWith(reply string) *fakeGenerator {
	return &fakeGenerator{respond: func(context.Context, string, string) (string, error) { return reply, nil }}
}

func failWith(err error) *fakeGenerator {
	return &fakeGenerator{respond: func(context.Context, string, string) (string, error) { return "", err }}
}

// blockingGenerator waits for ctx to end.
func blockingGenerator() *fakeGenerator {
	return &fakeGenerator{respond: func(ctx context.Context, _, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
}

// routerGenerator plays both roles: it labels with label and otherwise
// echoes the recipe names it finds in the prompt.
func routerGenerator(label string) *fakeGenerator {
	return &fakeGenerator{respond: func(_ context.Context, prompt, role string) (string, error) {
		if strings.Contains(role, "Router") {
			return label, nil
		}
		if strings.Contains(prompt, "Retrieved recipes:") {
			return "Here are some ideas: " + strings.Join(recipeNames(prompt), ", "), nil
		}
		return "I can only help with recipes.", nil
	}}
}

func recipeNames(prompt string) []string {
	var names []string
	for _, line := range strings.Split(prompt, "\n") {
		if i := strings.Index(line, ". "); i > 0 && strings.Contains(line, "(id ") {
			names = append(names, strings.TrimSpace(line[i+2:strings.Index(line, " (id ")]))
		}
	}
	return names
}

type fakeRetriever struct {
	mu         sync.Mutex
	calls      int
	candidates []domain.Candidate
	err        error
}

func (r *fakeRetriever) Retrieve(ctx context.Context, query string, topK int, metric domain.Metric) ([]domain.Candidate, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return r.candidates, r.err
}

func (r *fakeRetriever) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// slowEmbedder blocks until ctx ends, like a backend that never answers.
type slowEmbedder struct{ dim int }

func (e slowEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingVector, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e slowEmbedder) EmbedMany(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (e slowEmbedder) Dimension() int    { return e.dim }
func (e slowEmbedder) ModelName() string { return "slow" }

// failingEmbedder fails any batch containing a text with marker.
type failingEmbedder struct {
	*embedding.HashEmbedder
	marker string
}

func (e failingEmbedder) EmbedMany(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	for _, t := range texts {
		if strings.Contains(t, e.marker) {
			return nil, &domain.EmbeddingError{Model: e.ModelName(), Err: context.DeadlineExceeded}
		}
	}
	return e.HashEmbedder.EmbedMany(ctx, texts)
}

// delayEmbedder holds any batch containing a text with marker for delay,
// so later batches finish first.
type delayEmbedder struct {
	*embedding.HashEmbedder
	marker string
	delay  time.Duration
}

func (e delayEmbedder) EmbedMany(ctx context.Context, texts []string) ([]domain.EmbeddingVector, error) {
	for _, t := range texts {
		if strings.Contains(t, e.marker) {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			break
		}
	}
	return e.HashEmbedder.EmbedMany(ctx, texts)
}

func openIndex(t *testing.T) *store.BoltVectorIndex {
	t.Helper()
	s, err := store.NewBoltStore(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	idx, err := store.NewBoltVectorIndex(s.DB(), store.IndexOptions{Dimension: domain.EmbeddingDimension})
	require.NoError(t, err)
	return idx
}

func sampleRecipes() []domain.Recipe {
	return []domain.Recipe{
		{ID: 38, Name: "Chocolate Cake", Description: "a rich chocolate dessert for birthdays",
			Quantities: []string{"2 cups", "1 cup"}, Ingredients: []string{"flour", "cocoa powder"},
			Instructions: []string{"mix the batter", "bake for forty minutes"}},
		{ID: 1, Name: "Chicken Soup", Description: "warm broth with vegetables",
			Ingredients: []string{"chicken", "carrots", "celery"}, Instructions: []string{"simmer"}},
		{ID: 2, Name: "Caesar Salad", Description: "crisp romaine with parmesan",
			Ingredients: []string{"romaine", "parmesan", "croutons"}, Instructions: []string{"toss"}},
		{ID: 3, Name: "Beef Tacos", Description: "spicy ground beef in tortillas",
			Ingredients: []string{"beef", "tortillas", "salsa"}, Instructions: []string{"fry", "assemble"}},
		{ID: 4, Name: "Lemon Tart", Description: "tangy citrus pastry",
			Ingredients: []string{"lemons", "butter", "eggs"}, Instructions: []string{"blind bake", "fill"}},
		{ID: 5, Name: "Mushroom Risotto", Description: "creamy arborio rice",
			Ingredients: []string{"arborio", "mushrooms", "stock"}, Instructions: []string{"stir slowly"}},
		{ID: 6, Name: "Grilled Salmon", Description: "fish fillet with herbs",
			Ingredients: []string{"salmon", "dill", "lemon"}, Instructions: []string{"grill"}},
		{ID: 7, Name: "Veggie Omelette", Description: "fluffy eggs with peppers",
			Ingredients: []string{"eggs", "peppers", "onion"}, Instructions: []string{"whisk", "fold"}},
		{ID: 8, Name: "Pork Dumplings", Description: "steamed parcels",
			Ingredients: []string{"pork", "ginger", "wrappers"}, Instructions: []string{"fill", "steam"}},
		{ID: 9, Name: "Tomato Pasta", Description: "quick weeknight noodles",
			Ingredients: []string{"spaghetti", "tomatoes", "basil"}, Instructions: []string{"boil", "toss"}},
		{ID: 10, Name: "Banana Bread", Description: "moist loaf with walnuts",
			Ingredients: []string{"bananas", "walnuts", "flour"}, Instructions: []string{"mash", "bake"}},
		{ID: 11, Name: "Lentil Curry", Description: "fragrant red lentils",
			Ingredients: []string{"lentils", "coconut milk", "curry paste"}, Instructions: []string{"simmer"}},
	}
}
