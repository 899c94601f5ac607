package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"recipechat/internal/domain"
)

func TestSynthesize_NoCandidates(t *testing.T) {
	gen := routerGenerator("off_topic")
	u := NewSynthesizeUseCase(gen, 0, time.Second, nil)

	reply, err := u.Synthesize(context.Background(), "What's the weather today?", nil)
	require.NoError(t, err)
	assert.NotEmpty(t, reply)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "Query: What's the weather today?")
	assert.Contains(t, calls[0].Prompt, "No recipes were retrieved")
	assert.NotContains(t, calls[0].Prompt, "Retrieved recipes:")
	assert.Contains(t, calls[0].Role, "Generation Agent")
}

func TestSynthesize_GroundedInCandidates(t *testing.T) {
	gen := routerGenerator("relevant_recipe")
	u := NewSynthesizeUseCase(gen, 0, time.Second, nil)

	candidates := []domain.Candidate{
		{RecipeID: 38, Name: "Chocolate Cake", Text: "Recipe: Chocolate Cake, Description: rich", Distance: 0.1},
		{RecipeID: 10, Name: "Banana Bread", Text: "Recipe: Banana Bread, Description: moist", Distance: 0.4},
	}
	reply, err := u.Synthesize(context.Background(), "chocolate dessert", candidates)
	require.NoError(t, err)

	assert.Contains(t, reply, "Chocolate Cake")
	assert.Contains(t, reply, "Banana Bread")

	prompt := gen.Calls()[0].Prompt
	assert.Contains(t, prompt, "1. Chocolate Cake (id 38)")
	assert.Contains(t, prompt, "2. Banana Bread (id 10)")
	assert.Contains(t, prompt, "Only recommend recipes from the list above")
}

func TestSynthesize_EmptyReplyIsError(t *testing.T) {
	u := NewSynthesizeUseCase(replyWith(" \n\t"), 0, time.Second, nil)

	reply, err := u.Synthesize(context.Background(), "soup", nil)
	assert.Empty(t, reply)
	var synErr *domain.SynthesisError
	require.True(t, errors.As(err, &synErr), "got %v", err)
	assert.ErrorIs(t, err, domain.ErrEmptyGeneration)
}

func TestSynthesize_BackendError(t *testing.T) {
	u := NewSynthesizeUseCase(blockingGenerator(), 0, 20*time.Millisecond, nil)

	_, err := u.Synthesize(context.Background(), "soup", nil)
	var synErr *domain.SynthesisError
	require.True(t, errors.As(err, &synErr))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSynthesize_PacksContext(t *testing.T) {
	gen := replyWith("ok")
	u := NewSynthesizeUseCase(gen, 10, time.Second, nil)

	candidates := []domain.Candidate{
		{RecipeID: 1, Name: "Soup", Text: "short", Distance: 0.1},
		{RecipeID: 2, Name: "Stew", Text: "a much longer description that will not fit in the budget", Distance: 0.2},
	}
	_, err := u.Synthesize(context.Background(), "soup", candidates)
	require.NoError(t, err)

	prompt := gen.Calls()[0].Prompt
	assert.Contains(t, prompt, "Soup (id 1)")
	assert.NotContains(t, prompt, "Stew (id 2)")
}
