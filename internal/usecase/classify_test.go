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

func TestParseLabel(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.QueryClassification
	}{
		{"relevant_recipe", domain.RelevantRecipe},
		{"  Off_Topic\n", domain.OffTopic},
		{"'recommendation'", domain.Recommendation},
		{`"relevant_recipe".`, domain.RelevantRecipe},
		{"**recommendation**", domain.Recommendation},
		{"relevant recipe", "relevant recipe"},
		{"", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLabel(tt.raw), "raw %q", tt.raw)
	}
}

func TestClassify_ValidLabels(t *testing.T) {
	for _, label := range domain.Classifications {
		gen := replyWith(" '" + string(label) + "' ")
		u := NewClassifyUseCase(gen, time.Second)

		got, err := u.Classify(context.Background(), "chocolate dessert")
		require.NoError(t, err)
		assert.Equal(t, label, got)

		calls := gen.Calls()
		require.Len(t, calls, 1)
		assert.Contains(t, calls[0].Prompt, "Query: chocolate dessert")
		assert.Contains(t, calls[0].Role, "Router Agent")
	}
}

func TestClassify_InvalidLabelFallsBackToOffTopic(t *testing.T) {
	var events []domain.ClassificationFallback
	u := NewClassifyUseCase(replyWith("I think this is about pizza"), time.Second,
		WithFallbackObserver(func(f domain.ClassificationFallback) { events = append(events, f) }))

	got, err := u.Classify(context.Background(), "pizza?")
	require.NoError(t, err)
	assert.Equal(t, domain.OffTopic, got)

	require.Len(t, events, 1)
	assert.Equal(t, "pizza?", events[0].Query)
	assert.Equal(t, "I think this is about pizza", events[0].RawLabel)
	assert.Equal(t, domain.OffTopic, events[0].Coerced)
}

func TestClassify_BackendError(t *testing.T) {
	backendErr := errors.New("503 service unavailable")
	u := NewClassifyUseCase(failWith(backendErr), time.Second)

	_, err := u.Classify(context.Background(), "soup")
	var clsErr *domain.ClassificationError
	require.True(t, errors.As(err, &clsErr), "got %v", err)
	assert.ErrorIs(t, err, backendErr)
}

func TestClassify_Timeout(t *testing.T) {
	u := NewClassifyUseCase(blockingGenerator(), 20*time.Millisecond)

	start := time.Now()
	_, err := u.Classify(context.Background(), "soup")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
