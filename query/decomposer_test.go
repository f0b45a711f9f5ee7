package query

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/ai/mock"
	"github.com/poiesic/dataroom/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const question = "What was ACME's revenue?"

func TestNewDecomposer(t *testing.T) {
	_, err := NewDecomposer(nil)
	assert.Equal(t, ErrLanguageModelRequired, err)

	_, err = NewDecomposer(mock.NewMockLanguageModel(), WithMaxSubQueries(0))
	assert.Error(t, err)
}

func TestDecomposer_Responses(t *testing.T) {
	fallback := []core.SubQuery{{Text: question, Ordinal: 1}}

	tests := []struct {
		name     string
		response string
		expected []core.SubQuery
	}{
		{
			name:     "json array",
			response: `["What is the revenue trend?", "What are the key risks?", "Who are the customers?"]`,
			expected: []core.SubQuery{
				{Text: "What is the revenue trend?", Ordinal: 1},
				{Text: "What are the key risks?", Ordinal: 2},
				{Text: "Who are the customers?", Ordinal: 3},
			},
		},
		{
			name:     "fenced json",
			response: "```json\n[\"Revenue?\", \"Debt?\"]\n```",
			expected: []core.SubQuery{{Text: "Revenue?", Ordinal: 1}, {Text: "Debt?", Ordinal: 2}},
		},
		{
			name:     "single line fence",
			response: "```json [\"Revenue?\"]```",
			expected: []core.SubQuery{{Text: "Revenue?", Ordinal: 1}},
		},
		{
			name:     "blank and non-string items dropped",
			response: `["", 42, "  Debt?  ", null]`,
			expected: []core.SubQuery{{Text: "Debt?", Ordinal: 1}},
		},
		{
			name:     "truncated to five",
			response: `["a", "b", "c", "d", "e", "f", "g"]`,
			expected: []core.SubQuery{
				{Text: "a", Ordinal: 1}, {Text: "b", Ordinal: 2}, {Text: "c", Ordinal: 3},
				{Text: "d", Ordinal: 4}, {Text: "e", Ordinal: 5},
			},
		},
		{name: "prose", response: "Sure! Here are some sub-questions: revenue, debt.", expected: fallback},
		{name: "object", response: `{"questions": ["a"]}`, expected: fallback},
		{name: "empty array", response: `[]`, expected: fallback},
		{name: "only blanks", response: `["", "   "]`, expected: fallback},
		{name: "empty response", response: "", expected: fallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := mock.NewMockLanguageModel(tt.response)
			decomposer, err := NewDecomposer(model)
			require.NoError(t, err)

			subQueries, err := decomposer.Decompose(context.Background(), question)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, subQueries)
			assert.Contains(t, model.LastPrompt(), question)
		})
	}
}

func TestDecomposer_MaxSubQueries(t *testing.T) {
	decomposer, err := NewDecomposer(mock.NewMockLanguageModel(`["a", "b", "c"]`), WithMaxSubQueries(2))
	require.NoError(t, err)

	subQueries, err := decomposer.Decompose(context.Background(), question)
	require.NoError(t, err)
	assert.Len(t, subQueries, 2)
}

func TestDecomposer_ProviderErrors(t *testing.T) {
	t.Run("non-fatal error falls back", func(t *testing.T) {
		model := mock.NewMockLanguageModel().WithCompleteFunc(func(ctx context.Context, _ []ai.Message) (string, error) {
			return "", fmt.Errorf("%w: upstream 500", ai.ErrProvider)
		})
		decomposer, err := NewDecomposer(model)
		require.NoError(t, err)

		subQueries, err := decomposer.Decompose(context.Background(), question)
		require.NoError(t, err)
		assert.Equal(t, []core.SubQuery{{Text: question, Ordinal: 1}}, subQueries)
	})

	t.Run("fatal error is returned", func(t *testing.T) {
		model := mock.NewMockLanguageModel().WithCompleteFunc(func(ctx context.Context, _ []ai.Message) (string, error) {
			return "", ai.ErrAuth
		})
		decomposer, err := NewDecomposer(model)
		require.NoError(t, err)

		_, err = decomposer.Decompose(context.Background(), question)
		assert.ErrorIs(t, err, ai.ErrAuth)
		assert.ErrorIs(t, err, ErrDecompositionFailed)
	})

	t.Run("cancellation is returned", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		model := mock.NewMockLanguageModel().WithCompleteFunc(func(ctx context.Context, _ []ai.Message) (string, error) {
			return "", ctx.Err()
		})
		decomposer, err := NewDecomposer(model)
		require.NoError(t, err)

		_, err = decomposer.Decompose(ctx, question)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
