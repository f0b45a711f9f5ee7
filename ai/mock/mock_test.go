package mock

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder()
	a, err := m.EmbedText(context.Background(), "hello")
	require.NoError(t, err)
	b, err := m.EmbedText(context.Background(), "hello")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, EmbeddingDim)
	assert.Equal(t, 2, m.CallCount())

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-4, "vectors are unit length")
}

func TestMockEmbedder_Injection(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockEmbedder().WithEmbedTextsFunc(func(context.Context, []string) ([][]float32, error) {
		return nil, boom
	})
	_, err := m.EmbedTexts(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, boom)

	m.Reset()
	vecs, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, 1, m.CallCount())
}

func TestTermEmbedder_RelatedTextsAreSimilar(t *testing.T) {
	m := NewTermEmbedder()
	ctx := context.Background()
	q, _ := m.EmbedText(ctx, "quarterly revenue")
	related, _ := m.EmbedText(ctx, "Revenue grew this quarter; quarterly revenue was $5M.")
	unrelated, _ := m.EmbedText(ctx, "")

	assert.Greater(t, search.CosineSimilarity(q, related), 0.0)
	assert.Equal(t, 0.0, search.CosineSimilarity(q, unrelated))
}

func TestMockLanguageModel_Script(t *testing.T) {
	m := NewMockLanguageModel("one", "two")
	ctx := context.Background()

	r, err := m.Complete(ctx, []ai.Message{{Role: ai.RoleUser, Content: "first"}})
	require.NoError(t, err)
	assert.Equal(t, "one", r)
	r, err = m.Complete(ctx, []ai.Message{{Role: ai.RoleUser, Content: "second"}})
	require.NoError(t, err)
	assert.Equal(t, "two", r)

	_, err = m.Complete(ctx, nil)
	assert.ErrorIs(t, err, ai.ErrProvider)

	assert.Equal(t, 3, m.CallCount())
	assert.Equal(t, "second", m.Calls()[1][0].Content)
	assert.Equal(t, "", m.LastPrompt())
}

func TestMockLanguageModel_Concurrent(t *testing.T) {
	m := NewMockLanguageModel().WithCompleteFunc(func(_ context.Context, msgs []ai.Message) (string, error) {
		return msgs[0].Content, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Complete(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "x"}})
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, m.CallCount())
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	mp := p.(*MockProvider)

	assert.Same(t, mp.GetMockEmbedder(), p.Embedder())
	assert.Same(t, mp.GetMockLanguageModel(), p.LanguageModel())
	require.NoError(t, p.Close())
	assert.True(t, mp.Closed())
}
