package search

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{name: "empty", text: "", want: []string{}},
		{name: "lowercases", text: "ACME Corp", want: []string{"acme", "corp"}},
		{name: "trims punctuation", text: "What was ACME's revenue?", want: []string{"what", "was", "acme's", "revenue"}},
		{name: "drops pure punctuation", text: "a -- b", want: []string{"a", "b"}},
		{name: "keeps duplicates", text: "debt debt", want: []string{"debt", "debt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Terms(tt.text))
		})
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 2, 3}, b: []float32{1, 2, 3}, want: 1},
		{name: "scaled", a: []float32{1, 0}, b: []float32{5, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "length mismatch", a: []float32{1, 0}, b: []float32{1, 0, 0}, want: 0},
		{name: "empty", a: nil, b: nil, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestKeywordOverlap(t *testing.T) {
	assert.InDelta(t, 0.5, KeywordOverlap("revenue growth", "Revenue was flat."), 1e-9)
	assert.InDelta(t, 1.0, KeywordOverlap("revenue revenue", "revenue"), 1e-9, "query terms are a set")
	assert.Equal(t, 0.0, KeywordOverlap("", "anything"))
	assert.Equal(t, 0.0, KeywordOverlap("margin", "revenue"))
}

func TestTermOccurrences(t *testing.T) {
	tests := []struct {
		name  string
		query string
		text  string
		want  int
	}{
		{name: "short terms ignored", query: "was the", text: "was the was the", want: 0},
		{name: "substring counts", query: "revenue", text: "Revenue and revenues", want: 2},
		{name: "sums terms", query: "revenue debt stable", text: "Revenue grew. Debt remained stable.", want: 3},
		{name: "duplicate query terms counted once", query: "debt debt", text: "debt", want: 1},
		{name: "punctuation trimmed from query", query: "revenue?", text: "revenue", want: 1},
		{name: "four rune term counts", query: "acme", text: "ACME Corp", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TermOccurrences(tt.query, tt.text))
		})
	}
}

func TestScore(t *testing.T) {
	t.Run("hybrid when both embeddings present", func(t *testing.T) {
		score, kind := Score("revenue growth", []float32{1, 0}, "revenue was flat", []float32{1, 0})
		assert.Equal(t, ScoreTypeHybrid, kind)
		assert.InDelta(t, 0.7*1+0.3*0.5, score, 1e-9)
	})

	t.Run("hybrid can be negative for opposite vectors", func(t *testing.T) {
		score, kind := Score("margin", []float32{1, 0}, "revenue", []float32{-1, 0})
		assert.Equal(t, ScoreTypeHybrid, kind)
		assert.InDelta(t, -0.7, score, 1e-9)
	})

	t.Run("keyword fallback when query embedding missing", func(t *testing.T) {
		score, kind := Score("revenue", nil, "revenue revenue", []float32{1})
		assert.Equal(t, ScoreTypeKeyword, kind)
		assert.Equal(t, 2.0, score)
	})

	t.Run("keyword fallback when chunk embedding missing", func(t *testing.T) {
		score, kind := Score("revenue", []float32{1}, "no match here", nil)
		assert.Equal(t, ScoreTypeKeyword, kind)
		assert.Equal(t, 0.0, score)
	})
}

func TestScore_KeywordRankingMonotonic(t *testing.T) {
	query := "revenue margin guidance"
	texts := []string{
		"nothing relevant",
		"revenue",
		"revenue margin",
		"revenue margin guidance",
		"revenue revenue margin margin guidance guidance",
	}

	type scored struct {
		count int
		score float64
	}
	results := make([]scored, len(texts))
	for i, text := range texts {
		score, kind := Score(query, nil, text, nil)
		assert.Equal(t, ScoreTypeKeyword, kind)
		results[i] = scored{count: TermOccurrences(query, text), score: score}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].count, results[i].count,
			"ranking must be non-increasing in shared-term count")
	}
}
