package search

import (
	"math"
	"strings"
	"unicode/utf8"
)

const (
	// SemanticWeight is the share of cosine similarity in a hybrid score.
	SemanticWeight = 0.7

	// KeywordWeight is the share of keyword overlap in a hybrid score.
	KeywordWeight = 0.3

	// MinFallbackTermLength is the length a query term must exceed to count in keyword-only mode.
	MinFallbackTermLength = 3
)

// ScoreType records which formula produced a score.
type ScoreType string

const (
	// ScoreTypeHybrid is a blend of cosine similarity and keyword overlap.
	ScoreTypeHybrid ScoreType = "hybrid"
	// ScoreTypeKeyword is the raw term-occurrence fallback.
	ScoreTypeKeyword ScoreType = "keyword"
)

// Score rates how relevant chunkText is to query.
//
// With both embeddings present the result is SemanticWeight*cosine plus
// KeywordWeight*KeywordOverlap. Otherwise it is TermOccurrences, which is not
// normalized. A zero score means the chunk is not relevant.
func Score(query string, queryEmbedding []float32, chunkText string, chunkEmbedding []float32) (float64, ScoreType) {
	if len(queryEmbedding) > 0 && len(chunkEmbedding) > 0 {
		semantic := CosineSimilarity(queryEmbedding, chunkEmbedding)
		keyword := KeywordOverlap(query, chunkText)
		return SemanticWeight*semantic + KeywordWeight*keyword, ScoreTypeHybrid
	}
	return float64(TermOccurrences(query, chunkText)), ScoreTypeKeyword
}

// CosineSimilarity returns the cosine of the angle between a and b, clipped to [-1, 1].
// Vectors of different length, empty vectors, and zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

// KeywordOverlap returns the fraction of distinct query terms that also appear in text.
func KeywordOverlap(query, text string) float64 {
	queryTerms := termSet(query)
	if len(queryTerms) == 0 {
		return 0
	}

	textTerms := termSet(text)
	common := 0
	for term := range queryTerms {
		if _, ok := textTerms[term]; ok {
			common++
		}
	}
	return float64(common) / float64(max(len(queryTerms), 1))
}

// TermOccurrences sums, over the distinct query terms longer than
// MinFallbackTermLength runes, the number of times each occurs as a
// substring of the lowercased text.
func TermOccurrences(query, text string) int {
	lowered := strings.ToLower(text)
	total := 0
	for term := range termSet(query) {
		if utf8.RuneCountInString(term) <= MinFallbackTermLength {
			continue
		}
		total += strings.Count(lowered, term)
	}
	return total
}
