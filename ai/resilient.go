package ai

import (
	"context"

	"golang.org/x/time/rate"
)

// NewLimiter returns a token-bucket limiter allowing rps requests per second
// with the given burst, or nil when rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// ResilientModel wraps a LanguageModel with client-side throttling and
// bounded retries of rate-limited calls.
type ResilientModel struct {
	model   LanguageModel
	policy  RetryPolicy
	limiter *rate.Limiter
}

var _ LanguageModel = (*ResilientModel)(nil)

// NewResilientModel wraps model. A nil limiter disables throttling.
func NewResilientModel(model LanguageModel, policy RetryPolicy, limiter *rate.Limiter) *ResilientModel {
	return &ResilientModel{
		model:   model,
		policy:  policy,
		limiter: limiter,
	}
}

// Complete waits for the limiter, then calls the wrapped model, retrying rate limits.
func (m *ResilientModel) Complete(ctx context.Context, messages []Message) (string, error) {
	var reply string
	err := Retry(ctx, m.policy, func(ctx context.Context) error {
		if m.limiter != nil {
			if err := m.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		var err error
		reply, err = m.model.Complete(ctx, messages)
		return err
	})
	return reply, err
}

// ResilientEmbedder wraps an Embedder with the same throttling and retry rules.
type ResilientEmbedder struct {
	embedder Embedder
	policy   RetryPolicy
	limiter  *rate.Limiter
}

var _ Embedder = (*ResilientEmbedder)(nil)

// NewResilientEmbedder wraps embedder. A nil limiter disables throttling.
func NewResilientEmbedder(embedder Embedder, policy RetryPolicy, limiter *rate.Limiter) *ResilientEmbedder {
	return &ResilientEmbedder{
		embedder: embedder,
		policy:   policy,
		limiter:  limiter,
	}
}

// EmbedText embeds a single text, retrying rate limits.
func (e *ResilientEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := Retry(ctx, e.policy, func(ctx context.Context) error {
		if err := e.wait(ctx); err != nil {
			return err
		}
		var err error
		vector, err = e.embedder.EmbedText(ctx, text)
		return err
	})
	return vector, err
}

// EmbedTexts embeds a batch, retrying rate limits.
func (e *ResilientEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := Retry(ctx, e.policy, func(ctx context.Context) error {
		if err := e.wait(ctx); err != nil {
			return err
		}
		var err error
		vectors, err = e.embedder.EmbedTexts(ctx, texts)
		return err
	})
	return vectors, err
}

func (e *ResilientEmbedder) wait(ctx context.Context) error {
	if e.limiter == nil {
		return nil
	}
	return e.limiter.Wait(ctx)
}

// NoopEmbedder is an Embedder that never produces vectors.
// It keeps every chunk and query in keyword-only scoring.
type NoopEmbedder struct{}

var _ Embedder = NoopEmbedder{}

// EmbedText always reports ErrEmbeddingUnavailable.
func (NoopEmbedder) EmbedText(context.Context, string) ([]float32, error) {
	return nil, ErrEmbeddingUnavailable
}

// EmbedTexts always reports ErrEmbeddingUnavailable.
func (NoopEmbedder) EmbedTexts(context.Context, []string) ([][]float32, error) {
	return nil, ErrEmbeddingUnavailable
}
