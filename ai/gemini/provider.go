package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/poiesic/dataroom/ai"
	"google.golang.org/genai"
)

// Provider implements ai.AIProvider using the Gemini API.
type Provider struct {
	client   *genai.Client
	embedder ai.Embedder
	model    ai.LanguageModel
	logger   *slog.Logger
}

// NewProvider creates a Gemini-backed provider.
// Returns ai.AIProvider interface to enforce abstraction.
func NewProvider(ctx context.Context, config *ai.Config) (ai.AIProvider, error) {
	return newProvider(ctx, config, genai.HTTPOptions{})
}

func newProvider(ctx context.Context, config *ai.Config, httpOptions genai.HTTPOptions) (*Provider, error) {
	if config.APIKey == "" {
		config.APIKey = apiKeyFromEnv()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Provider != ai.ProviderGemini {
		return nil, fmt.Errorf("%w: provider %q is not gemini", ai.ErrProviderConfig, config.Provider)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      config.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: httpOptions,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create genai client: %w", ai.ErrProviderConfig, err)
	}

	limiter := config.Limiter()
	policy := config.RetryPolicy()

	var embedder ai.Embedder = ai.NoopEmbedder{}
	if !config.DisableEmbeddings {
		embedder = ai.NewResilientEmbedder(&Embedder{
			client:  client,
			model:   config.EmbeddingModel,
			timeout: config.RequestTimeout,
			logger:  slog.Default().With("component", "gemini-embedder"),
		}, policy, limiter)
	}

	model := &LanguageModel{
		client:      client,
		model:       config.CompletionModel,
		temperature: float32(config.Temperature),
		maxTokens:   int32(config.MaxOutputTokens),
		timeout:     config.RequestTimeout,
		logger:      slog.Default().With("component", "gemini-model"),
	}

	return &Provider{
		client:   client,
		embedder: embedder,
		model:    ai.NewResilientModel(model, policy, limiter),
		logger:   slog.Default().With("component", "gemini-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// LanguageModel returns the chat completion service.
func (p *Provider) LanguageModel() ai.LanguageModel {
	return p.model
}

// Close releases resources held by the provider.
// The genai client holds no connections that need explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing Gemini provider")
	return nil
}

func apiKeyFromEnv() string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	return os.Getenv("GOOGLE_API_KEY")
}
