// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"log/slog"

	"github.com/poiesic/dataroom/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It manages embedder and language model instances.
type Provider struct {
	config   *ai.Config
	embedder ai.Embedder
	model    ai.LanguageModel
	logger   *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use. Both services are wrapped
// with the configured rate limiter and retry policy.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	limiter := config.Limiter()
	policy := config.RetryPolicy()

	var embedder ai.Embedder = ai.NoopEmbedder{}
	if !config.DisableEmbeddings {
		// Create embedder (using internal constructor for concrete type)
		e, err := newEmbedder(config)
		if err != nil {
			return nil, err
		}
		embedder = ai.NewResilientEmbedder(e, policy, limiter)
	}

	model, err := newLanguageModel(config)
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:   config,
		embedder: embedder,
		model:    ai.NewResilientModel(model, policy, limiter),
		logger:   slog.Default().With("component", "openai-provider"),
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
// Currently a no-op as the underlying clients don't require explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}
