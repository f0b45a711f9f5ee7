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

package ai

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ProviderType selects the backend that serves embeddings and completions.
type ProviderType string

const (
	// ProviderOpenAI speaks the OpenAI-compatible HTTP API (OpenAI, Ollama, vLLM, LocalAI).
	ProviderOpenAI ProviderType = "openai"
	// ProviderGemini speaks the Google Gemini API.
	ProviderGemini ProviderType = "gemini"
)

const (
	// DefaultHost is a local OpenAI-compatible server.
	DefaultHost = "http://localhost:11434/v1"
	// DefaultEmbeddingModel is used with ProviderOpenAI when no model is set.
	DefaultEmbeddingModel = "embeddinggemma"
	// DefaultCompletionModel is used with ProviderOpenAI when no model is set.
	DefaultCompletionModel = "qwen2.5:3b"
	// DefaultGeminiEmbeddingModel replaces DefaultEmbeddingModel for ProviderGemini.
	DefaultGeminiEmbeddingModel = "text-embedding-004"
	// DefaultGeminiCompletionModel replaces DefaultCompletionModel for ProviderGemini.
	DefaultGeminiCompletionModel = "gemini-2.0-flash"
)

// Config holds configuration for AI service providers.
type Config struct {
	// Provider selects the backend. Default: ProviderOpenAI
	Provider ProviderType

	// Host is the base URL of an OpenAI-compatible API. Ignored by ProviderGemini.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	Host string

	// APIKey authenticates with the provider. Required for ProviderGemini.
	APIKey string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// CompletionModel is the model identifier used for decomposition and synthesis.
	// Example: "qwen2.5:3b", "gpt-4o-mini"
	CompletionModel string

	// Temperature is the sampling temperature for completions. Default: 0.7
	Temperature float64

	// MaxOutputTokens bounds each completion. Default: 2048
	MaxOutputTokens int

	// RequestTimeout bounds a single provider call. Default: 60s
	RequestTimeout time.Duration

	// MaxRetries is the total number of attempts for a rate-limited call. Default: 3
	MaxRetries int

	// RetryDelay is the initial backoff between attempts. Default: 1s
	RetryDelay time.Duration

	// RequestsPerSecond throttles provider calls client-side. Zero disables throttling.
	RequestsPerSecond float64

	// Burst is the limiter burst size. Default: 1
	Burst int

	// DisableEmbeddings forces keyword-only scoring everywhere.
	DisableEmbeddings bool
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithProvider sets the provider backend.
func WithProvider(provider ProviderType) ConfigOption {
	return func(c *Config) {
		c.Provider = provider
	}
}

// WithHost sets the OpenAI-compatible host URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.Host = host
	}
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithCompletionModel sets the completion model identifier.
func WithCompletionModel(model string) ConfigOption {
	return func(c *Config) {
		c.CompletionModel = model
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.Temperature = t
	}
}

// WithMaxOutputTokens sets the completion token limit.
func WithMaxOutputTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxOutputTokens = n
	}
}

// WithRequestTimeout sets the per-call timeout.
func WithRequestTimeout(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RequestTimeout = d
	}
}

// WithMaxRetries sets the total number of attempts for rate-limited calls.
func WithMaxRetries(n int) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithRetryDelay sets the initial retry backoff.
func WithRetryDelay(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.RetryDelay = d
	}
}

// WithRateLimit throttles provider calls to rps requests per second.
func WithRateLimit(rps float64, burst int) ConfigOption {
	return func(c *Config) {
		c.RequestsPerSecond = rps
		c.Burst = burst
	}
}

// WithoutEmbeddings disables the embedding service.
func WithoutEmbeddings() ConfigOption {
	return func(c *Config) {
		c.DisableEmbeddings = true
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
func DefaultConfig() *Config {
	return &Config{
		Provider:        ProviderOpenAI,
		Host:            DefaultHost,
		EmbeddingModel:  DefaultEmbeddingModel,
		CompletionModel: DefaultCompletionModel,
		Temperature:     0.7,
		MaxOutputTokens: 2048,
		RequestTimeout:  60 * time.Second,
		MaxRetries:      3,
		RetryDelay:      1 * time.Second,
		Burst:           1,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithEmbeddingModel("text-embedding-3-small"),
//	)
//
// Example with Gemini:
//
//	cfg := NewConfig(
//	    WithProvider(ProviderGemini),
//	    WithAPIKey(os.Getenv("GEMINI_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// For ProviderOpenAI it adds the /v1 suffix to the host if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc). For ProviderGemini it
// swaps the local model defaults for Gemini ones.
func (c *Config) Normalize() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}
	c.Provider = ProviderType(strings.ToLower(string(c.Provider)))

	switch c.Provider {
	case ProviderOpenAI:
		if c.Host != "" && !strings.HasSuffix(c.Host, "/v1") {
			// Remove trailing slash if present before adding /v1
			c.Host = strings.TrimSuffix(c.Host, "/")
			c.Host = c.Host + "/v1"
		}
	case ProviderGemini:
		if c.EmbeddingModel == DefaultEmbeddingModel {
			c.EmbeddingModel = DefaultGeminiEmbeddingModel
		}
		if c.CompletionModel == DefaultCompletionModel {
			c.CompletionModel = DefaultGeminiCompletionModel
		}
	}
	if c.RequestsPerSecond > 0 && c.Burst < 1 {
		c.Burst = 1
	}
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
// Every failure wraps ErrProviderConfig.
func (c *Config) Validate() error {
	c.Normalize()

	switch c.Provider {
	case ProviderOpenAI:
		if c.Host == "" {
			return fmt.Errorf("%w: Host is required", ErrProviderConfig)
		}
	case ProviderGemini:
		if c.APIKey == "" {
			return fmt.Errorf("%w: APIKey is required for provider %q", ErrProviderConfig, c.Provider)
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrProviderConfig, c.Provider)
	}
	if !c.DisableEmbeddings && c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EmbeddingModel is required", ErrProviderConfig)
	}
	if c.CompletionModel == "" {
		return fmt.Errorf("%w: CompletionModel is required", ErrProviderConfig)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: Temperature must be between 0 and 2", ErrProviderConfig)
	}
	if c.MaxOutputTokens < 0 {
		return fmt.Errorf("%w: MaxOutputTokens must not be negative", ErrProviderConfig)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: RequestTimeout must be positive", ErrProviderConfig)
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("%w: MaxRetries must be at least 1", ErrProviderConfig)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("%w: RetryDelay must not be negative", ErrProviderConfig)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: RequestsPerSecond must not be negative", ErrProviderConfig)
	}
	return nil
}

// RetryPolicy returns the retry policy described by the configuration.
func (c *Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: c.MaxRetries,
		BaseDelay:   c.RetryDelay,
		MaxDelay:    c.RequestTimeout,
		Retryable:   IsRetryable,
	}
}

// Limiter returns the client-side rate limiter, or nil when throttling is off.
func (c *Config) Limiter() *rate.Limiter {
	return NewLimiter(c.RequestsPerSecond, c.Burst)
}
