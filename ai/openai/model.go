package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/dataroom/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// LanguageModel implements ai.LanguageModel using an OpenAI-compatible chat completion API.
type LanguageModel struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	timeout     time.Duration
	logger      *slog.Logger
}

func newLanguageModel(config *ai.Config) (*LanguageModel, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.Host),
		openai.WithToken(token(config)),
		openai.WithModel(config.CompletionModel),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrProviderConfig, err)
	}

	return &LanguageModel{
		client:      client,
		temperature: config.Temperature,
		maxTokens:   config.MaxOutputTokens,
		timeout:     config.RequestTimeout,
		logger:      slog.Default().With("component", "openai-model"),
	}, nil
}

// NewLanguageModel creates a chat completion client using the provided configuration.
//
// Returns ai.LanguageModel interface to enforce abstraction.
func NewLanguageModel(config *ai.Config) (ai.LanguageModel, error) {
	return newLanguageModel(config)
}

// Complete sends messages to the model and returns the first choice's content.
func (m *LanguageModel) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	opts := []llms.CallOption{llms.WithTemperature(m.temperature)}
	if m.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(m.maxTokens))
	}

	start := time.Now()
	response, err := m.client.GenerateContent(ctx, toMessageContent(messages), opts...)
	if err != nil {
		m.logger.Warn("completion failed", "err", err, "elapsed", time.Since(start))
		return "", ai.Classify(err)
	}
	if len(response.Choices) < 1 {
		return "", fmt.Errorf("%w: empty response", ai.ErrProvider)
	}

	m.logger.Debug("completion finished", "elapsed", time.Since(start))
	return response.Choices[0].Content, nil
}

func toMessageContent(messages []ai.Message) []llms.MessageContent {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		content = append(content, llms.MessageContent{
			Role: chatMessageType(msg.Role),
			Parts: []llms.ContentPart{
				llms.TextPart(msg.Content),
			},
		})
	}
	return content
}

func chatMessageType(role ai.Role) llms.ChatMessageType {
	switch role {
	case ai.RoleSystem:
		return llms.ChatMessageTypeSystem
	case ai.RoleAssistant:
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
