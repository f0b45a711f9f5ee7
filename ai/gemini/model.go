package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/dataroom/ai"
	"google.golang.org/genai"
)

// LanguageModel implements ai.LanguageModel with Gemini generative models.
type LanguageModel struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	logger      *slog.Logger
}

// Complete sends messages to Gemini and returns the response text.
// System messages become the request's system instruction.
func (m *LanguageModel) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	contents, system := toContents(messages)
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.temperature),
	}
	if m.maxTokens > 0 {
		config.MaxOutputTokens = m.maxTokens
	}
	if system != "" {
		config.SystemInstruction = genai.Text(system)[0]
	}

	start := time.Now()
	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		m.logger.Warn("completion failed", "err", err, "elapsed", time.Since(start))
		return "", classifyError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ai.ErrProvider)
	}
	m.logger.Debug("completion finished", "elapsed", time.Since(start))
	return text, nil
}

// toContents converts chat messages to Gemini contents, collecting system
// messages separately.
func toContents(messages []ai.Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleSystem:
			system = append(system, msg.Content)
		case ai.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}
