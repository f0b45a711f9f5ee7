package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/poiesic/dataroom/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func TestNewProvider(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		provider, err := NewProvider(ai.NewConfig(ai.WithHost("http://localhost:11434")))
		require.NoError(t, err)
		defer provider.Close()

		assert.NotNil(t, provider.Embedder())
		assert.NotNil(t, provider.LanguageModel())
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := NewProvider(ai.NewConfig(ai.WithHost("")))
		assert.ErrorIs(t, err, ai.ErrProviderConfig)
	})

	t.Run("embeddings disabled", func(t *testing.T) {
		provider, err := NewProvider(ai.NewConfig(ai.WithoutEmbeddings()))
		require.NoError(t, err)
		_, err = provider.Embedder().EmbedText(context.Background(), "x")
		assert.ErrorIs(t, err, ai.ErrEmbeddingUnavailable)
	})
}

func TestChatMessageType(t *testing.T) {
	assert.Equal(t, llms.ChatMessageTypeSystem, chatMessageType(ai.RoleSystem))
	assert.Equal(t, llms.ChatMessageTypeHuman, chatMessageType(ai.RoleUser))
	assert.Equal(t, llms.ChatMessageTypeAI, chatMessageType(ai.RoleAssistant))

	content := toMessageContent([]ai.Message{
		{Role: ai.RoleSystem, Content: "be brief"},
		{Role: ai.RoleUser, Content: "hello"},
	})
	require.Len(t, content, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, content[0].Role)
	assert.Equal(t, llms.TextPart("hello"), content[1].Parts[0])
}

func TestLanguageModel_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "cmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   "test-model",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "Revenue was $5M."},
				"finish_reason": "stop",
			}},
		})
	}))
	defer server.Close()

	model, err := NewLanguageModel(ai.NewConfig(ai.WithHost(server.URL), ai.WithCompletionModel("test-model")))
	require.NoError(t, err)

	reply, err := model.Complete(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "Revenue?"}})
	require.NoError(t, err)
	assert.Equal(t, "Revenue was $5M.", reply)
}

func TestLanguageModel_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	model, err := NewLanguageModel(ai.NewConfig(ai.WithHost(server.URL)))
	require.NoError(t, err)

	_, err = model.Complete(context.Background(), []ai.Message{{Role: ai.RoleUser, Content: "hi"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.ErrAuth)
	assert.True(t, ai.IsFatal(err))
}
