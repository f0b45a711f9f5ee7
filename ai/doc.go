// Package ai provides interfaces and implementations for the AI services a data room
// depends on: text embedding and chat completion.
//
// # Interfaces
//
// Embedder turns text into vectors for hybrid retrieval. LanguageModel completes chat
// conversations and is used for query decomposition and answer synthesis. AIProvider
// bundles both behind one lifecycle.
//
// # Errors
//
// Provider failures are normalized into a small set of kinds so callers can decide
// how to react without knowing which backend produced them:
//
//   - ErrAuth and ErrProviderConfig are fatal and never retried
//   - ErrRateLimited is retried with backoff, honoring RetryAfter
//   - ErrTimeout and ErrProvider degrade the current step only
//   - ErrEmbeddingUnavailable degrades scoring to keyword-only
//
// Classify performs this mapping for clients that only report status through
// error messages.
//
// # Implementation Pattern
//
// Production constructors return interfaces:
//
//	provider, err := openai.NewProvider(config)  // returns ai.AIProvider
//	provider, err := gemini.NewProvider(ctx, config)
//
// Test utility constructors return concrete types so tests can inject behavior
// and make assertions:
//
//	model := mock.NewMockLanguageModel("first reply", "second reply")
//	count := model.CallCount()
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	reply, err := provider.LanguageModel().Complete(ctx, []ai.Message{
//	    {Role: ai.RoleUser, Content: "Summarize the lease terms."},
//	})
//
// Both provider implementations wrap their services in ResilientModel and
// ResilientEmbedder, which throttle calls with a token bucket and retry rate limits.
package ai
