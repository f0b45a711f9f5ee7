// Package gemini provides AI service implementations backed by the Google Gemini API.
//
// It implements ai.AIProvider with the google.golang.org/genai SDK. The API key is
// taken from ai.Config, falling back to the GEMINI_API_KEY and GOOGLE_API_KEY
// environment variables.
//
//	config := ai.NewConfig(ai.WithProvider(ai.ProviderGemini))
//	provider, err := gemini.NewProvider(ctx, config)
package gemini
