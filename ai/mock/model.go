package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/dataroom/ai"
)

// MockLanguageModel is a test double for ai.LanguageModel.
// Without CompleteFunc it replays scripted responses in order and fails
// with ai.ErrProvider once they run out. Safe for concurrent use.
type MockLanguageModel struct {
	// CompleteFunc is called by Complete if set.
	CompleteFunc func(ctx context.Context, messages []ai.Message) (string, error)

	mu        sync.Mutex
	responses []string
	calls     [][]ai.Message
}

var _ ai.LanguageModel = (*MockLanguageModel)(nil)

// NewMockLanguageModel creates a mock that returns responses in order.
func NewMockLanguageModel(responses ...string) *MockLanguageModel {
	return &MockLanguageModel{responses: responses}
}

// WithCompleteFunc sets the Complete behavior and returns the mock for chaining.
func (m *MockLanguageModel) WithCompleteFunc(fn func(ctx context.Context, messages []ai.Message) (string, error)) *MockLanguageModel {
	m.CompleteFunc = fn
	return m
}

// Complete records the request and returns the next scripted response.
func (m *MockLanguageModel) Complete(ctx context.Context, messages []ai.Message) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]ai.Message(nil), messages...))
	fn := m.CompleteFunc
	if fn != nil {
		m.mu.Unlock()
		return fn(ctx, messages)
	}
	defer m.mu.Unlock()

	if len(m.responses) == 0 {
		return "", fmt.Errorf("%w: no scripted response left", ai.ErrProvider)
	}
	reply := m.responses[0]
	m.responses = m.responses[1:]
	return reply, nil
}

// CallCount returns the number of Complete calls.
func (m *MockLanguageModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of every request received, in order.
func (m *MockLanguageModel) Calls() [][]ai.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]ai.Message, len(m.calls))
	copy(out, m.calls)
	return out
}

// LastPrompt returns the content of the final message of the most recent call.
func (m *MockLanguageModel) LastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	last := m.calls[len(m.calls)-1]
	if len(last) == 0 {
		return ""
	}
	return last[len(last)-1].Content
}

// Reset clears recorded calls, scripted responses and injected behavior.
func (m *MockLanguageModel) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.responses = nil
	m.CompleteFunc = nil
}
