package query

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/ai/mock"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/index"
	"github.com/stretchr/testify/require"
)

func chunk(taskID, filename string, index int, text string) *core.Chunk {
	docID := "doc-" + filename
	return &core.Chunk{
		TaskID:   taskID,
		DocID:    docID,
		ChunkID:  core.ChunkIDFor(docID, index),
		Index:    index,
		Kind:     core.ChunkKindText,
		Text:     text,
		Metadata: map[string]string{core.MetadataFilename: filename},
	}
}

func newRegistry(t *testing.T, chunks ...*core.Chunk) *index.Registry {
	t.Helper()
	registry, err := index.NewRegistry(ai.NoopEmbedder{})
	require.NoError(t, err)
	for _, c := range chunks {
		require.NoError(t, registry.Add(context.Background(), c.TaskID, c))
	}
	return registry
}

func isDecomposition(messages []ai.Message) bool {
	return len(messages) > 0 && strings.Contains(messages[len(messages)-1].Content, "Sub-questions:")
}

// stagedModel answers decomposition prompts with decomposition and every
// other prompt with answer or answerErr.
func stagedModel(decomposition string, answer string, answerErr error) *mock.MockLanguageModel {
	return mock.NewMockLanguageModel().WithCompleteFunc(func(ctx context.Context, messages []ai.Message) (string, error) {
		if isDecomposition(messages) {
			return decomposition, nil
		}
		if answerErr != nil {
			return "", answerErr
		}
		return answer, nil
	})
}

type recordingMonitor struct {
	mu        sync.Mutex
	events    []string
	retrieved map[int]int
	failed    []error
	finished  *core.Answer
	finishErr error
}

func newRecordingMonitor() *recordingMonitor {
	return &recordingMonitor{retrieved: make(map[int]int)}
}

func (m *recordingMonitor) record(event string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
}

func (m *recordingMonitor) Start(_, _ string) { m.record("start") }

func (m *recordingMonitor) AfterDecomposition(_ []core.SubQuery, _ time.Duration) {
	m.record("decomposed")
}

func (m *recordingMonitor) SubQueryRetrieved(subQuery core.SubQuery, hits []index.Hit, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retrieved[subQuery.Ordinal] = len(hits)
}

func (m *recordingMonitor) SubQueryFailed(_ core.SubQuery, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, err)
}

func (m *recordingMonitor) AfterRetrieval(_ []core.RetrievalResult) { m.record("retrieved") }

func (m *recordingMonitor) AfterSynthesis(_ *core.Answer, _ time.Duration, _ error) {
	m.record("synthesized")
}

func (m *recordingMonitor) Finish(answer *core.Answer, _ time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, "finish")
	m.finished = answer
	m.finishErr = err
}
