package index

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/ai/mock"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/search"
	"github.com/poiesic/dataroom/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunk(taskID, filename string, index int, text string, embedding ...float32) *core.Chunk {
	docID := "doc-" + filename
	return &core.Chunk{
		TaskID:    taskID,
		DocID:     docID,
		ChunkID:   core.ChunkIDFor(docID, index),
		Index:     index,
		Kind:      core.ChunkKindText,
		Text:      text,
		Embedding: embedding,
		Metadata:  map[string]string{core.MetadataFilename: filename},
	}
}

func newKeywordRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	reg, err := NewRegistry(ai.NoopEmbedder{}, opts...)
	require.NoError(t, err)
	return reg
}

// gatedSource signals started when a scan begins and yields its chunks only
// after release is closed.
type gatedSource struct {
	chunks  []*core.Chunk
	started chan struct{}
	release chan struct{}
}

func (s gatedSource) ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error {
	close(s.started)
	<-s.release
	return sliceSource{chunks: s.chunks}.ForEachChunk(ctx, fn)
}

type sliceSource struct {
	chunks []*core.Chunk
	err    error
}

func (s sliceSource) ForEachChunk(_ context.Context, fn func(*core.Chunk) error) error {
	for _, c := range s.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return s.err
}

func TestNewRegistry_RequiresEmbedder(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestRegistry_UnknownTask(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	hits, err := reg.Search(ctx, "missing", "revenue", 5)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)

	rag, err := reg.Context(ctx, "missing", "revenue", 5)
	require.NoError(t, err)
	assert.Equal(t, "", rag.Context)
	assert.NotNil(t, rag.Sources)
	assert.Empty(t, rag.Sources)

	assert.False(t, reg.HasTask("missing"))
	assert.Equal(t, 0, reg.Len("missing"))
}

func TestRegistry_AddValidation(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	err := reg.Add(ctx, "", chunk("", "a.txt", 0, "text"))
	assert.ErrorIs(t, err, core.ErrEmptyTaskID)

	err = reg.Add(ctx, "task-1", chunk("task-2", "a.txt", 0, "text"))
	assert.ErrorIs(t, err, ErrTaskMismatch)

	err = reg.Add(ctx, "task-1", chunk("task-1", "a.txt", 0, ""))
	assert.ErrorIs(t, err, core.ErrInvalidChunk)

	assert.Empty(t, reg.Tasks(), "rejected adds create nothing")
	require.NoError(t, reg.Add(ctx, "task-1"))
	assert.Empty(t, reg.Tasks(), "empty add creates nothing")
}

func TestRegistry_KeywordSearch(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "t",
		chunk("t", "a.txt", 0, "Nothing relevant here."),
		chunk("t", "a.txt", 1, "Revenue grew."),
		chunk("t", "b.txt", 0, "Revenue and more revenue."),
	))

	hits, err := reg.Search(ctx, "t", "revenue", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2, "zero scores are excluded")

	assert.Equal(t, "b.txt", hits[0].Chunk.Filename())
	assert.Equal(t, 2.0, hits[0].Score)
	assert.Equal(t, search.ScoreTypeKeyword, hits[0].ScoreType)
	assert.Equal(t, 1.0, hits[1].Score)
}

func TestRegistry_StableTiesAndTopK(t *testing.T) {
	reg := newKeywordRegistry(t, WithDefaultTopK(2))
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		require.NoError(t, reg.Add(ctx, "t", chunk("t", "a.txt", i, fmt.Sprintf("budget line %d", i))))
	}

	hits, err := reg.Search(ctx, "t", "budget", 0)
	require.NoError(t, err)
	require.Len(t, hits, 2, "default top-k applies")
	assert.Equal(t, 0, hits[0].Chunk.Index, "ties keep insertion order")
	assert.Equal(t, 1, hits[1].Chunk.Index)

	hits, err = reg.Search(ctx, "t", "budget", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4)
}

func TestRegistry_HybridSearch(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return []float32{1, 0}, nil
	})
	reg, err := NewRegistry(embedder)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "t",
		chunk("t", "a.txt", 0, "beta query", 0, 1),
		chunk("t", "a.txt", 1, "alpha", 1, 0),
		chunk("t", "a.txt", 2, "opposite", -1, 0),
	))

	hits, err := reg.Search(ctx, "t", "query", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2, "negative hybrid scores are excluded")

	assert.Equal(t, "alpha", hits[0].Chunk.Text)
	assert.InDelta(t, 0.7, hits[0].Score, 1e-9)
	assert.Equal(t, search.ScoreTypeHybrid, hits[0].ScoreType)
	assert.Equal(t, "beta query", hits[1].Chunk.Text)
	assert.InDelta(t, 0.3, hits[1].Score, 1e-9)
	assert.Equal(t, 1, embedder.CallCount(), "query embedded once per search")
}

func TestRegistry_EmbeddingFailureFallsBackToKeyword(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(context.Context, string) ([]float32, error) {
		return nil, fmt.Errorf("%w: model offline", ai.ErrProvider)
	})
	reg, err := NewRegistry(embedder)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "t", chunk("t", "a.txt", 0, "Revenue was $5M.", 1, 0)))

	hits, err := reg.Search(ctx, "t", "revenue", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, search.ScoreTypeKeyword, hits[0].ScoreType)
	assert.Equal(t, 1.0, hits[0].Score)
}

func TestRegistry_SkipsEmbeddingWithoutEmbeddedChunks(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	reg, err := NewRegistry(embedder)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "t", chunk("t", "a.txt", 0, "Revenue was $5M.")))
	_, err = reg.Search(ctx, "t", "revenue", 5)
	require.NoError(t, err)
	assert.Equal(t, 0, embedder.CallCount())
}

func TestRegistry_CancelledContext(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := reg.Search(ctx, "t", "revenue", 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistry_Context(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "t",
		chunk("t", "report.pdf", 0, "Revenue grew to $5M."),
		chunk("t", "notes.txt", 3, "Revenue guidance revenue."),
	))

	rag, err := reg.Context(ctx, "t", "revenue", 5)
	require.NoError(t, err)
	assert.Equal(t, "[Source 1] Revenue guidance revenue.\n\n[Source 2] Revenue grew to $5M.", rag.Context)
	require.Len(t, rag.Sources, 2)
	assert.Equal(t, core.Source{Filename: "notes.txt", ChunkIndex: 3, Score: 2, ScoreType: "keyword"}, rag.Sources[0])
	assert.Equal(t, "report.pdf", rag.Sources[1].Filename)
}

func TestRegistry_TaskIsolation(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "a", chunk("a", "a.txt", 0, "Revenue in task a.")))
	require.NoError(t, reg.Add(ctx, "b", chunk("b", "b.txt", 0, "Revenue in task b.")))

	hits, err := reg.Search(ctx, "a", "revenue", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Chunk.TaskID)
	assert.Equal(t, []string{"a", "b"}, reg.Tasks())
}

func TestRegistry_ResetAndRebuild(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	src := sliceSource{chunks: []*core.Chunk{
		chunk("a", "a.txt", 0, "first"),
		chunk("a", "a.txt", 1, "second"),
		chunk("b", "b.txt", 0, "third"),
		{TaskID: "b", DocID: "broken"}, // invalid, skipped
	}}

	n, err := reg.Rebuild(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, reg.Len("a"))

	n, err = reg.Rebuild(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, reg.Len("a"), "rebuild is idempotent")

	_, err = reg.Rebuild(ctx, sliceSource{err: errors.New("disk gone")})
	require.Error(t, err)
	assert.Equal(t, 2, reg.Len("a"), "failed rebuild keeps contents")

	_, err = reg.Rebuild(ctx, nil)
	assert.ErrorIs(t, err, ErrChunkSourceRequired)

	reg.Reset()
	assert.Empty(t, reg.Tasks())
}

func TestRegistry_RebuildFromBadger(t *testing.T) {
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	defer func() {
		repo.Close()
		backend.Close()
	}()
	ctx := context.Background()

	_, err = repo.AddChunks(ctx,
		chunk("t", "a.txt", 0, "Revenue grew."),
		chunk("t", "a.txt", 1, "Costs fell."),
	)
	require.NoError(t, err)

	reg := newKeywordRegistry(t)
	n, err := reg.Rebuild(ctx, repo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := reg.Search(ctx, "t", "costs", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, 1, hits[0].Chunk.Index)
}

func TestRegistry_ConcurrentAddAndSearch(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = reg.Add(ctx, "t", chunk("t", fmt.Sprintf("w%d.txt", w), i, "shared revenue text"))
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_, _ = reg.Search(ctx, "t", "revenue", 3)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, reg.Len("t"))
}

func TestRegistry_AddSkipsIndexedChunkIDs(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	require.NoError(t, reg.Add(ctx, "t", chunk("t", "a.txt", 0, "Revenue grew.")))
	require.NoError(t, reg.Add(ctx, "t", chunk("t", "a.txt", 0, "Revenue grew."), chunk("t", "a.txt", 1, "Costs fell.")))
	assert.Equal(t, 2, reg.Len("t"))
}

func TestRegistry_RemoveDocument(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	old := chunk("t", "a.txt", 0, "ACME revenue was 10 million.", 1, 0)
	old.DocID = "old"
	old.ChunkID = core.ChunkIDFor("old", 0)
	require.NoError(t, reg.Add(ctx, "t", old, chunk("t", "b.txt", 0, "Globex revenue was 3 million.")))

	before, err := reg.Search(ctx, "t", "revenue", 5)
	require.NoError(t, err)
	require.Len(t, before, 2)

	assert.Equal(t, 1, reg.RemoveDocument("t", "old"))
	assert.Zero(t, reg.RemoveDocument("t", "old"))
	assert.Zero(t, reg.RemoveDocument("missing", "old"))
	assert.Equal(t, 1, reg.Len("t"))

	hits, err := reg.Search(ctx, "t", "revenue", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b.txt", hits[0].Chunk.Filename())

	// The removed chunk ID can be indexed again.
	require.NoError(t, reg.Add(ctx, "t", old))
	assert.Equal(t, 2, reg.Len("t"))

	assert.Equal(t, 1, reg.RemoveDocument("t", "doc-b.txt"))
	assert.Equal(t, 1, reg.RemoveDocument("t", "old"))
	assert.False(t, reg.HasTask("t"))
	assert.Empty(t, reg.Tasks())
}

func TestRegistry_Documents(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	a0 := chunk("t", "a.txt", 0, "first")
	a1 := chunk("t", "a.txt", 1, "second")
	b0 := chunk("t", "b.txt", 0, "third")
	for _, c := range []*core.Chunk{a0, a1} {
		c.Metadata[core.MetadataPath] = "/data/a.txt"
	}
	b0.Metadata[core.MetadataPath] = "/data/b.txt"
	require.NoError(t, reg.Add(ctx, "t", a0, a1, b0))

	assert.Equal(t, []string{"doc-a.txt"}, reg.Documents("t", core.MetadataPath, "/data/a.txt"))
	assert.Empty(t, reg.Documents("t", core.MetadataPath, "/data/c.txt"))
	assert.Empty(t, reg.Documents("missing", core.MetadataPath, "/data/a.txt"))
}

func TestRegistry_AddDuringRebuild(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	src := gatedSource{
		chunks:  []*core.Chunk{chunk("t", "stored.txt", 0, "Stored revenue figures.")},
		started: make(chan struct{}),
		release: make(chan struct{}),
	}

	rebuilt := make(chan error, 1)
	go func() {
		_, err := reg.Rebuild(ctx, src)
		rebuilt <- err
	}()
	<-src.started

	added := make(chan error, 1)
	go func() {
		added <- reg.Add(ctx, "t", chunk("t", "fresh.txt", 0, "Fresh revenue figures."))
	}()
	assert.Never(t, func() bool { return len(added) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"add waits for the rebuild")

	close(src.release)
	require.NoError(t, <-rebuilt)
	require.NoError(t, <-added)

	assert.Equal(t, 2, reg.Len("t"))
	hits, err := reg.Search(ctx, "t", "fresh", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "fresh.txt", hits[0].Chunk.Filename())
}

func TestRegistry_RebuildAfterPersistedAddDoesNotDuplicate(t *testing.T) {
	reg := newKeywordRegistry(t)
	ctx := context.Background()

	c := chunk("t", "a.txt", 0, "Revenue grew.")
	_, err := reg.Rebuild(ctx, sliceSource{chunks: []*core.Chunk{c}})
	require.NoError(t, err)
	require.NoError(t, reg.Add(ctx, "t", c))
	assert.Equal(t, 1, reg.Len("t"))
}
