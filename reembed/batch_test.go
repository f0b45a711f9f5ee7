package reembed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/ai/mock"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchProcessor_Process(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()
	added := seedChunks(t, repo, "task", 2, false)

	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(repo, embedder, 3, time.Millisecond)
	require.NoError(t, processor.Process(ctx, added))

	for _, chunk := range added {
		stored, err := repo.GetChunk(ctx, chunk.Id)
		require.NoError(t, err)
		assert.Len(t, stored.Embedding, mock.EmbeddingDim)
		assert.Equal(t, chunk.Text, stored.Text)
	}
	assert.Equal(t, 1, embedder.CallCount())
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(repo, embedder, 3, time.Millisecond)
	require.NoError(t, processor.Process(context.Background(), nil))
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_RetriesTransientErrors(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	added := seedChunks(t, repo, "task", 2, false)

	var attempts atomic.Int32
	embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		if attempts.Add(1) < 3 {
			return nil, &ai.RateLimitError{Err: errors.New("429")}
		}
		vectors := make([][]float32, len(texts))
		for i := range texts {
			vectors[i] = []float32{1, 2, 3}
		}
		return vectors, nil
	})

	processor := NewBatchProcessor(repo, embedder, 3, time.Millisecond)
	require.NoError(t, processor.Process(context.Background(), added))
	assert.Equal(t, int32(3), attempts.Load())
}

func TestBatchProcessor_Failures(t *testing.T) {
	tests := []struct {
		name     string
		embed    func(ctx context.Context, texts []string) ([][]float32, error)
		attempts int32
		target   error
	}{
		{
			name:     "exhausts retries",
			embed:    func(context.Context, []string) ([][]float32, error) { return nil, ai.ErrTimeout },
			attempts: 3,
			target:   ai.ErrTimeout,
		},
		{
			name:     "fatal error is not retried",
			embed:    func(context.Context, []string) ([][]float32, error) { return nil, ai.ErrAuth },
			attempts: 1,
			target:   ai.ErrAuth,
		},
		{
			name:     "count mismatch",
			embed:    func(context.Context, []string) ([][]float32, error) { return [][]float32{{1}}, nil },
			attempts: 1,
			target:   ErrEmbeddingMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, cleanup := setupTestDB(t)
			defer cleanup()
			added := seedChunks(t, repo, "task", 2, false)

			var attempts atomic.Int32
			embedder := mock.NewMockEmbedder().WithEmbedTextsFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
				attempts.Add(1)
				return tt.embed(ctx, texts)
			})

			processor := NewBatchProcessor(repo, embedder, 3, time.Millisecond)
			err := processor.Process(context.Background(), added)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.attempts, attempts.Load())

			stored, err := repo.GetChunk(context.Background(), added[0].Id)
			require.NoError(t, err)
			assert.Empty(t, stored.Embedding)
		})
	}
}

func TestBatchProcessor_MissingChunk(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	processor := NewBatchProcessor(repo, mock.NewMockEmbedder(), 1, time.Millisecond)
	err := processor.Process(context.Background(), []*core.Chunk{{
		TaskID: "task", DocID: "ghost", ChunkID: "ghost#0", Kind: core.ChunkKindText, Text: "ghost",
	}})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
