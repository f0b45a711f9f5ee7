package reembed

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/dataroom/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkIterator_ForEach(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedChunks(t, repo, "a", 5, false)
	seedChunks(t, repo, "b", 3, false)

	tests := []struct {
		name      string
		batchSize int
		batches   []int
	}{
		{"uneven batches", 3, []int{3, 3, 2}},
		{"exact batches", 4, []int{4, 4}},
		{"single batch", 100, []int{8}},
		{"default batch size", 0, []int{8}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var sizes []int
			var tasks []string
			err := NewChunkIterator(repo, tt.batchSize).ForEach(context.Background(), func(chunks []*core.Chunk) error {
				sizes = append(sizes, len(chunks))
				for _, c := range chunks {
					tasks = append(tasks, c.TaskID)
				}
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, tt.batches, sizes)
			assert.Equal(t, []string{"a", "a", "a", "a", "a", "b", "b", "b"}, tasks)
		})
	}
}

func TestChunkIterator_EmptyRepository(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()

	called := false
	err := NewChunkIterator(repo, 10).ForEach(context.Background(), func([]*core.Chunk) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedChunks(t, repo, "a", 10, false)

	boom := errors.New("boom")
	calls := 0
	err := NewChunkIterator(repo, 2).ForEach(context.Background(), func([]*core.Chunk) error {
		calls++
		if calls == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestChunkIterator_ContextCancellation(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	seedChunks(t, repo, "a", 10, false)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewChunkIterator(repo, 2).ForEach(ctx, func([]*core.Chunk) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
