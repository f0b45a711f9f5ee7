package reembed

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/storage"
	"github.com/poiesic/dataroom/storage/badger"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (storage.ChunkRepository, func()) {
	t.Helper()
	repo, backend, err := badger.NewMemoryRepository()
	require.NoError(t, err)
	return repo, func() {
		repo.Close()
		backend.Close()
	}
}

// seedChunks stores n chunks for taskID, embedding every other one when mixed is set.
func seedChunks(t *testing.T, repo storage.ChunkRepository, taskID string, n int, mixed bool) []*core.Chunk {
	t.Helper()
	chunks := make([]*core.Chunk, n)
	for i := range chunks {
		chunks[i] = &core.Chunk{
			TaskID:   taskID,
			DocID:    "doc",
			ChunkID:  core.ChunkIDFor("doc", i),
			Index:    i,
			Kind:     core.ChunkKindText,
			Text:     fmt.Sprintf("chunk %d of %s", i, taskID),
			Metadata: map[string]string{core.MetadataFilename: "doc.txt"},
		}
		if mixed && i%2 == 0 {
			chunks[i].Embedding = []float32{9, 9, 9}
		}
	}
	added, err := repo.AddChunks(context.Background(), chunks...)
	require.NoError(t, err)
	return added
}
