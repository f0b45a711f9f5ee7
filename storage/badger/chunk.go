// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/storage"
)

// chunkWriteBatch bounds the chunks written per transaction so large documents
// stay under Badger's transaction size limit.
const chunkWriteBatch = 100

// ChunkRepository stores chunks in BadgerDB, ordered by task and insertion sequence.
type ChunkRepository struct {
	backend *Backend
	seq     *badger.Sequence
}

var _ storage.ChunkRepository = (*ChunkRepository)(nil)

// NewChunkRepository creates a chunk repository on backend.
// Returns storage.ChunkRepository interface to enforce abstraction.
func NewChunkRepository(backend *Backend) (storage.ChunkRepository, error) {
	return newChunkRepository(backend)
}

func newChunkRepository(backend *Backend) (*ChunkRepository, error) {
	seq, err := backend.GetSequence(chunkSeq)
	if err != nil {
		return nil, err
	}

	return &ChunkRepository{
		backend: backend,
		seq:     seq,
	}, nil
}

// Close releases the leased sequence range. The backend stays open.
func (r *ChunkRepository) Close() error {
	return r.seq.Release()
}

// AddChunks stores chunks, rejecting IDs that already exist.
// Chunks are written in transactions of chunkWriteBatch.
func (r *ChunkRepository) AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	now := time.Now()
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
		storage.PrepareChunk(chunk, now)
	}

	for start := 0; start < len(chunks); start += chunkWriteBatch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+chunkWriteBatch, len(chunks))
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for _, chunk := range chunks[start:end] {
				if err := r.addChunk(tx, chunk); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return nil, err
		}
	}
	return chunks, nil
}

func (r *ChunkRepository) addChunk(tx *badger.Txn, chunk *core.Chunk) error {
	idKey := makeChunkIDKey(chunk.Id)
	if _, err := tx.Get(idKey); err == nil {
		return fmt.Errorf("%w: chunk %s of task %q", storage.ErrDuplicateKey, chunk.ChunkID, chunk.TaskID)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	next, err := r.seq.Next()
	if err != nil {
		return err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if next == 0 {
		next, err = r.seq.Next()
		if err != nil {
			return err
		}
	}

	value, err := storage.MarshalChunk(chunk)
	if err != nil {
		return err
	}
	key := makeChunkKey(chunk.TaskID, next)
	if err := tx.Set(key, value); err != nil {
		return err
	}
	if err := tx.Set(idKey, key); err != nil {
		return err
	}
	return tx.Set(makeChunkDocKey(chunk.TaskID, chunk.DocID), nil)
}

// UpdateChunks replaces the stored records of existing chunks.
func (r *ChunkRepository) UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, chunk := range chunks {
			key, err := r.primaryKey(tx, chunk.Id)
			if err != nil {
				return err
			}
			value, err := storage.MarshalChunk(chunk)
			if err != nil {
				return err
			}
			if err := tx.Set(key, value); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)

	return chunks, err
}

// GetChunk retrieves a single chunk by ID.
func (r *ChunkRepository) GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error) {
	var result *core.Chunk
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key, err := r.primaryKey(tx, id)
		if err != nil {
			return err
		}
		item, err := tx.Get(key)
		if err != nil {
			return err
		}
		result, err = readChunk(item)
		return err
	}, false)
	return result, err
}

// ChunksByTask retrieves every chunk of a task in insertion order.
func (r *ChunkRepository) ChunksByTask(ctx context.Context, taskID string) ([]*core.Chunk, error) {
	results := []*core.Chunk{}
	err := r.scan(ctx, makeTaskPrefix(taskID), func(chunk *core.Chunk) error {
		results = append(results, chunk)
		return nil
	})
	return results, err
}

// ListChunks returns one page of chunks across all tasks.
func (r *ChunkRepository) ListChunks(ctx context.Context, offset, limit int) ([]*core.Chunk, error) {
	if offset < 0 || limit <= 0 {
		return nil, storage.ErrInvalidPage
	}

	results := make([]*core.Chunk, 0, limit)
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		skipped := 0
		for iter.Rewind(); iter.Valid() && len(results) < limit; iter.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := readChunk(iter.Item())
			if err != nil {
				return err
			}
			results = append(results, chunk)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ForEachChunk calls fn for every stored chunk, grouped by task.
// fn runs inside a read transaction and must not write to the repository.
func (r *ChunkRepository) ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error {
	return r.scan(ctx, []byte(chunkPrefix+":"), fn)
}

// Tasks returns every task with stored chunks, sorted.
func (r *ChunkRepository) Tasks(ctx context.Context) ([]string, error) {
	tasks := []string{}
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(chunkPrefix + ":")
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		iter.Rewind()
		for iter.Valid() {
			taskID, ok := taskFromChunkKey(iter.Item().Key())
			if !ok {
				iter.Next()
				continue
			}
			tasks = append(tasks, taskID)

			// Skip the rest of this task's chunks
			next := makeTaskPrefix(taskID)
			next[len(next)-1] = taskSeparator + 1
			iter.Seek(next)
		}
		return nil
	}, false)
	return tasks, err
}

// CountChunks counts the chunks of a task, or of all tasks when taskID is empty.
func (r *ChunkRepository) CountChunks(ctx context.Context, taskID string) (int, error) {
	prefix := []byte(chunkPrefix + ":")
	if taskID != "" {
		prefix = makeTaskPrefix(taskID)
	}

	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// HasDocument reports whether docID has chunks stored under taskID.
func (r *ChunkRepository) HasDocument(ctx context.Context, taskID, docID string) (bool, error) {
	found := false
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeChunkDocKey(taskID, docID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// DeleteTask removes every chunk and document key of a task.
func (r *ChunkRepository) DeleteTask(ctx context.Context, taskID string) (int, error) {
	chunks, err := r.ChunksByTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	return r.deleteChunks(chunks)
}

// DeleteDocument removes every chunk of docID stored under taskID.
func (r *ChunkRepository) DeleteDocument(ctx context.Context, taskID, docID string) (int, error) {
	var chunks []*core.Chunk
	err := r.scan(ctx, makeTaskPrefix(taskID), func(chunk *core.Chunk) error {
		if chunk.DocID == docID {
			chunks = append(chunks, chunk)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return r.deleteChunks(chunks)
}

func (r *ChunkRepository) deleteChunks(chunks []*core.Chunk) (int, error) {
	for start := 0; start < len(chunks); start += chunkWriteBatch {
		end := min(start+chunkWriteBatch, len(chunks))
		err := r.backend.WithTx(func(tx *badger.Txn) error {
			for _, chunk := range chunks[start:end] {
				key, err := r.primaryKey(tx, chunk.Id)
				if err != nil {
					return err
				}
				if err := tx.Delete(key); err != nil {
					return err
				}
				if err := tx.Delete(makeChunkIDKey(chunk.Id)); err != nil {
					return err
				}
				if err := tx.Delete(makeChunkDocKey(chunk.TaskID, chunk.DocID)); err != nil {
					return err
				}
			}
			return tx.Commit()
		}, true)
		if err != nil {
			return 0, err
		}
	}
	return len(chunks), nil
}

func (r *ChunkRepository) scan(ctx context.Context, prefix []byte, fn func(*core.Chunk) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := readChunk(iter.Item())
			if err != nil {
				return err
			}
			if err := fn(chunk); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// primaryKey resolves a chunk ID to its primary key.
func (r *ChunkRepository) primaryKey(tx *badger.Txn, id core.ID) ([]byte, error) {
	item, err := tx.Get(makeChunkIDKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func readChunk(item *badger.Item) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}
