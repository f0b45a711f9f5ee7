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

package storage

import (
	"context"

	"github.com/poiesic/dataroom/core"
)

// ChunkRepository is the durable chunk store the per-task index is rebuilt from.
// Chunks of one task are returned in insertion order.
type ChunkRepository interface {
	// AddChunks stores one or more chunks.
	// Assigns content-based IDs to chunks with Id=0 and sets InsertedAt if unset.
	// Returns ErrDuplicateKey if a chunk with the same ID already exists.
	AddChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// UpdateChunks replaces stored chunks, typically to change embeddings.
	// Returns ErrNotFound if any chunk doesn't exist.
	UpdateChunks(ctx context.Context, chunks ...*core.Chunk) ([]*core.Chunk, error)

	// GetChunk retrieves a single chunk by ID.
	// Returns ErrNotFound if the chunk doesn't exist.
	GetChunk(ctx context.Context, id core.ID) (*core.Chunk, error)

	// ChunksByTask retrieves every chunk of a task in insertion order.
	// Unknown tasks yield an empty slice.
	ChunksByTask(ctx context.Context, taskID string) ([]*core.Chunk, error)

	// ListChunks returns up to limit chunks across all tasks, skipping the first offset.
	// Chunks are grouped by task, in insertion order within a task.
	ListChunks(ctx context.Context, offset, limit int) ([]*core.Chunk, error)

	// ForEachChunk calls fn for every stored chunk in ListChunks order.
	// Iteration stops at the first error fn returns.
	ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error

	// Tasks returns the IDs of all tasks with stored chunks, sorted.
	Tasks(ctx context.Context) ([]string, error)

	// CountChunks returns the number of chunks stored for a task,
	// or across all tasks when taskID is empty.
	CountChunks(ctx context.Context, taskID string) (int, error)

	// HasDocument reports whether any chunk of docID is stored under taskID.
	HasDocument(ctx context.Context, taskID, docID string) (bool, error)

	// DeleteDocument removes every chunk of docID stored under taskID and
	// returns how many were removed.
	DeleteDocument(ctx context.Context, taskID, docID string) (int, error)

	// DeleteTask removes every chunk of a task and returns how many were removed.
	DeleteTask(ctx context.Context, taskID string) (int, error)

	// Close releases resources held by the repository.
	Close() error
}
