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

// Package storage provides the chunk store abstraction for dataroom.
//
// The in-process index is rebuilt from a chunk store on startup, so the store is
// the durable copy of every ingested chunk and its embedding. Different backends
// (BadgerDB, PostgreSQL with pgvector) can be used interchangeably.
//
// # Constructor Return Type Pattern
//
// This package follows a strict "return interface" pattern for all public constructors
// to enforce abstraction and enable multiple storage backend implementations:
//
//	repo, err := badger.NewChunkRepository(backend)  // returns storage.ChunkRepository interface
//
// Internal package constructors (newChunkRepository, etc.) may return
// concrete types since they're only used within the implementation package.
//
// # Record Format
//
// Every backend stores one JSON record per chunk:
//
//	{"task_id": ..., "doc_id": ..., "chunk_id": ..., "chunk_index": ..., "kind": ...,
//	 "text": ..., "embedding": [...], "metadata": {...}, "inserted_at": ...}
//
// The chunk's ID is derived from task, document and chunk ID and is not stored.
//
// # Usage
//
//	// On-disk store
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	repo, err := badger.NewChunkRepository(backend)
//
//	// In-memory store (for testing)
//	repo, backend, err := badger.NewMemoryRepository()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
package storage
