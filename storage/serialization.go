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
	"encoding/json"
	"fmt"
	"time"

	"github.com/poiesic/dataroom/core"
)

// chunkRecord is the persisted form of a core.Chunk.
type chunkRecord struct {
	TaskID     string            `json:"task_id"`
	DocID      string            `json:"doc_id"`
	ChunkID    string            `json:"chunk_id"`
	ChunkIndex int               `json:"chunk_index"`
	Kind       core.ChunkKind    `json:"kind"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"embedding,omitempty"`
	Metadata   map[string]string `json:"metadata"`
	InsertedAt time.Time         `json:"inserted_at"`
}

// MarshalChunk serializes a chunk to its JSON record.
func MarshalChunk(chunk *core.Chunk) ([]byte, error) {
	metadata := chunk.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	data, err := json.Marshal(chunkRecord{
		TaskID:     chunk.TaskID,
		DocID:      chunk.DocID,
		ChunkID:    chunk.ChunkID,
		ChunkIndex: chunk.Index,
		Kind:       chunk.Kind,
		Text:       chunk.Text,
		Embedding:  chunk.Embedding,
		Metadata:   metadata,
		InsertedAt: chunk.InsertedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalChunk deserializes a JSON record and recomputes the chunk's ID.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	var record chunkRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if record.TaskID == "" || record.ChunkID == "" {
		return nil, fmt.Errorf("%w: record missing task_id or chunk_id", ErrSerializationFailed)
	}
	return &core.Chunk{
		Id:         core.ChunkContentID(record.TaskID, record.DocID, record.ChunkID),
		TaskID:     record.TaskID,
		DocID:      record.DocID,
		ChunkID:    record.ChunkID,
		Index:      record.ChunkIndex,
		Kind:       record.Kind,
		Text:       record.Text,
		Embedding:  record.Embedding,
		Metadata:   record.Metadata,
		InsertedAt: record.InsertedAt,
	}, nil
}

// PrepareChunk assigns the chunk ID, content-based ID and insertion time when unset.
// Backends call it from AddChunks.
func PrepareChunk(chunk *core.Chunk, now time.Time) {
	if chunk.ChunkID == "" {
		chunk.ChunkID = core.ChunkIDFor(chunk.DocID, chunk.Index)
	}
	if chunk.Id == 0 {
		chunk.Id = core.ChunkContentID(chunk.TaskID, chunk.DocID, chunk.ChunkID)
	}
	if chunk.InsertedAt.IsZero() {
		chunk.InsertedAt = now.UTC()
	}
}
