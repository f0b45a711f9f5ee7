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


package core

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - TaskID must be a valid task identifier
//   - DocID must not be empty
//
// NOT validated:
//   - RawText (a document may carry only structured fields)
//   - Metadata (free-form)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if err := ValidateTaskID(doc.TaskID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	if doc.DocID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocID)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - TaskID must be a valid task identifier
//   - DocID must not be empty
//   - Text must not be empty
//   - Kind must be ChunkKindText or ChunkKindField
//   - Index must not be negative
//
// NOT validated:
//   - Embedding (absent when the embedder is unavailable)
//   - Id (assigned from content when persisted)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if err := ValidateTaskID(chunk.TaskID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	if chunk.DocID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDocID)
	}

	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}

	if err := ValidateChunkKind(chunk.Kind); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, err)
	}

	if chunk.Index < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrNegativeChunkIndex)
	}

	return nil
}

// ValidateTaskID checks that a task identifier is usable as an index and storage key.
func ValidateTaskID(taskID string) error {
	if taskID == "" {
		return ErrEmptyTaskID
	}
	if strings.ContainsRune(taskID, 0) {
		return ErrInvalidTaskID
	}
	return nil
}

// ValidateChunkKind validates that a ChunkKind has a known value.
func ValidateChunkKind(kind ChunkKind) error {
	if kind != ChunkKindText && kind != ChunkKindField {
		return fmt.Errorf("%w: value %q", ErrInvalidChunkKind, kind)
	}
	return nil
}
