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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyTaskID indicates the task identifier is empty.
	ErrEmptyTaskID = errors.New("task id cannot be empty")

	// ErrInvalidTaskID indicates the task identifier contains a NUL byte.
	ErrInvalidTaskID = errors.New("task id cannot contain NUL bytes")

	// ErrEmptyDocID indicates the document identifier is empty.
	ErrEmptyDocID = errors.New("document id cannot be empty")

	// ErrEmptyContent indicates the text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidChunkKind indicates an unknown ChunkKind value.
	ErrInvalidChunkKind = errors.New("invalid chunk kind")

	// ErrNegativeChunkIndex indicates a chunk index below zero.
	ErrNegativeChunkIndex = errors.New("chunk index cannot be negative")
)
