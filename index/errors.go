package index

import "errors"

var (
	// ErrEmbedderRequired is returned when a registry is built without an embedder.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrChunkSourceRequired is returned when Rebuild is given no chunk source.
	ErrChunkSourceRequired = errors.New("chunk source is required")

	// ErrTaskMismatch indicates a chunk was added under a task other than its own.
	ErrTaskMismatch = errors.New("chunk belongs to a different task")
)
