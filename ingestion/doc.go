// Package ingestion turns documents into indexed, embedded chunks.
//
// The Pipeline type manages the ingestion workflow for a document:
//   - Splitting raw text into overlapping chunks and rendering structured fields
//   - Generating embeddings, falling back to per-chunk requests on a worker pool
//   - Persisting chunks to the chunk store and adding them to the task index
//
// Embedding failures never fail ingestion: affected chunks are stored without a
// vector and are scored by keyword only. Watcher feeds a directory of text files
// through a Pipeline as they appear.
package ingestion
