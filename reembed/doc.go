// Package reembed backfills or refreshes the embeddings of stored chunks.
//
// Chunks ingested while the embedding provider was unavailable are stored
// without vectors and only match by keyword. Running a Reembedder after the
// provider recovers, or after switching embedding models, restores semantic
// scoring. Work is done in batches with retry and progress reporting.
package reembed
