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

package reembed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of chunks to process in each batch
	BatchSize int

	// ReportInterval is how often to report progress (number of chunks)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each embedding call
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// All reembeds every chunk instead of only chunks without an embedding
	All bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Summary describes a finished reembedding run.
type Summary struct {
	Total    int // chunks examined
	Embedded int // chunks given a new embedding
	Skipped  int // chunks that already had one
	Elapsed  time.Duration
}

// Reembedder orchestrates the reembedding of stored chunks.
type Reembedder struct {
	repo      storage.ChunkRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *ChunkIterator
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.ChunkRepository, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewChunkIterator(repo, config.BatchSize),
	}, nil
}

// Run embeds stored chunks that lack an embedding, or every chunk when
// Config.All is set. Progress is reported to the configured writer.
// The first batch that cannot be embedded stops the run; chunks already
// updated keep their new embeddings.
func (r *Reembedder) Run(ctx context.Context) (*Summary, error) {
	total, err := r.repo.CountChunks(ctx, "")
	if err != nil {
		return &Summary{}, fmt.Errorf("failed to count chunks: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No chunks found in database (0 chunks)\n")
		return &Summary{}, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d chunks (batch size: %d, all: %t)\n",
		total, r.config.BatchSize, r.config.All)

	reporter := newProgressReporter(r.progress, total, r.config.ReportInterval)
	err = r.iterator.ForEach(ctx, func(chunks []*core.Chunk) error {
		pending := chunks
		if !r.config.All {
			pending = make([]*core.Chunk, 0, len(chunks))
			for _, chunk := range chunks {
				if !chunk.HasEmbedding() {
					pending = append(pending, chunk)
				}
			}
		}

		if err := r.processor.Process(ctx, pending); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		reporter.record(len(pending), len(chunks)-len(pending))
		return nil
	})
	if err != nil {
		summary := reporter.current()
		return &summary, err
	}

	summary := reporter.finish()
	fmt.Fprintf(r.progress, "Reembedding complete. Embedded %d of %d chunks (%d skipped) in %v\n",
		summary.Embedded, summary.Total, summary.Skipped, summary.Elapsed.Round(time.Millisecond))
	return &summary, nil
}
