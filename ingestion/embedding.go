package ingestion

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/core"
)

// embeddingProcessor generates embeddings for chunks.
type embeddingProcessor struct {
	embedder ai.Embedder
	pool     *ants.Pool
	logger   *slog.Logger
}

func newEmbeddingProcessor(embedder ai.Embedder, pool *ants.Pool, logger *slog.Logger) *embeddingProcessor {
	return &embeddingProcessor{
		embedder: embedder,
		pool:     pool,
		logger:   logger.With("processor", "embeddings"),
	}
}

// process embeds chunks in place and returns how many received a vector.
// A failed batch is retried one chunk at a time on the pool so a single bad
// text only loses its own vector. An embedder that reports embeddings as
// unavailable is not retried.
func (ep *embeddingProcessor) process(ctx context.Context, chunks []*core.Chunk) int {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	ep.logger.Debug("generating embeddings for chunks", "chunks", len(texts))
	embeddings, err := ep.embedder.EmbedTexts(ctx, texts)
	if err == nil && len(embeddings) == len(chunks) {
		embedded := 0
		for i := range embeddings {
			if len(embeddings[i]) > 0 {
				chunks[i].Embedding = embeddings[i]
				embedded++
			}
		}
		return embedded
	}
	if ctx.Err() != nil {
		return 0
	}
	if errors.Is(err, ai.ErrEmbeddingUnavailable) {
		ep.logger.Debug("embeddings unavailable, storing chunks without vectors", "chunks", len(chunks))
		return 0
	}
	if err == nil {
		ep.logger.Warn("embedding result mismatch", "expected", len(chunks), "received", len(embeddings))
	} else if ai.IsFatal(err) {
		ep.logger.Error("embedding provider unusable, storing chunks without vectors", "err", err)
		return 0
	} else {
		ep.logger.Warn("batch embedding failed, embedding chunks individually", "err", err)
	}

	return ep.processEach(ctx, chunks)
}

func (ep *embeddingProcessor) processEach(ctx context.Context, chunks []*core.Chunk) int {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		embedded int
	)
	for _, chunk := range chunks {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vector, err := ep.embedder.EmbedText(ctx, chunk.Text)
			if err != nil || len(vector) == 0 {
				ep.logger.Debug("chunk embedding unavailable", "chunk", chunk.ChunkID, "err", err)
				return
			}
			chunk.Embedding = vector
			mu.Lock()
			embedded++
			mu.Unlock()
		}
		if err := ep.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()
	return embedded
}
