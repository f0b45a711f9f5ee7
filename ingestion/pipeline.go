package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"runtime"
	"slices"
	"strings"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/chunker"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/index"
	"github.com/poiesic/dataroom/storage"
)

// Observer is notified of every ingestion outcome.
type Observer interface {
	DocumentIngested(result *Result)
	IngestFailed(taskID string, err error)
}

// Result summarizes one ingested document.
type Result struct {
	TaskID      string
	DocID       string
	Filename    string
	TextChunks  int
	FieldChunks int
	Embedded    int // chunks that received an embedding
	Duration    time.Duration
}

// Chunks returns the total number of chunks produced.
func (r *Result) Chunks() int {
	return r.TextChunks + r.FieldChunks
}

// Pipeline orchestrates the ingestion of documents into a task index.
type Pipeline struct {
	registry      *index.Registry
	repository    storage.ChunkRepository
	embeddingPool *ants.Pool
	embeddingProc *embeddingProcessor
	chunker       *chunker.Chunker
	observer      Observer
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for per-chunk embedding fallback.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.embeddingPool != nil {
			p.embeddingPool.Release()
		}

		embeddingPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.embeddingPool = embeddingPool
		return nil
	}
}

// WithChunking sets the chunk size and overlap in characters.
// Default is chunker.DefaultSize and chunker.DefaultOverlap.
func WithChunking(size, overlap int) Option {
	return func(p *Pipeline) error {
		p.chunker = chunker.New(chunker.WithSize(size), chunker.WithOverlap(overlap))
		return nil
	}
}

// WithChunkRepository persists chunks so the index can be rebuilt later.
// Without it chunks only live in the index.
func WithChunkRepository(repository storage.ChunkRepository) Option {
	return func(p *Pipeline) error {
		p.repository = repository
		return nil
	}
}

// WithObserver reports ingestion outcomes to observer.
func WithObserver(observer Observer) Option {
	return func(p *Pipeline) error {
		p.observer = observer
		return nil
	}
}

// WithLogger sets the pipeline's logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline feeding registry.
func NewPipeline(registry *index.Registry, embedder ai.Embedder, opts ...Option) (*Pipeline, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	embeddingPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	// Create pipeline with defaults
	p := &Pipeline{
		registry:      registry,
		embeddingPool: embeddingPool,
		chunker:       chunker.New(),
		logger:        slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.logger = p.logger.With("component", "ingestion")
	// Create processor after options are applied (so it gets final config)
	p.embeddingProc = newEmbeddingProcessor(embedder, p.embeddingPool, p.logger)

	return p, nil
}

// Ingest chunks, embeds, persists and indexes a document.
//
// Text chunks come first with indexes 0..n-1, followed by one chunk per
// non-empty structured field in field-name order. Embedding failures leave
// chunks without vectors and do not fail ingestion. A document already held
// by the chunk store returns ErrDocumentExists.
func (p *Pipeline) Ingest(ctx context.Context, doc *core.Document) (*Result, error) {
	result, err := p.ingest(ctx, doc)
	if p.observer != nil {
		if err != nil {
			taskID := ""
			if doc != nil {
				taskID = doc.TaskID
			}
			p.observer.IngestFailed(taskID, err)
		} else {
			p.observer.DocumentIngested(result)
		}
	}
	return result, err
}

func (p *Pipeline) ingest(ctx context.Context, doc *core.Document) (*Result, error) {
	start := time.Now()
	if err := core.ValidateDocument(doc); err != nil {
		return nil, err
	}

	if p.repository != nil {
		exists, err := p.repository.HasDocument(ctx, doc.TaskID, doc.DocID)
		if err != nil {
			return nil, fmt.Errorf("check document %s: %w", doc.DocID, err)
		}
		if exists {
			return nil, fmt.Errorf("%w: %s in task %s", ErrDocumentExists, doc.DocID, doc.TaskID)
		}
	}

	chunks, textChunks := p.buildChunks(doc)
	result := &Result{
		TaskID:      doc.TaskID,
		DocID:       doc.DocID,
		Filename:    doc.Filename(),
		TextChunks:  textChunks,
		FieldChunks: len(chunks) - textChunks,
	}
	if len(chunks) == 0 {
		p.logger.Warn("document produced no chunks", "task", doc.TaskID, "doc", doc.DocID)
		result.Duration = time.Since(start)
		return result, nil
	}

	result.Embedded = p.embeddingProc.process(ctx, chunks)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if p.repository != nil {
		if _, err := p.repository.AddChunks(ctx, chunks...); err != nil {
			return nil, fmt.Errorf("store chunks of %s: %w", doc.DocID, err)
		}
	}
	if err := p.registry.Add(ctx, doc.TaskID, chunks...); err != nil {
		return nil, fmt.Errorf("index chunks of %s: %w", doc.DocID, err)
	}

	result.Duration = time.Since(start)
	p.logger.Info("document ingested",
		"task", doc.TaskID, "doc", doc.DocID, "filename", result.Filename,
		"textChunks", result.TextChunks, "fieldChunks", result.FieldChunks,
		"embedded", result.Embedded, "elapsed", result.Duration)
	return result, nil
}

// Remove deletes a document's chunks from the chunk store, when one is
// configured, and from the index. It returns how many chunks left the index.
func (p *Pipeline) Remove(ctx context.Context, taskID, docID string) (int, error) {
	if p.repository != nil {
		if _, err := p.repository.DeleteDocument(ctx, taskID, docID); err != nil {
			return 0, fmt.Errorf("delete document %s: %w", docID, err)
		}
	}
	return p.registry.RemoveDocument(taskID, docID), nil
}

// buildChunks renders a document's text and structured fields as chunks and
// returns them with the number of text chunks.
func (p *Pipeline) buildChunks(doc *core.Document) ([]*core.Chunk, int) {
	metadata := chunkMetadata(doc)
	texts := p.chunker.Split(doc.RawText)

	chunks := make([]*core.Chunk, 0, len(texts)+len(doc.StructuredFields))
	for _, text := range texts {
		chunks = append(chunks, newChunk(doc, len(chunks), core.ChunkKindText, text, metadata))
	}

	for _, field := range slices.Sorted(maps.Keys(doc.StructuredFields)) {
		value := strings.TrimSpace(doc.StructuredFields[field])
		if value == "" {
			continue
		}
		fieldMetadata := maps.Clone(metadata)
		fieldMetadata[core.MetadataField] = field
		chunks = append(chunks, newChunk(doc, len(chunks), core.ChunkKindField, field+": "+value, fieldMetadata))
	}
	return chunks, len(texts)
}

func newChunk(doc *core.Document, index int, kind core.ChunkKind, text string, metadata map[string]string) *core.Chunk {
	chunkID := core.ChunkIDFor(doc.DocID, index)
	return &core.Chunk{
		Id:       core.ChunkContentID(doc.TaskID, doc.DocID, chunkID),
		TaskID:   doc.TaskID,
		DocID:    doc.DocID,
		ChunkID:  chunkID,
		Index:    index,
		Kind:     kind,
		Text:     text,
		Metadata: metadata,
	}
}

// chunkMetadata flattens document metadata to strings and pins the filename.
func chunkMetadata(doc *core.Document) map[string]string {
	metadata := make(map[string]string, len(doc.Metadata)+1)
	for key, value := range doc.Metadata {
		switch v := value.(type) {
		case nil:
		case string:
			metadata[key] = v
		default:
			metadata[key] = fmt.Sprint(v)
		}
	}
	metadata[core.MetadataFilename] = doc.Filename()
	return metadata
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.embeddingPool != nil {
		p.embeddingPool.Release()
	}
}
