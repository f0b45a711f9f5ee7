package index

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/search"
)

// DefaultTopK is the number of hits returned when a search asks for none.
const DefaultTopK = 5

// ChunkSource supplies stored chunks for Rebuild, grouped by task and in
// insertion order within a task.
type ChunkSource interface {
	ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error
}

// Hit is one scored search result.
type Hit struct {
	Chunk     *core.Chunk
	Score     float64
	ScoreType search.ScoreType
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultTopK sets the hit count used when Search is called with topK <= 0.
func WithDefaultTopK(k int) Option {
	return func(r *Registry) {
		if k > 0 {
			r.defaultTopK = k
		}
	}
}

// Registry is the per-task chunk index. Safe for concurrent use: the task map
// is guarded by a read-write lock and each task serializes its own writes.
// Add and RemoveDocument wait while a Rebuild or Reset is in progress, so
// their effect always lands in the contents that are current afterwards.
type Registry struct {
	embedder    ai.Embedder
	defaultTopK int
	logger      *slog.Logger

	// writeMu is shared by Add and RemoveDocument and held exclusively by
	// Rebuild and Reset. Searches never take it.
	writeMu sync.RWMutex

	mu    sync.RWMutex
	tasks map[string]*taskIndex
}

type taskIndex struct {
	mu       sync.RWMutex
	chunks   []*core.Chunk
	ids      map[string]struct{}
	embedded int // chunks with an embedding
}

func newTaskIndex() *taskIndex {
	return &taskIndex{ids: make(map[string]struct{})}
}

// append adds chunk unless a chunk with the same ChunkID is already indexed.
func (t *taskIndex) append(chunk *core.Chunk) bool {
	if _, ok := t.ids[chunk.ChunkID]; ok {
		return false
	}
	t.ids[chunk.ChunkID] = struct{}{}
	t.chunks = append(t.chunks, chunk)
	if chunk.HasEmbedding() {
		t.embedded++
	}
	return true
}

// NewRegistry creates an empty registry that embeds queries with embedder.
func NewRegistry(embedder ai.Embedder, opts ...Option) (*Registry, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	r := &Registry{
		embedder:    embedder,
		defaultTopK: DefaultTopK,
		logger:      slog.Default(),
		tasks:       make(map[string]*taskIndex),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "index")
	return r, nil
}

// Add appends chunks to the task's index, creating the task if needed.
// Every chunk must be valid and belong to taskID. Chunks whose ChunkID is
// already indexed for the task are skipped.
func (r *Registry) Add(ctx context.Context, taskID string, chunks ...*core.Chunk) error {
	if err := core.ValidateTaskID(taskID); err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := core.ValidateChunk(chunk); err != nil {
			return err
		}
		if chunk.TaskID != taskID {
			return fmt.Errorf("%w: chunk %s has task %q, not %q", ErrTaskMismatch, chunk.ChunkID, chunk.TaskID, taskID)
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	r.writeMu.RLock()
	defer r.writeMu.RUnlock()

	task := r.task(taskID, true)
	task.mu.Lock()
	defer task.mu.Unlock()
	for _, chunk := range chunks {
		task.append(chunk)
	}
	return nil
}

// RemoveDocument drops every chunk of docID from the task's index and returns
// how many were removed. Searches already running keep the chunks they started
// with.
func (r *Registry) RemoveDocument(taskID, docID string) int {
	r.writeMu.RLock()
	defer r.writeMu.RUnlock()

	task := r.task(taskID, false)
	if task == nil {
		return 0
	}
	task.mu.Lock()
	defer task.mu.Unlock()

	kept := make([]*core.Chunk, 0, len(task.chunks))
	embedded := 0
	for _, chunk := range task.chunks {
		if chunk.DocID == docID {
			delete(task.ids, chunk.ChunkID)
			continue
		}
		kept = append(kept, chunk)
		if chunk.HasEmbedding() {
			embedded++
		}
	}
	removed := len(task.chunks) - len(kept)
	if removed > 0 {
		task.chunks = kept
		task.embedded = embedded
		r.logger.Debug("document removed", "task", taskID, "doc", docID, "chunks", removed)
	}
	return removed
}

// Documents returns the IDs of the task's documents whose chunks carry
// metadata key set to value, in insertion order.
func (r *Registry) Documents(taskID, key, value string) []string {
	chunks, _ := r.snapshot(taskID)
	docs := []string{}
	for _, chunk := range chunks {
		if chunk.Metadata[key] == value && !slices.Contains(docs, chunk.DocID) {
			docs = append(docs, chunk.DocID)
		}
	}
	return docs
}

// Search scores every chunk of the task against query and returns the best
// topK hits with positive scores, highest first. Ties keep insertion order.
// Unknown tasks yield no hits. An unavailable query embedding degrades the
// search to keyword scoring; only a cancelled context returns an error.
func (r *Registry) Search(ctx context.Context, taskID, query string, topK int) ([]Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = r.defaultTopK
	}

	chunks, embedded := r.snapshot(taskID)
	if len(chunks) == 0 {
		return []Hit{}, nil
	}

	var queryEmbedding []float32
	if embedded > 0 {
		var err error
		queryEmbedding, err = r.embedQuery(ctx, query)
		if err != nil {
			return nil, err
		}
	}

	hits := make([]Hit, 0, min(len(chunks), topK))
	for _, chunk := range chunks {
		score, scoreType := search.Score(query, queryEmbedding, chunk.Text, chunk.Embedding)
		if score <= 0 {
			continue
		}
		hits = append(hits, Hit{Chunk: chunk, Score: score, ScoreType: scoreType})
	}

	slices.SortStableFunc(hits, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	r.logger.Debug("search complete", "task", taskID, "chunks", len(chunks), "hits", len(hits), "semantic", queryEmbedding != nil)
	return hits, nil
}

// Context runs a single-query search and renders the hits as numbered sources.
// A query with no hits yields an empty context and no sources.
func (r *Registry) Context(ctx context.Context, taskID, query string, topK int) (*core.RAGContext, error) {
	hits, err := r.Search(ctx, taskID, query, topK)
	if err != nil {
		return nil, err
	}

	sources := make([]core.Source, len(hits))
	for i, hit := range hits {
		sources[i] = core.Source{
			Filename:   hit.Chunk.Filename(),
			ChunkIndex: hit.Chunk.Index,
			Score:      hit.Score,
			ScoreType:  string(hit.ScoreType),
		}
	}
	return &core.RAGContext{
		Context: FormatContext(hits),
		Sources: sources,
	}, nil
}

// FormatContext renders hits as "[Source i] text" blocks, numbered from 1 and
// separated by blank lines.
func FormatContext(hits []Hit) string {
	parts := make([]string, len(hits))
	for i, hit := range hits {
		parts[i] = fmt.Sprintf("[Source %d] %s", i+1, hit.Chunk.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Reset drops every task.
func (r *Registry) Reset() {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = make(map[string]*taskIndex)
}

// Rebuild replaces the registry's contents with every chunk src holds and
// returns how many were loaded. Chunks that fail validation are skipped.
// On error the previous contents are kept. Searches see the previous contents
// until the new ones are swapped in; writers wait for the swap.
func (r *Registry) Rebuild(ctx context.Context, src ChunkSource) (int, error) {
	if src == nil {
		return 0, ErrChunkSourceRequired
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	tasks := make(map[string]*taskIndex)
	loaded, skipped := 0, 0
	err := src.ForEachChunk(ctx, func(chunk *core.Chunk) error {
		if err := core.ValidateChunk(chunk); err != nil {
			skipped++
			r.logger.Warn("skipping invalid stored chunk", "chunk", chunk.ChunkID, "err", err)
			return nil
		}
		task, ok := tasks[chunk.TaskID]
		if !ok {
			task = newTaskIndex()
			tasks[chunk.TaskID] = task
		}
		if task.append(chunk) {
			loaded++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("rebuild index: %w", err)
	}

	r.mu.Lock()
	r.tasks = tasks
	r.mu.Unlock()

	r.logger.Info("index rebuilt", "tasks", len(tasks), "chunks", loaded, "skipped", skipped)
	return loaded, nil
}

// Tasks returns the IDs of all tasks with indexed chunks, sorted.
func (r *Registry) Tasks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tasks := make([]string, 0, len(r.tasks))
	for id, task := range r.tasks {
		task.mu.RLock()
		n := len(task.chunks)
		task.mu.RUnlock()
		if n > 0 {
			tasks = append(tasks, id)
		}
	}
	slices.Sort(tasks)
	return tasks
}

// Len returns the number of chunks indexed for a task.
func (r *Registry) Len(taskID string) int {
	chunks, _ := r.snapshot(taskID)
	return len(chunks)
}

// HasTask reports whether the task has at least one indexed chunk.
func (r *Registry) HasTask(taskID string) bool {
	return r.Len(taskID) > 0
}

// task returns the task's index, creating it when create is set.
func (r *Registry) task(taskID string, create bool) *taskIndex {
	r.mu.RLock()
	task, ok := r.tasks[taskID]
	r.mu.RUnlock()
	if ok || !create {
		return task
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok = r.tasks[taskID]; !ok {
		task = newTaskIndex()
		r.tasks[taskID] = task
	}
	return task
}

// snapshot returns the task's chunks as of now. Adds only append and removals
// replace the slice, so the returned prefix stays valid while writers proceed.
func (r *Registry) snapshot(taskID string) ([]*core.Chunk, int) {
	task := r.task(taskID, false)
	if task == nil {
		return nil, 0
	}
	task.mu.RLock()
	defer task.mu.RUnlock()
	return task.chunks[:len(task.chunks):len(task.chunks)], task.embedded
}

func (r *Registry) embedQuery(ctx context.Context, query string) ([]float32, error) {
	embedding, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		r.logger.Warn("query embedding unavailable, using keyword scoring", "err", err)
		return nil, nil
	}
	return embedding, nil
}
