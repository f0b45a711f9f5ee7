package query

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/index"
)

// Placeholder retrieval content used when no sub-question matched anything.
const (
	NoEvidenceSubQuery = "No relevant documents"
	NoEvidenceContext  = "No relevant excerpts found."
)

// NoEvidenceResult returns the placeholder result standing in for an empty retrieval.
func NoEvidenceResult() core.RetrievalResult {
	return core.RetrievalResult{
		SubQuery:    core.SubQuery{Text: NoEvidenceSubQuery, Ordinal: 0},
		ContextText: NoEvidenceContext,
	}
}

// IsNoEvidence reports whether results is the no-evidence placeholder.
func IsNoEvidence(results []core.RetrievalResult) bool {
	return len(results) == 1 && results[0].SubQuery.Ordinal == 0 && results[0].SubQuery.Text == NoEvidenceSubQuery
}

// Orchestrator retrieves context for many sub-questions at once.
type Orchestrator struct {
	registry *index.Registry
	pool     *ants.Pool
	topK     int
	monitor  Monitor
	logger   *slog.Logger
}

// NewOrchestrator creates an orchestrator searching registry.
// Honors WithTopK, WithWorkers, WithMonitor and WithLogger.
func NewOrchestrator(registry *index.Registry, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	pool, err := ants.NewPool(o.workers)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		registry: registry,
		pool:     pool,
		topK:     o.topK,
		monitor:  Monitors(o.monitor),
		logger:   o.logger.With("component", "orchestrator"),
	}, nil
}

// RetrieveAll searches taskID for every sub-question concurrently.
//
// Results come back in ordinal order, one per sub-question with at least one
// match. A chunk is cited only by the first sub-question that found it, though
// later sub-questions still include its text in their context. A failed
// sub-question is logged and skipped. When nothing matched, the single
// NoEvidenceResult placeholder is returned.
func (o *Orchestrator) RetrieveAll(ctx context.Context, taskID string, subQueries []core.SubQuery) ([]core.RetrievalResult, error) {
	return o.retrieveAll(ctx, taskID, subQueries, o.monitor)
}

type subQueryHits struct {
	subQuery core.SubQuery
	hits     []index.Hit
	err      error
}

func (o *Orchestrator) retrieveAll(ctx context.Context, taskID string, subQueries []core.SubQuery, monitor Monitor) ([]core.RetrievalResult, error) {
	// Each sub-query owns one slot; merging happens after the join.
	slots := make([]subQueryHits, len(subQueries))
	var wg sync.WaitGroup
	for i, subQuery := range subQueries {
		slots[i].subQuery = subQuery
		wg.Add(1)
		task := func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				slots[i].err = err
				return
			}
			start := time.Now()
			hits, err := o.registry.Search(ctx, taskID, subQuery.Text, o.topK)
			if err != nil {
				slots[i].err = fmt.Errorf("%w: %q: %w", ErrSubQueryRetrievalFailed, subQuery.Text, err)
				monitor.SubQueryFailed(subQuery, slots[i].err)
				return
			}
			slots[i].hits = hits
			monitor.SubQueryRetrieved(subQuery, hits, time.Since(start))
		}
		if err := o.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := mergeHits(slots, o.logger)
	monitor.AfterRetrieval(results)
	return results, nil
}

// mergeHits builds results in ordinal order, citing each chunk once.
func mergeHits(slots []subQueryHits, logger *slog.Logger) []core.RetrievalResult {
	slices.SortStableFunc(slots, func(a, b subQueryHits) int {
		return a.subQuery.Ordinal - b.subQuery.Ordinal
	})

	seen := make(map[core.CitationKey]bool)
	results := make([]core.RetrievalResult, 0, len(slots))
	for _, slot := range slots {
		if slot.err != nil {
			logger.Warn("skipping sub-query", "ordinal", slot.subQuery.Ordinal, "err", slot.err)
			continue
		}
		if len(slot.hits) == 0 {
			continue
		}

		result := core.RetrievalResult{
			SubQuery:    slot.subQuery,
			ContextText: index.FormatContext(slot.hits),
			Citations:   []core.Citation{},
		}
		for _, hit := range slot.hits {
			citation := core.Citation{
				DocumentFilename: hit.Chunk.Filename(),
				ChunkIndex:       hit.Chunk.Index,
				SubQuery:         slot.subQuery.Text,
				SubQueryOrdinal:  slot.subQuery.Ordinal,
				Score:            hit.Score,
			}
			if seen[citation.Key()] {
				continue
			}
			seen[citation.Key()] = true
			result.Citations = append(result.Citations, citation)
		}
		results = append(results, result)
	}

	if len(results) == 0 {
		return []core.RetrievalResult{NoEvidenceResult()}
	}
	return results
}

// Release releases the worker pool.
// The orchestrator should not be used after calling Release.
func (o *Orchestrator) Release() {
	o.pool.Release()
}
