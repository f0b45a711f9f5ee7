package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/index"
)

// NoDocumentsAnswer is the answer for tasks without indexed documents.
const NoDocumentsAnswer = "No relevant documents were found for this task."

// Request is a question asked against one task.
// StructuredData, Metrics and Insights are optional extra evidence.
type Request struct {
	TaskID         string
	Question       string
	StructuredData map[string]string
	Metrics        map[string]float64
	Insights       []string
}

// Validate checks the task ID and question.
func (r Request) Validate() error {
	if err := core.ValidateTaskID(r.TaskID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Question) == "" {
		return ErrEmptyQuestion
	}
	return nil
}

// Engine answers questions by decomposing, retrieving and synthesizing.
type Engine struct {
	registry     *index.Registry
	decomposer   *Decomposer
	orchestrator *Orchestrator
	synthesizer  *Synthesizer
	monitor      Monitor
	logger       *slog.Logger
}

// NewEngine creates an engine answering from registry with model.
func NewEngine(registry *index.Registry, model ai.LanguageModel, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, ErrRegistryRequired
	}
	if model == nil {
		return nil, ErrLanguageModelRequired
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}

	decomposer, err := NewDecomposer(model, opts...)
	if err != nil {
		return nil, err
	}
	synthesizer, err := NewSynthesizer(model, opts...)
	if err != nil {
		return nil, err
	}
	orchestrator, err := NewOrchestrator(registry, opts...)
	if err != nil {
		return nil, err
	}

	return &Engine{
		registry:     registry,
		decomposer:   decomposer,
		orchestrator: orchestrator,
		synthesizer:  synthesizer,
		monitor:      o.monitor,
		logger:       o.logger.With("component", "query"),
	}, nil
}

// Ask answers a question against the request's task.
func (e *Engine) Ask(ctx context.Context, req Request) (*core.Answer, error) {
	return e.AskWithMonitor(ctx, req, nil)
}

// AskWithMonitor answers a question, reporting each stage to monitor as well as
// the engine's own monitor.
//
// The returned answer is never nil. Errors are returned only for invalid
// requests, cancellation and fatal provider failures; partial results gathered
// before such a failure are kept in the answer.
func (e *Engine) AskWithMonitor(ctx context.Context, req Request, monitor Monitor) (*core.Answer, error) {
	monitor = Monitors(e.monitor, monitor)
	start := time.Now()
	monitor.Start(req.TaskID, req.Question)

	answer, err := e.ask(ctx, req, monitor)
	elapsed := time.Since(start)
	monitor.Finish(answer, elapsed, err)

	if err != nil {
		e.logger.Error("question failed", "task", req.TaskID, "err", err, "elapsed", elapsed)
	} else {
		e.logger.Info("question answered", "task", req.TaskID, "status", answer.Status,
			"subQueries", answer.NumSubQueries(), "citations", answer.NumCitations(), "elapsed", elapsed)
	}
	return answer, err
}

func (e *Engine) ask(ctx context.Context, req Request, monitor Monitor) (*core.Answer, error) {
	answer := &core.Answer{
		SubQueries: []core.SubQuery{},
		Citations:  []core.Citation{},
		Reasoning:  []string{},
	}
	if err := req.Validate(); err != nil {
		return answer, err
	}

	if e.registry.Len(req.TaskID) == 0 {
		answer.Answer = NoDocumentsAnswer
		answer.Status = core.AnswerStatusNoDocuments
		return answer, nil
	}

	stageStart := time.Now()
	subQueries, err := e.decomposer.Decompose(ctx, req.Question)
	if err != nil {
		answer.Answer = FallbackAnswer
		answer.Status = core.AnswerStatusSynthesisFailed
		return answer, err
	}
	monitor.AfterDecomposition(subQueries, time.Since(stageStart))
	answer.SubQueries = subQueries
	answer.Reasoning = Reasoning(subQueries)

	results, err := e.orchestrator.retrieveAll(ctx, req.TaskID, subQueries, monitor)
	if err != nil {
		answer.Answer = FallbackAnswer
		answer.Status = core.AnswerStatusSynthesisFailed
		return answer, fmt.Errorf("retrieve context: %w", err)
	}

	stageStart = time.Now()
	synthesized, err := e.synthesizer.Synthesize(ctx, &core.SynthesisInput{
		Question:       req.Question,
		SubQueries:     subQueries,
		Results:        results,
		StructuredData: req.StructuredData,
		Metrics:        req.Metrics,
		Insights:       req.Insights,
	})
	monitor.AfterSynthesis(synthesized, time.Since(stageStart), err)
	return synthesized, err
}

// Release releases the engine's worker pool.
// The engine should not be used after calling Release.
func (e *Engine) Release() {
	e.orchestrator.Release()
}
