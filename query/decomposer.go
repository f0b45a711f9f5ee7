package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/core"
)

const decompositionPrompt = `You are a financial analyst assistant supporting M&A due diligence. Break the question below into 3-5 specific sub-questions that together answer it comprehensively.

User Question: %s

Requirements:
- Each sub-question covers one aspect (financial, operational, legal, risk, ...)
- Each sub-question is self-contained and specific
- Respond with ONLY a JSON array of strings and nothing else
- Example: ["What is the revenue trend?", "What are the key risks?"]

Sub-questions:`

var errMalformedSubQueries = errors.New("response is not a JSON array of sub-questions")

// Decomposer splits a question into focused sub-questions.
type Decomposer struct {
	model         ai.LanguageModel
	maxSubQueries int
	logger        *slog.Logger
}

// NewDecomposer creates a decomposer backed by model.
// Honors WithMaxSubQueries and WithLogger.
func NewDecomposer(model ai.LanguageModel, opts ...Option) (*Decomposer, error) {
	if model == nil {
		return nil, ErrLanguageModelRequired
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Decomposer{
		model:         model,
		maxSubQueries: o.maxSubQueries,
		logger:        o.logger.With("component", "decomposer"),
	}, nil
}

// Decompose returns between one and the configured maximum of sub-questions,
// with ordinals starting at 1 in generation order.
//
// Any response that is not a non-empty JSON array of strings falls back to the
// original question. Errors are only returned for cancellation and fatal
// provider failures.
func (d *Decomposer) Decompose(ctx context.Context, question string) ([]core.SubQuery, error) {
	fallback := []core.SubQuery{{Text: question, Ordinal: 1}}

	response, err := d.model.Complete(ctx, []ai.Message{
		{Role: ai.RoleUser, Content: fmt.Sprintf(decompositionPrompt, question)},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		err = fmt.Errorf("%w: %w", ErrDecompositionFailed, err)
		if ai.IsFatal(err) {
			return nil, err
		}
		d.logger.Warn("falling back to original question", "err", err)
		return fallback, nil
	}

	texts, err := parseSubQueries(response)
	if err != nil {
		d.logger.Warn("falling back to original question",
			"err", fmt.Errorf("%w: %w", ErrDecompositionFailed, err))
		return fallback, nil
	}
	if len(texts) > d.maxSubQueries {
		texts = texts[:d.maxSubQueries]
	}

	subQueries := make([]core.SubQuery, len(texts))
	for i, text := range texts {
		subQueries[i] = core.SubQuery{Text: text, Ordinal: i + 1}
	}
	d.logger.Debug("question decomposed", "question", question, "subQueries", len(subQueries))
	return subQueries, nil
}

// parseSubQueries extracts the non-blank strings of a JSON array response.
func parseSubQueries(response string) ([]string, error) {
	var items []any
	if err := json.Unmarshal([]byte(stripCodeFence(response)), &items); err != nil {
		return nil, fmt.Errorf("%w: %w", errMalformedSubQueries, err)
	}

	texts := make([]string, 0, len(items))
	for _, item := range items {
		text, ok := item.(string)
		if !ok {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			texts = append(texts, text)
		}
	}
	if len(texts) == 0 {
		return nil, errMalformedSubQueries
	}
	return texts, nil
}

// stripCodeFence removes a surrounding markdown code fence and its language tag.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
