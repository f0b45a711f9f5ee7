package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/poiesic/dataroom/ai"
	"github.com/poiesic/dataroom/core"
)

// FallbackAnswer is returned in place of an answer when synthesis fails.
const FallbackAnswer = "Unable to generate comprehensive answer. Please try again."

const synthesisRequirements = `REQUIREMENTS:
1. Synthesize a comprehensive answer that addresses every aspect of the question
2. Reference the source documents naturally (e.g., "According to the 10-Q report..." or "The financial statements show...")
3. Use plain text ONLY, with no markdown, asterisks, hashtags or other formatting
4. Be concise but thorough
5. If sources conflict, say so
6. If information is missing, state it clearly

COMPREHENSIVE ANSWER:`

const (
	truncationMarker        = "\n[context truncated]"
	sectionTruncationMarker = "\n[data truncated]"
)

// Synthesizer combines retrieved context into a single cited answer.
type Synthesizer struct {
	model          ai.LanguageModel
	maxPromptRunes int
	logger         *slog.Logger
}

// NewSynthesizer creates a synthesizer backed by model.
// Honors WithMaxPromptRunes and WithLogger.
func NewSynthesizer(model ai.LanguageModel, opts ...Option) (*Synthesizer, error) {
	if model == nil {
		return nil, ErrLanguageModelRequired
	}
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	return &Synthesizer{
		model:          model,
		maxPromptRunes: o.maxPromptRunes,
		logger:         o.logger.With("component", "synthesizer"),
	}, nil
}

// Synthesize asks the language model once for an answer over input.
//
// The returned answer always carries the input's sub-questions and citations.
// When the model call fails the answer text is FallbackAnswer and the status is
// synthesis_failed; the error is also returned when it is fatal or the context
// was cancelled.
func (s *Synthesizer) Synthesize(ctx context.Context, input *core.SynthesisInput) (*core.Answer, error) {
	answer := &core.Answer{
		SubQueries: input.SubQueries,
		Citations:  Citations(input.Results),
		Reasoning:  Reasoning(input.SubQueries),
		Context:    FormatResults(input.Results),
		Status:     core.AnswerStatusAnswered,
	}
	if IsNoEvidence(input.Results) {
		answer.Status = core.AnswerStatusNoEvidence
	}

	start := time.Now()
	prompt := s.buildPrompt(input)
	response, err := s.model.Complete(ctx, []ai.Message{{Role: ai.RoleUser, Content: prompt}})
	if err == nil && strings.TrimSpace(response) == "" {
		err = fmt.Errorf("%w: empty response", ai.ErrProvider)
	}
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSynthesisFailed, err)
		s.logger.Error("answer synthesis failed", "err", err, "elapsed", time.Since(start))
		answer.Answer = FallbackAnswer
		answer.Status = core.AnswerStatusSynthesisFailed
		if ctx.Err() != nil || ai.IsFatal(err) {
			return answer, err
		}
		return answer, nil
	}

	answer.Answer = strings.TrimSpace(response)
	s.logger.Debug("answer synthesized", "promptRunes", utf8.RuneCountInString(prompt), "elapsed", time.Since(start))
	return answer, nil
}

// buildPrompt renders the synthesis prompt so the whole prompt stays within
// maxPromptRunes. The optional data sections are cut before retrieved context,
// which always keeps at least half of the room left by the fixed text.
func (s *Synthesizer) buildPrompt(input *core.SynthesisInput) string {
	head := "You are a financial analyst. Answer the user's question comprehensively using all of the context provided.\n\n" +
		"ORIGINAL QUESTION: " + input.Question + "\n\n" +
		"ANALYSIS FROM MULTIPLE PERSPECTIVES:\n"
	requirements := "\n\n" + synthesisRequirements

	var sections strings.Builder
	writeJSONSection(&sections, "Structured Financial Data", input.StructuredData, len(input.StructuredData) > 0)
	writeJSONSection(&sections, "Computed Metrics", input.Metrics, len(input.Metrics) > 0)
	insights := nonBlank(input.Insights)
	writeJSONSection(&sections, "Key Insights", insights, len(insights) > 0)

	contexts := FormatResults(input.Results)
	available := s.maxPromptRunes - utf8.RuneCountInString(head) - utf8.RuneCountInString(requirements)
	reserved := min(utf8.RuneCountInString(contexts), available/2)
	optional := cutRunes(sections.String(), available-reserved, sectionTruncationMarker)
	contexts = truncateRunes(contexts, available-utf8.RuneCountInString(optional))

	return head + contexts + optional + requirements
}

func writeJSONSection(b *strings.Builder, title string, value any, present bool) {
	if !present {
		return
	}
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return
	}
	b.WriteString("\n\n")
	b.WriteString(title)
	b.WriteString(":\n")
	b.Write(encoded)
}

// truncateRunes cuts s to at most limit runes, marking the cut.
func truncateRunes(s string, limit int) string {
	return cutRunes(s, limit, truncationMarker)
}

func cutRunes(s string, limit int, marker string) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	keep := limit - utf8.RuneCountInString(marker)
	if keep <= 0 {
		return ""
	}
	runes := []rune(s)
	return string(runes[:keep]) + marker
}

func nonBlank(values []string) []string {
	kept := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			kept = append(kept, v)
		}
	}
	return kept
}

// FormatResults renders each result as "[Sub-Question N]: text" followed by its
// context, separated by blank lines.
func FormatResults(results []core.RetrievalResult) string {
	blocks := make([]string, len(results))
	for i, result := range results {
		blocks[i] = fmt.Sprintf("[Sub-Question %d]: %s\n%s", result.SubQuery.Ordinal, result.SubQuery.Text, result.ContextText)
	}
	return strings.Join(blocks, "\n\n")
}

// Citations flattens the citations of results in order.
func Citations(results []core.RetrievalResult) []core.Citation {
	citations := []core.Citation{}
	for _, result := range results {
		citations = append(citations, result.Citations...)
	}
	return citations
}

// Reasoning lists one "Analyzed: ..." line per sub-question.
func Reasoning(subQueries []core.SubQuery) []string {
	lines := make([]string, len(subQueries))
	for i, subQuery := range subQueries {
		lines[i] = "Analyzed: " + subQuery.Text
	}
	return lines
}
