// Package status tracks the progress of in-flight questions so clients can poll it.
package status

import (
	"fmt"
	"sync"
	"time"

	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/query"
)

// Stage names a step of answering a question.
type Stage string

// Stages a question passes through, in order.
const (
	StageUnknown     Stage = "unknown"
	StagePending     Stage = "pending"
	StageDecomposing Stage = "decomposing"
	StageSearching   Stage = "searching_documents"
	StageSummarizing Stage = "summarizing"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
)

// Progress returns the completion percentage reported for a stage.
func (s Stage) Progress() int {
	switch s {
	case StageDecomposing:
		return 10
	case StageSearching:
		return 40
	case StageSummarizing:
		return 70
	case StageDone, StageFailed:
		return 100
	}
	return 0
}

// Terminal reports whether no further updates follow the stage.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Status is a snapshot of one request's progress.
type Status struct {
	ID        string
	Stage     Stage
	Progress  int
	Message   string
	UpdatedAt time.Time
}

// Tracker holds the latest status of every tracked request.
// Safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]Status
	now      func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		statuses: make(map[string]Status),
		now:      time.Now,
	}
}

// Update records a request's stage with a human-readable message.
func (t *Tracker) Update(id string, stage Stage, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statuses[id] = Status{
		ID:        id,
		Stage:     stage,
		Progress:  stage.Progress(),
		Message:   message,
		UpdatedAt: t.now(),
	}
}

// Get returns a request's status. Unknown requests report StageUnknown.
func (t *Tracker) Get(id string) (Status, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	status, ok := t.statuses[id]
	if !ok {
		return Status{ID: id, Stage: StageUnknown}, false
	}
	return status, true
}

// Delete forgets a request.
func (t *Tracker) Delete(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.statuses, id)
}

// Prune forgets finished requests last updated before cutoff and returns how many were removed.
func (t *Tracker) Prune(cutoff time.Time) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	removed := 0
	for id, status := range t.statuses {
		if status.Stage.Terminal() && status.UpdatedAt.Before(cutoff) {
			delete(t.statuses, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked requests.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.statuses)
}

// Monitor returns a query.Monitor that reports a question's progress under id.
func (t *Tracker) Monitor(id string) query.Monitor {
	return &trackerMonitor{tracker: t, id: id}
}

type trackerMonitor struct {
	query.NoopMonitor
	tracker *Tracker
	id      string
}

func (m *trackerMonitor) Start(_, _ string) {
	m.tracker.Update(m.id, StageDecomposing, "Breaking the question into sub-questions")
}

func (m *trackerMonitor) AfterDecomposition(subQueries []core.SubQuery, _ time.Duration) {
	m.tracker.Update(m.id, StageSearching, fmt.Sprintf("Searching indexed documents for %d sub-questions", len(subQueries)))
}

func (m *trackerMonitor) AfterRetrieval(_ []core.RetrievalResult) {
	m.tracker.Update(m.id, StageSummarizing, "Synthesizing the answer")
}

func (m *trackerMonitor) Finish(answer *core.Answer, _ time.Duration, err error) {
	switch {
	case err != nil:
		m.tracker.Update(m.id, StageFailed, fmt.Sprintf("Question failed: %v", err))
	case answer.Status == core.AnswerStatusNoDocuments:
		m.tracker.Update(m.id, StageFailed, "No document found for this task.")
	case answer.Status == core.AnswerStatusSynthesisFailed:
		m.tracker.Update(m.id, StageFailed, "Answer synthesis failed")
	default:
		m.tracker.Update(m.id, StageDone, fmt.Sprintf("Analysis complete with %d citations", answer.NumCitations()))
	}
}
