package query

import (
	"time"

	"github.com/poiesic/dataroom/core"
	"github.com/poiesic/dataroom/index"
)

// Monitor provides hooks to observe how a question is answered.
// SubQueryRetrieved and SubQueryFailed are called concurrently.
type Monitor interface {
	Start(taskID, question string)
	AfterDecomposition(subQueries []core.SubQuery, elapsed time.Duration)
	SubQueryRetrieved(subQuery core.SubQuery, hits []index.Hit, elapsed time.Duration)
	SubQueryFailed(subQuery core.SubQuery, err error)
	AfterRetrieval(results []core.RetrievalResult)
	AfterSynthesis(answer *core.Answer, elapsed time.Duration, err error)
	Finish(answer *core.Answer, elapsed time.Duration, err error)
}

// NoopMonitor ignores every event. Embed it to implement only some hooks.
type NoopMonitor struct{}

var _ Monitor = NoopMonitor{}

func (NoopMonitor) Start(_, _ string)                                                 {}
func (NoopMonitor) AfterDecomposition(_ []core.SubQuery, _ time.Duration)             {}
func (NoopMonitor) SubQueryRetrieved(_ core.SubQuery, _ []index.Hit, _ time.Duration) {}
func (NoopMonitor) SubQueryFailed(_ core.SubQuery, _ error)                           {}
func (NoopMonitor) AfterRetrieval(_ []core.RetrievalResult)                           {}
func (NoopMonitor) AfterSynthesis(_ *core.Answer, _ time.Duration, _ error)           {}
func (NoopMonitor) Finish(_ *core.Answer, _ time.Duration, _ error)                   {}

// Monitors fans events out to every non-nil monitor.
func Monitors(monitors ...Monitor) Monitor {
	active := make(multiMonitor, 0, len(monitors))
	for _, m := range monitors {
		if m != nil {
			active = append(active, m)
		}
	}
	switch len(active) {
	case 0:
		return NoopMonitor{}
	case 1:
		return active[0]
	}
	return active
}

type multiMonitor []Monitor

func (mm multiMonitor) Start(taskID, question string) {
	for _, m := range mm {
		m.Start(taskID, question)
	}
}

func (mm multiMonitor) AfterDecomposition(subQueries []core.SubQuery, elapsed time.Duration) {
	for _, m := range mm {
		m.AfterDecomposition(subQueries, elapsed)
	}
}

func (mm multiMonitor) SubQueryRetrieved(subQuery core.SubQuery, hits []index.Hit, elapsed time.Duration) {
	for _, m := range mm {
		m.SubQueryRetrieved(subQuery, hits, elapsed)
	}
}

func (mm multiMonitor) SubQueryFailed(subQuery core.SubQuery, err error) {
	for _, m := range mm {
		m.SubQueryFailed(subQuery, err)
	}
}

func (mm multiMonitor) AfterRetrieval(results []core.RetrievalResult) {
	for _, m := range mm {
		m.AfterRetrieval(results)
	}
}

func (mm multiMonitor) AfterSynthesis(answer *core.Answer, elapsed time.Duration, err error) {
	for _, m := range mm {
		m.AfterSynthesis(answer, elapsed, err)
	}
}

func (mm multiMonitor) Finish(answer *core.Answer, elapsed time.Duration, err error) {
	for _, m := range mm {
		m.Finish(answer, elapsed, err)
	}
}
