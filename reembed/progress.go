package reembed

import (
	"fmt"
	"io"
	"time"
)

// progressReporter accumulates a run's Summary batch by batch and rewrites a
// status line each time another interval of chunks has been examined.
// It is driven from a single goroutine.
type progressReporter struct {
	out      io.Writer
	expected int
	interval int
	now      func() time.Time
	started  time.Time
	printed  int // chunks examined when the last line was written
	summary  Summary
}

func newProgressReporter(out io.Writer, expected, interval int) *progressReporter {
	r := &progressReporter{
		out:      out,
		expected: expected,
		interval: max(interval, 1),
		now:      time.Now,
	}
	r.started = r.now()
	return r
}

// record accounts for one examined batch.
func (r *progressReporter) record(embedded, skipped int) {
	r.summary.Embedded += embedded
	r.summary.Skipped += skipped
	r.summary.Total += embedded + skipped
	if r.summary.Total-r.printed >= r.interval {
		r.print()
	}
}

// current returns the summary so far.
func (r *progressReporter) current() Summary {
	s := r.summary
	s.Elapsed = r.now().Sub(r.started)
	return s
}

// finish writes the final status line and returns the run's summary.
func (r *progressReporter) finish() Summary {
	s := r.print()
	fmt.Fprintln(r.out)
	return s
}

func (r *progressReporter) print() Summary {
	s := r.current()
	r.printed = s.Total
	fmt.Fprintf(r.out, "\r%s", formatProgress(s, r.expected))
	return s
}

// formatProgress renders s against the number of chunks the run expects to
// examine, with the average time per chunk and an estimate of the time left.
func formatProgress(s Summary, expected int) string {
	line := fmt.Sprintf("examined %d/%d chunks: %d embedded, %d skipped", s.Total, expected, s.Embedded, s.Skipped)
	if s.Total == 0 || s.Elapsed <= 0 {
		return line
	}
	perChunk := s.Elapsed / time.Duration(s.Total)
	line += fmt.Sprintf(", %s/chunk", perChunk.Round(time.Microsecond))
	if left := expected - s.Total; left > 0 {
		line += fmt.Sprintf(", about %s left", (perChunk * time.Duration(left)).Round(time.Second))
	}
	return line
}
