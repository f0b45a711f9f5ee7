package chunker

import "strings"

const (
	// DefaultSize is the default window size in runes.
	DefaultSize = 1000

	// DefaultOverlap is the default number of runes shared by consecutive windows.
	DefaultOverlap = 200
)

// Window is a half-open rune range [Start, End) of the source text.
type Window struct {
	Start int
	End   int
}

// Chunker splits text with a fixed size and overlap.
// It is stateless and safe for concurrent use.
type Chunker struct {
	size    int
	overlap int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithSize sets the window size in runes. Non-positive values are ignored.
func WithSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

// WithOverlap sets the overlap in runes. Negative values are ignored.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a Chunker using DefaultSize and DefaultOverlap unless overridden.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		size:    DefaultSize,
		overlap: DefaultOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Size returns the configured window size.
func (c *Chunker) Size() int {
	return c.size
}

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int {
	return c.overlap
}

// Split returns the trimmed, non-empty chunks of text.
func (c *Chunker) Split(text string) []string {
	return Split(text, c.size, c.overlap)
}

// Split chunks text into windows of size runes overlapping by overlap runes.
// Chunks are trimmed of surrounding whitespace and empty chunks are dropped.
// Empty input yields an empty result.
func Split(text string, size, overlap int) []string {
	runes := []rune(text)
	windows := windows(runes, size, overlap)

	chunks := make([]string, 0, len(windows))
	for _, w := range windows {
		chunk := strings.TrimSpace(string(runes[w.Start:w.End]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

// Windows returns the untrimmed rune ranges Split would produce.
// Consecutive windows never leave a gap and their starts strictly increase.
func Windows(text string, size, overlap int) []Window {
	return windows([]rune(text), size, overlap)
}

func windows(runes []rune, size, overlap int) []Window {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}

	n := len(runes)
	if n == 0 {
		return nil
	}

	out := make([]Window, 0, n/size+1)
	start := 0
	for start < n {
		end := start + size
		if end > n {
			end = n
		}

		if end < n {
			if bp := lastBoundary(runes[start:end]); bp >= 0 && float64(bp) > float64(size)*0.5 {
				end = start + bp + 1
			}
		}

		out = append(out, Window{Start: start, End: end})
		if end >= n {
			break
		}

		// The overlap can never reach back to the current start, otherwise
		// a boundary close to the start would stall the scan.
		step := overlap
		if produced := end - start; step >= produced {
			step = produced - 1
		}
		start = end - step
	}
	return out
}

// lastBoundary returns the index of the last sentence boundary in window, or -1.
func lastBoundary(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
