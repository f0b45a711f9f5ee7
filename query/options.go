package query

import (
	"errors"
	"log/slog"

	"github.com/poiesic/dataroom/index"
)

const (
	// DefaultWorkers is the number of sub-questions searched concurrently.
	DefaultWorkers = 5

	// DefaultMaxSubQueries caps how many sub-questions a question is split into.
	DefaultMaxSubQueries = 5

	// DefaultMaxPromptRunes bounds the synthesis prompt length.
	DefaultMaxPromptRunes = 120000
)

type options struct {
	topK           int
	workers        int
	maxSubQueries  int
	maxPromptRunes int
	monitor        Monitor
	logger         *slog.Logger
}

// Option configures the query components.
type Option func(*options) error

// WithTopK sets how many chunks are retrieved per sub-question.
// Default is index.DefaultTopK.
func WithTopK(k int) Option {
	return func(o *options) error {
		if k < 1 {
			return errors.New("top k must be positive")
		}
		o.topK = k
		return nil
	}
}

// WithWorkers sets how many sub-questions are searched concurrently.
// Default is DefaultWorkers.
func WithWorkers(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.New("workers must be positive")
		}
		o.workers = n
		return nil
	}
}

// WithMaxSubQueries caps the number of sub-questions kept from decomposition.
// Default is DefaultMaxSubQueries.
func WithMaxSubQueries(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.New("max sub-queries must be positive")
		}
		o.maxSubQueries = n
		return nil
	}
}

// WithMaxPromptRunes bounds the synthesis prompt length in characters.
// Default is DefaultMaxPromptRunes.
func WithMaxPromptRunes(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.New("max prompt runes must be positive")
		}
		o.maxPromptRunes = n
		return nil
	}
}

// WithMonitor observes every question the component handles.
func WithMonitor(monitor Monitor) Option {
	return func(o *options) error {
		o.monitor = monitor
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

func newOptions(opts []Option) (*options, error) {
	o := &options{
		topK:           index.DefaultTopK,
		workers:        DefaultWorkers,
		maxSubQueries:  DefaultMaxSubQueries,
		maxPromptRunes: DefaultMaxPromptRunes,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
