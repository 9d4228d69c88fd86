package retrieval

import "log/slog"

const (
	// DefaultSemanticTopK is how many vector hits are requested when topK is unset.
	DefaultSemanticTopK = 3

	// DefaultLexicalTopK is how many full-text hits are requested when topK is unset.
	DefaultLexicalTopK = 5

	// DefaultMinScore is the lowest similarity a vector hit may have.
	DefaultMinScore = 0.1
)

type settings struct {
	logger *slog.Logger
}

// Option configures a retriever.
type Option func(*settings)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

func applyOptions(component string, opts []Option) settings {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	s.logger = s.logger.With("component", component)
	return s
}
