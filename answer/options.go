package answer

import (
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbassist/fusion"
	"github.com/poiesic/kbassist/prompt"
	"github.com/poiesic/kbassist/retrieval"
)

const (
	// DefaultRetrievalTimeout bounds each index query.
	DefaultRetrievalTimeout = 300 * time.Millisecond

	// DefaultEmbeddingTimeout bounds embedding the question before the semantic query.
	DefaultEmbeddingTimeout = 2 * time.Second

	// DefaultInferenceTimeout bounds the language model call.
	DefaultInferenceTimeout = 30 * time.Second

	// DefaultHistoryTurns is the number of prior turns sent with each question.
	DefaultHistoryTurns = 5

	// DefaultPoolSize is the number of retrieval workers shared across requests.
	DefaultPoolSize = 64
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithMonitor sets the request observer.
func WithMonitor(monitor Monitor) Option {
	return func(o *Orchestrator) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		o.monitor = monitor
		return nil
	}
}

// WithSemantic enables vector retrieval: utterances are embedded by embedder
// and searched by retriever.
func WithSemantic(embedder Embedder, retriever SemanticSearcher) Option {
	return func(o *Orchestrator) error {
		o.embedder = embedder
		o.semantic = retriever
		return nil
	}
}

// WithLexical enables full-text retrieval.
func WithLexical(retriever LexicalSearcher) Option {
	return func(o *Orchestrator) error {
		o.lexical = retriever
		return nil
	}
}

// WithFuser replaces the default fuser.
func WithFuser(f *fusion.Fuser) Option {
	return func(o *Orchestrator) error {
		if f != nil {
			o.fuser = f
		}
		return nil
	}
}

// WithBudgeter replaces the default budgeter.
func WithBudgeter(b *prompt.Budgeter) Option {
	return func(o *Orchestrator) error {
		if b != nil {
			o.budgeter = b
		}
		return nil
	}
}

// WithSystemPrompt overrides prompt.DefaultSystemPrompt.
func WithSystemPrompt(system string) Option {
	return func(o *Orchestrator) error {
		if system != "" {
			o.systemPrompt = system
		}
		return nil
	}
}

// WithTopK sets how many fragments each retriever may return.
// Values of zero or less keep the retriever defaults.
func WithTopK(semantic, lexical int) Option {
	return func(o *Orchestrator) error {
		o.semanticTopK = semantic
		o.lexicalTopK = lexical
		return nil
	}
}

// WithMinScore sets the lowest similarity a vector hit may have.
func WithMinScore(minScore float64) Option {
	return func(o *Orchestrator) error {
		o.minScore = minScore
		return nil
	}
}

// WithMaxContextChars sets the context budget.
func WithMaxContextChars(n int) Option {
	return func(o *Orchestrator) error {
		if n > 0 {
			o.maxContextChars = n
		}
		return nil
	}
}

// WithHistoryTurns sets the history window.
func WithHistoryTurns(n int) Option {
	return func(o *Orchestrator) error {
		if n > 0 {
			o.historyTurns = n
		}
		return nil
	}
}

// WithTimeouts sets the per-retriever and inference timeouts.
// Zero values keep the defaults.
func WithTimeouts(retrieval, inference time.Duration) Option {
	return func(o *Orchestrator) error {
		if retrieval > 0 {
			o.retrievalTimeout = retrieval
		}
		if inference > 0 {
			o.inferenceTimeout = inference
		}
		return nil
	}
}

// WithEmbeddingTimeout sets how long embedding the question may take.
// The semantic index query is then bounded by the retrieval timeout.
func WithEmbeddingTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) error {
		if timeout > 0 {
			o.embeddingTimeout = timeout
		}
		return nil
	}
}

// WithPoolSize sets the retrieval worker pool size.
func WithPoolSize(size int) Option {
	return func(o *Orchestrator) error {
		if size < 2 {
			size = 2
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if o.pool != nil {
			o.pool.Release()
		}
		o.pool = pool
		return nil
	}
}

func defaults(o *Orchestrator) {
	o.logger = slog.Default()
	o.monitor = &noopMonitor{}
	o.fuser = fusion.New()
	o.budgeter = prompt.NewBudgeter()
	o.systemPrompt = prompt.DefaultSystemPrompt
	o.minScore = retrieval.DefaultMinScore
	o.maxContextChars = prompt.DefaultMaxChars
	o.historyTurns = DefaultHistoryTurns
	o.retrievalTimeout = DefaultRetrievalTimeout
	o.embeddingTimeout = DefaultEmbeddingTimeout
	o.inferenceTimeout = DefaultInferenceTimeout
}
