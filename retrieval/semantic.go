package retrieval

import (
	"context"
	"log/slog"

	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

// SemanticRetriever queries a vector index.
type SemanticRetriever struct {
	index  storage.VectorIndex
	logger *slog.Logger
}

// NewSemanticRetriever creates a retriever over index.
func NewSemanticRetriever(index storage.VectorIndex, opts ...Option) (*SemanticRetriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	s := applyOptions("semantic-retriever", opts)
	return &SemanticRetriever{index: index, logger: s.logger}, nil
}

// Search returns at most topK fragments scoring at least minScore against vector.
// A topK of zero or less uses DefaultSemanticTopK.
func (r *SemanticRetriever) Search(ctx context.Context, vector []float32, topK int, minScore float64) Result {
	if topK <= 0 {
		topK = DefaultSemanticTopK
	}

	hits, err := r.index.FindSimilar(ctx, vector, minScore, topK)
	if err != nil {
		r.logger.Warn("vector search failed", "err", err)
		return Degraded(err)
	}

	// Not every index applies minScore itself
	fragments := fragmentsFrom(hits, core.SourceSemantic)
	kept := fragments[:0]
	for _, f := range fragments {
		if f.Score >= minScore {
			kept = append(kept, f)
		}
	}
	if len(kept) > topK {
		kept = kept[:topK]
	}

	r.logger.Debug("vector search completed", "hits", len(kept))
	return Result{Fragments: kept}
}
