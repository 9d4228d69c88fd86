package retrieval

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

// LexicalRetriever queries a full-text index.
type LexicalRetriever struct {
	index  storage.TextIndex
	logger *slog.Logger
}

// NewLexicalRetriever creates a retriever over index.
func NewLexicalRetriever(index storage.TextIndex, opts ...Option) (*LexicalRetriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	s := applyOptions("lexical-retriever", opts)
	return &LexicalRetriever{index: index, logger: s.logger}, nil
}

// Search returns at most topK fragments matching query, in the index's rank order.
// A topK of zero or less uses DefaultLexicalTopK.
func (r *LexicalRetriever) Search(ctx context.Context, query string, topK int) Result {
	if topK <= 0 {
		topK = DefaultLexicalTopK
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{Fragments: []core.Fragment{}}
	}

	hits, err := r.index.SearchText(ctx, query, topK)
	if err != nil {
		r.logger.Warn("full-text search failed", "err", err)
		return Degraded(err)
	}

	fragments := fragmentsFrom(hits, core.SourceLexical)
	if len(fragments) > topK {
		fragments = fragments[:topK]
	}

	r.logger.Debug("full-text search completed", "hits", len(fragments))
	return Result{Fragments: fragments}
}
