package ai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/kbassist/core"
)

// EmbeddingClient turns utterances into normalized vectors of a fixed dimension.
// Every failure is reported as core.ErrEmbeddingUnavailable.
type EmbeddingClient struct {
	embedder   Embedder
	dimensions int
	logger     *slog.Logger
}

// NewEmbeddingClient wraps embedder. A dimensions value of zero disables the length check.
func NewEmbeddingClient(embedder Embedder, dimensions int) *EmbeddingClient {
	return &EmbeddingClient{
		embedder:   embedder,
		dimensions: dimensions,
		logger:     slog.Default().With("component", "embedding-client"),
	}
}

// Embed prepares text and returns its unit-length embedding.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	prepared := PrepareEmbeddingText(text)
	if prepared == "" {
		return nil, fmt.Errorf("%w: nothing to embed", core.ErrEmbeddingUnavailable)
	}

	vector, err := c.embedder.EmbedText(ctx, prepared)
	if err != nil {
		c.logger.Debug("embedding failed", "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
	}
	if err := c.check(vector); err != nil {
		return nil, err
	}
	return NormalizeVector(vector), nil
}

// EmbedDocuments embeds knowledge entry texts in one batch.
func (c *EmbeddingClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	prepared := make([]string, len(texts))
	for i, text := range texts {
		prepared[i] = PrepareEmbeddingText(text)
	}

	vectors, err := c.embedder.EmbedTexts(ctx, prepared)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrEmbeddingUnavailable, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEmbeddingUnavailable, len(vectors), len(texts))
	}
	for _, v := range vectors {
		if err := c.check(v); err != nil {
			return nil, err
		}
		NormalizeVector(v)
	}
	return vectors, nil
}

func (c *EmbeddingClient) check(vector []float32) error {
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", core.ErrEmbeddingUnavailable)
	}
	if c.dimensions > 0 && len(vector) != c.dimensions {
		return fmt.Errorf("%w: dimension %d, expected %d", core.ErrEmbeddingUnavailable, len(vector), c.dimensions)
	}
	return nil
}
