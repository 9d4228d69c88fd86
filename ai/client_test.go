package ai_test

import (
	"context"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/ai/mock"
	"github.com/poiesic/kbassist/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestEmbeddingClient_Embed(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	var seen string
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		seen = text
		return []float32{3, 4, 0}, nil
	}
	client := ai.NewEmbeddingClient(embedder, 3)

	vector, err := client.Embed(context.Background(), "  What is   the *remote* work policy?  ")
	require.NoError(t, err)
	assert.Equal(t, "What is the remote work policy?", seen)
	assert.InDelta(t, 1.0, norm(vector), 1e-6)
	assert.InDelta(t, 0.6, vector[0], 1e-6)
}

func TestEmbeddingClient_Failures(t *testing.T) {
	t.Run("service error", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
			return nil, assert.AnError
		}
		_, err := ai.NewEmbeddingClient(embedder, 384).Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("wrong dimension", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		_, err := ai.NewEmbeddingClient(embedder, 768).Embed(context.Background(), "hello")
		assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
	})

	t.Run("nothing left after cleaning", func(t *testing.T) {
		embedder := mock.NewMockEmbedder()
		_, err := ai.NewEmbeddingClient(embedder, 384).Embed(context.Background(), "  ***  ")
		assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
		assert.Equal(t, 0, embedder.CallCount())
	})
}

func TestEmbeddingClient_EmbedDocuments(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	client := ai.NewEmbeddingClient(embedder, mock.DefaultDimensions)

	vectors, err := client.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for _, v := range vectors {
		assert.Len(t, v, mock.DefaultDimensions)
		assert.InDelta(t, 1.0, norm(v), 1e-5)
	}

	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1}}, nil
	}
	_, err = client.EmbedDocuments(context.Background(), []string{"a", "b"})
	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
}

func TestPrepareEmbeddingText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trims and collapses", "  hello \n\t world  ", "hello world"},
		{"keeps punctuation", "Yes, no. Maybe? Wow! self-service", "Yes, no. Maybe? Wow! self-service"},
		{"drops symbols", "cost: $100 (approx) #tag", "cost 100 approx tag"},
		{"keeps underscores and digits", "snake_case 42", "snake_case 42"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ai.PrepareEmbeddingText(tt.input))
		})
	}

	t.Run("limits length", func(t *testing.T) {
		out := ai.PrepareEmbeddingText(strings.Repeat("a", 1000))
		assert.Equal(t, ai.MaxEmbeddingRunes, utf8.RuneCountInString(out))
	})
}

func TestDocumentText(t *testing.T) {
	assert.Equal(t, "Vacation. 20 days", ai.DocumentText("Vacation", "20 days"))
	assert.Equal(t, "20 days", ai.DocumentText(" ", "20 days"))
}

func TestNormalizeVector(t *testing.T) {
	v := ai.NormalizeVector([]float32{0, 3, 4})
	assert.InDelta(t, 0.6, v[1], 1e-6)
	assert.InDelta(t, 0.8, v[2], 1e-6)

	zero := ai.NormalizeVector([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
}
