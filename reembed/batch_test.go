package reembed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/ai/mock"
	"github.com/poiesic/kbassist/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unnormalized returns a vector of magnitude 3 for every text.
func unnormalized(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0}
	}
	return result, nil
}

type recordingSink struct {
	mu      sync.Mutex
	entries []*core.KnowledgeEntry
	err     error
}

func (s *recordingSink) ImportEntries(ctx context.Context, entries ...*core.KnowledgeEntry) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.entries = append(s.entries, entries...)
	return len(entries), nil
}

func magnitude(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return sum
}

func TestBatchProcessor_Process(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 2)
	ctx := context.Background()

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = unnormalized
	processor := NewBatchProcessor(repos.Knowledge, ai.NewEmbeddingClient(embedder, 0), 3, time.Millisecond)

	require.NoError(t, processor.Process(ctx, added))

	for _, e := range added {
		stored, err := repos.Knowledge.GetEntry(ctx, e.Id)
		require.NoError(t, err)
		require.Len(t, stored.Vector, 3)
		assert.InDelta(t, 1.0, magnitude(stored.Vector), 0.01, "vector should be normalized")
		assert.Equal(t, e.Title, stored.Title)
	}
}

func TestBatchProcessor_EmbedsTitleAndContent(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 1)

	var seen []string
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		seen = append(seen, texts...)
		return unnormalized(ctx, texts)
	}
	processor := NewBatchProcessor(repos.Knowledge, ai.NewEmbeddingClient(embedder, 0), 1, time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), added))
	assert.Equal(t, []string{"Policy 1. Body of policy number 1."}, seen)
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	repos := setupTestDB(t)
	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(repos.Knowledge, ai.NewEmbeddingClient(embedder, 0), 3, time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), nil))
	assert.Zero(t, embedder.CallCount())
}

func TestBatchProcessor_RetriesEmbedding(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 2)

	var calls atomic.Int32
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		if calls.Add(1) < 3 {
			return nil, errors.New("temporary")
		}
		return unnormalized(ctx, texts)
	}
	processor := NewBatchProcessor(repos.Knowledge, ai.NewEmbeddingClient(embedder, 0), 3, time.Millisecond)

	require.NoError(t, processor.Process(context.Background(), added))
	assert.Equal(t, int32(3), calls.Load())
}

func TestBatchProcessor_FailureWritesNothing(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 4)
	ctx := context.Background()

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		for _, text := range texts {
			if strings.HasPrefix(text, "Policy 3") {
				return nil, errors.New("model overloaded")
			}
		}
		return unnormalized(ctx, texts)
	}
	processor := NewBatchProcessor(repos.Knowledge, ai.NewEmbeddingClient(embedder, 0), 2, time.Millisecond)
	processor.chunkSize = 2

	err := processor.Process(ctx, added)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)
	assert.Contains(t, err.Error(), "model overloaded")

	for _, e := range added {
		stored, err := repos.Knowledge.GetEntry(ctx, e.Id)
		require.NoError(t, err)
		assert.Empty(t, stored.Vector, "entry %d should not be updated", e.Id)
	}
}

func TestBatchProcessor_ChunksOnPool(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 10)
	ctx := context.Background()

	pool, err := ants.NewPool(3)
	require.NoError(t, err)
	defer pool.Release()

	embedder := mock.NewMockEmbedder()
	processor := NewBatchProcessor(repos.Knowledge, ai.NewEmbeddingClient(embedder, mock.DefaultDimensions), 1, time.Millisecond)
	processor.pool = pool
	processor.chunkSize = 3

	require.NoError(t, processor.Process(ctx, added))
	assert.Equal(t, 4, embedder.CallCount(), "10 entries in chunks of 3")

	for _, e := range added {
		stored, err := repos.Knowledge.GetEntry(ctx, e.Id)
		require.NoError(t, err)
		assert.InDeltaSlice(t, mock.DeterministicVector(ai.DocumentText(e.Title, e.Content), mock.DefaultDimensions), stored.Vector, 1e-5)
	}
}

func TestBatchProcessor_ExportsToSink(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 3)

	sink := &recordingSink{}
	processor := NewBatchProcessor(repos.Knowledge, ai.NewEmbeddingClient(mock.NewMockEmbedder(), mock.DefaultDimensions), 1, time.Millisecond)
	processor.sink = sink

	require.NoError(t, processor.Process(context.Background(), added))
	require.Len(t, sink.entries, 3)
	for _, e := range sink.entries {
		assert.Len(t, e.Vector, mock.DefaultDimensions)
	}
}

func TestBatchProcessor_SinkFailure(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 1)

	sink := &recordingSink{err: errors.New("weaviate down")}
	processor := NewBatchProcessor(repos.Knowledge, ai.NewEmbeddingClient(mock.NewMockEmbedder(), mock.DefaultDimensions), 2, time.Millisecond)
	processor.sink = sink

	err := processor.Process(context.Background(), added)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to export vectors")
}
