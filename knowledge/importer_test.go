package knowledge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/ai/mock"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage/badger"
	"github.com/poiesic/kbassist/storage/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingText struct {
	mu      sync.Mutex
	entries []*core.KnowledgeEntry
	err     error
}

func (s *recordingText) AddEntries(ctx context.Context, entries ...*core.KnowledgeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entries...)
	return s.err
}

type recordingVectors struct {
	entries []*core.KnowledgeEntry
	err     error
}

func (s *recordingVectors) ImportEntries(ctx context.Context, entries ...*core.KnowledgeEntry) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.entries = append(s.entries, entries...)
	return len(entries), nil
}

func setupImporter(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) (*Importer, *badger.Repositories) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })

	importer, err := NewImporter(repos.Knowledge, ai.NewEmbeddingClient(embedder, mock.DefaultDimensions), opts...)
	require.NoError(t, err)
	t.Cleanup(importer.Release)
	return importer, repos
}

func testEntries(n int) []*core.KnowledgeEntry {
	entries := make([]*core.KnowledgeEntry, n)
	for i := range entries {
		entries[i] = &core.KnowledgeEntry{
			Title:   fmt.Sprintf("Article %d", i+1),
			Content: fmt.Sprintf("Content of article %d.", i+1),
			Origin:  "IT",
			Kind:    core.KnowledgeConfluence,
		}
	}
	return entries
}

func TestImporter_Import(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	importer, repos := setupImporter(t, embedder, WithChunkSize(2), WithPoolSize(2))
	ctx := context.Background()

	stored, err := importer.Import(ctx, testEntries(5)...)
	require.NoError(t, err)
	require.Len(t, stored, 5)
	assert.Equal(t, 3, embedder.CallCount(), "5 entries in chunks of 2")

	count, err := repos.Knowledge.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	for _, e := range stored {
		got, err := repos.Knowledge.GetEntry(ctx, e.Id)
		require.NoError(t, err)
		assert.Len(t, got.Vector, mock.DefaultDimensions)
	}
}

func TestImporter_Searchable(t *testing.T) {
	importer, repos := setupImporter(t, mock.NewMockEmbedder())
	ctx := context.Background()

	entries := testEntries(3)
	_, err := importer.Import(ctx, entries...)
	require.NoError(t, err)

	query := mock.DeterministicVector(ai.DocumentText(entries[1].Title, entries[1].Content), mock.DefaultDimensions)
	hits, err := repos.Knowledge.FindSimilar(ctx, query, 0.99, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Article 2", hits[0].Entry.Title)
}

func TestImporter_ReimportReplaces(t *testing.T) {
	importer, repos := setupImporter(t, mock.NewMockEmbedder())
	ctx := context.Background()

	first, err := importer.Import(ctx, testEntries(2)...)
	require.NoError(t, err)
	second, err := importer.Import(ctx, testEntries(2)...)
	require.NoError(t, err)

	assert.Equal(t, first[0].Id, second[0].Id)
	count, err := repos.Knowledge.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestImporter_EmbeddingFailureStoresNothing(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}
	importer, repos := setupImporter(t, embedder)
	ctx := context.Background()

	_, err := importer.Import(ctx, testEntries(2)...)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingUnavailable)

	count, err := repos.Knowledge.CountEntries(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestImporter_InvalidEntry(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	importer, _ := setupImporter(t, embedder)

	entries := testEntries(1)
	entries[0].Content = " "
	_, err := importer.Import(context.Background(), entries...)
	assert.ErrorIs(t, err, core.ErrInvalidKnowledgeEntry)
	assert.Zero(t, embedder.CallCount())
}

func TestImporter_Empty(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	importer, _ := setupImporter(t, embedder)

	stored, err := importer.Import(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Zero(t, embedder.CallCount())
}

func TestImporter_Mirrors(t *testing.T) {
	text := &recordingText{}
	vectors := &recordingVectors{}
	importer, _ := setupImporter(t, mock.NewMockEmbedder(), WithTextIndex(text), WithVectorIndex(vectors))

	_, err := importer.Import(context.Background(), testEntries(3)...)
	require.NoError(t, err)
	assert.Len(t, text.entries, 3)
	require.Len(t, vectors.entries, 3)
	assert.NotZero(t, vectors.entries[0].Id, "mirrors see stored ids")
}

func TestImporter_PostgresMirrorKeepsIDs(t *testing.T) {
	db, sqlMock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sqlMock.ExpectBegin()
	sqlMock.ExpectExec("INSERT INTO knowledge_base").WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectExec("INSERT INTO knowledge_base").WillReturnResult(sqlmock.NewResult(0, 1))
	sqlMock.ExpectCommit()

	importer, repos := setupImporter(t, mock.NewMockEmbedder(), WithTextIndex(postgres.NewKnowledgeIndex(db)))
	ctx := context.Background()

	stored, err := importer.Import(ctx, testEntries(2)...)
	require.NoError(t, err)
	require.NoError(t, sqlMock.ExpectationsWereMet())
	require.Len(t, stored, 2)

	for _, e := range stored {
		got, err := repos.Knowledge.GetEntry(ctx, e.Id)
		require.NoError(t, err)
		assert.Equal(t, e.Title, got.Title)
	}
}

func TestImporter_MirrorFailure(t *testing.T) {
	text := &recordingText{err: errors.New("postgres down")}
	vectors := &recordingVectors{err: errors.New("weaviate down")}
	importer, repos := setupImporter(t, mock.NewMockEmbedder(), WithTextIndex(text), WithVectorIndex(vectors))
	ctx := context.Background()

	stored, err := importer.Import(ctx, testEntries(1)...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres down")
	assert.Contains(t, err.Error(), "weaviate down")
	assert.Len(t, stored, 1, "entries are stored even when a mirror fails")

	count, err := repos.Knowledge.CountEntries(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNewImporter_Validation(t *testing.T) {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Close()

	_, err = NewImporter(nil, ai.NewEmbeddingClient(mock.NewMockEmbedder(), 0))
	assert.ErrorIs(t, err, ErrRepositoryRequired)

	_, err = NewImporter(repos.Knowledge, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}
