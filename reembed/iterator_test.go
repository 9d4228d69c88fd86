package reembed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *badger.Repositories {
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { repos.Close() })
	return repos
}

// addEntries stores n entries titled "Policy 1".."Policy n".
func addEntries(t *testing.T, repos *badger.Repositories, n int) []*core.KnowledgeEntry {
	entries := make([]*core.KnowledgeEntry, n)
	for i := range entries {
		entries[i] = &core.KnowledgeEntry{
			Title:   fmt.Sprintf("Policy %d", i+1),
			Content: fmt.Sprintf("Body of policy number %d.", i+1),
			Origin:  "HR",
			Kind:    core.KnowledgeConfluence,
		}
	}
	added, err := repos.Knowledge.AddEntries(context.Background(), entries...)
	require.NoError(t, err)
	require.Len(t, added, n)
	return added
}

func TestEntryIterator_Basic(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 5)

	iter := NewEntryIterator(repos.Knowledge, 2)
	var sizes []int
	var ids []core.ID
	err := iter.ForEach(context.Background(), 0, func(entries []*core.KnowledgeEntry) error {
		sizes = append(sizes, len(entries))
		for _, e := range entries {
			ids = append(ids, e.Id)
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int{2, 2, 1}, sizes)
	require.Len(t, ids, 5)
	for i, e := range added {
		assert.Equal(t, e.Id, ids[i], "entries should come back in ID order")
	}
}

func TestEntryIterator_After(t *testing.T) {
	repos := setupTestDB(t)
	added := addEntries(t, repos, 4)

	iter := NewEntryIterator(repos.Knowledge, 10)
	var ids []core.ID
	err := iter.ForEach(context.Background(), added[1].Id, func(entries []*core.KnowledgeEntry) error {
		for _, e := range entries {
			ids = append(ids, e.Id)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []core.ID{added[2].Id, added[3].Id}, ids)
}

func TestEntryIterator_Empty(t *testing.T) {
	repos := setupTestDB(t)

	calls := 0
	err := NewEntryIterator(repos.Knowledge, 2).ForEach(context.Background(), 0, func([]*core.KnowledgeEntry) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, calls)
}

func TestEntryIterator_ExactMultiple(t *testing.T) {
	repos := setupTestDB(t)
	addEntries(t, repos, 4)

	calls := 0
	err := NewEntryIterator(repos.Knowledge, 2).ForEach(context.Background(), 0, func([]*core.KnowledgeEntry) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "a trailing empty page is not passed to fn")
}

func TestEntryIterator_StopsOnError(t *testing.T) {
	repos := setupTestDB(t)
	addEntries(t, repos, 5)

	boom := errors.New("boom")
	calls := 0
	err := NewEntryIterator(repos.Knowledge, 2).ForEach(context.Background(), 0, func([]*core.KnowledgeEntry) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestEntryIterator_ContextCancelled(t *testing.T) {
	repos := setupTestDB(t)
	addEntries(t, repos, 5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewEntryIterator(repos.Knowledge, 2).ForEach(ctx, 0, func([]*core.KnowledgeEntry) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestEntryIterator_DefaultBatchSize(t *testing.T) {
	iter := NewEntryIterator(nil, 0)
	assert.Equal(t, DefaultBatchSize, iter.batchSize)
}
