package badger

import (
	"cmp"
	"context"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

// KnowledgeRepository implements storage.KnowledgeRepository for BadgerDB.
// Both indexes scan every entry; suitable for knowledge bases of a few
// thousand articles.
type KnowledgeRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.KnowledgeRepository = (*KnowledgeRepository)(nil)

// NewKnowledgeRepository creates a new KnowledgeRepository.
func NewKnowledgeRepository(backend *Backend) (*KnowledgeRepository, error) {
	idSeq, err := backend.GetSequence(knowledgeIDSeq)
	if err != nil {
		return nil, err
	}

	return &KnowledgeRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *KnowledgeRepository) Close() error {
	return r.idSeq.Release()
}

// AddEntries stores entries. An entry with the same title and content as a stored
// one replaces it in place, keeping its ID and InsertedAt.
func (r *KnowledgeRepository) AddEntries(ctx context.Context, entries ...*core.KnowledgeEntry) ([]*core.KnowledgeEntry, error) {
	for _, entry := range entries {
		if err := core.ValidateKnowledgeEntry(entry); err != nil {
			return nil, err
		}
	}

	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		now := timestamp()
		for _, entry := range entries {
			hashKey := makeKnowledgeHashKey(entry.Fingerprint())
			existingID, err := readIDValue(tx, hashKey)
			if err != nil {
				return err
			}

			if existingID != 0 {
				existing, err := readKnowledgeEntry(tx, makeKnowledgeKey(existingID))
				if err != nil {
					return err
				}
				entry.Id = existingID
				if existing != nil {
					entry.InsertedAt = existing.InsertedAt
				}
			} else {
				id, err := nextID(r.idSeq)
				if err != nil {
					return err
				}
				entry.Id = core.ID(id)
				entry.InsertedAt = now
			}
			entry.UpdatedAt = now

			if err := tx.Set(makeKnowledgeKey(entry.Id), storage.MarshalKnowledgeEntry(entry)); err != nil {
				return err
			}
			if err := tx.Set(hashKey, storage.MarshalID(entry.Id)); err != nil {
				return err
			}
		}
		return nil
	})

	return entries, err
}

// UpdateEntries overwrites existing entries.
func (r *KnowledgeRepository) UpdateEntries(ctx context.Context, entries ...*core.KnowledgeEntry) ([]*core.KnowledgeEntry, error) {
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, entry := range entries {
			key := makeKnowledgeKey(entry.Id)
			old, err := readKnowledgeEntry(tx, key)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			entry.InsertedAt = old.InsertedAt
			entry.UpdatedAt = timestamp()
			if err := tx.Set(key, storage.MarshalKnowledgeEntry(entry)); err != nil {
				return err
			}

			// Move the fingerprint index if title or content changed
			if oldFP, newFP := old.Fingerprint(), entry.Fingerprint(); oldFP != newFP {
				if err := tx.Delete(makeKnowledgeHashKey(oldFP)); err != nil {
					return err
				}
				if err := tx.Set(makeKnowledgeHashKey(newFP), storage.MarshalID(entry.Id)); err != nil {
					return err
				}
			}
		}
		return nil
	})

	return entries, err
}

// GetEntry retrieves a single entry by ID.
func (r *KnowledgeRepository) GetEntry(ctx context.Context, id core.ID) (*core.KnowledgeEntry, error) {
	var result *core.KnowledgeEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readKnowledgeEntry(tx, makeKnowledgeKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// EntriesAfter returns up to limit entries with ID greater than after, in ID order.
func (r *KnowledgeRepository) EntriesAfter(ctx context.Context, after core.ID, limit int) ([]*core.KnowledgeEntry, error) {
	var results []*core.KnowledgeEntry
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(knowledgePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(makeKnowledgeKey(after + 1)); iter.Valid(); iter.Next() {
			if limit > 0 && len(results) >= limit {
				break
			}
			entry, err := readKnowledgeItem(iter.Item())
			if err != nil {
				return err
			}
			results = append(results, entry)
		}
		return nil
	}, false)
	return results, err
}

// CountEntries returns the number of stored entries.
func (r *KnowledgeRepository) CountEntries(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(knowledgePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// FindSimilar finds entries whose vectors are similar to the given vector.
// Implements storage.VectorIndex interface.
func (r *KnowledgeRepository) FindSimilar(ctx context.Context, vector []float32, minScore float64, limit int) ([]*core.ScoredEntry, error) {
	var results []*core.ScoredEntry

	err := r.scan(ctx, func(entry *core.KnowledgeEntry) {
		// Skip entries without embeddings
		if len(entry.Vector) == 0 {
			return
		}

		// Cosine similarity (dot product for normalized vectors)
		similarity := float64(dotProduct(vector, entry.Vector))
		if similarity >= minScore {
			results = append(results, &core.ScoredEntry{Entry: entry, Score: similarity})
		}
	})
	if err != nil {
		return nil, err
	}

	// Stable so equal scores keep insertion order
	slices.SortStableFunc(results, func(a, b *core.ScoredEntry) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchText finds entries containing every query term.
// Implements storage.TextIndex interface.
func (r *KnowledgeRepository) SearchText(ctx context.Context, query string, limit int) ([]*core.ScoredEntry, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return []*core.ScoredEntry{}, nil
	}

	var results []*core.ScoredEntry
	err := r.scan(ctx, func(entry *core.KnowledgeEntry) {
		if score, ok := textRank(terms, entry.Title, entry.Content); ok {
			results = append(results, &core.ScoredEntry{Entry: entry, Score: score})
		}
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(results, compareTextResults)

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// compareTextResults orders by rank descending, then administrative entries first.
func compareTextResults(a, b *core.ScoredEntry) int {
	if c := cmp.Compare(b.Score, a.Score); c != 0 {
		return c
	}
	switch {
	case a.Entry.Authoritative() && !b.Entry.Authoritative():
		return -1
	case !a.Entry.Authoritative() && b.Entry.Authoritative():
		return 1
	}
	return 0
}

// scan visits every entry in insertion order, stopping early if ctx is cancelled.
func (r *KnowledgeRepository) scan(ctx context.Context, fn func(*core.KnowledgeEntry)) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(knowledgePrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			entry, err := readKnowledgeItem(iter.Item())
			if err != nil {
				return err
			}
			fn(entry)
		}
		return nil
	}, false)
}

// Helper methods

func readKnowledgeEntry(tx *badger.Txn, key []byte) (*core.KnowledgeEntry, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}
	return readKnowledgeItem(item)
}

func readKnowledgeItem(item *badger.Item) (*core.KnowledgeEntry, error) {
	var entry *core.KnowledgeEntry
	err := item.Value(func(val []byte) error {
		var unmarshalErr error
		entry, unmarshalErr = storage.UnmarshalKnowledgeEntry(val)
		return unmarshalErr
	})
	return entry, err
}

// readIDValue reads an ID stored as a value. Returns 0 if the key doesn't exist.
func readIDValue(tx *badger.Txn, key []byte) (core.ID, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	var id core.ID
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		id, unmarshalErr = storage.UnmarshalID(val)
		return unmarshalErr
	})
	return id, err
}

// dotProduct calculates the dot product of two vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
