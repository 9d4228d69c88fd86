// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

const (
	defaultPoolSize  = 4
	defaultChunkSize = 16
)

// TextSink receives stored entries for an external full-text index.
type TextSink interface {
	AddEntries(ctx context.Context, entries ...*core.KnowledgeEntry) error
}

// VectorSink receives stored entries for an external vector index.
type VectorSink interface {
	ImportEntries(ctx context.Context, entries ...*core.KnowledgeEntry) (int, error)
}

// Importer embeds knowledge entries and stores them.
type Importer struct {
	repo      storage.KnowledgeRepository
	embedder  *ai.EmbeddingClient
	text      TextSink
	vectors   VectorSink
	pool      *ants.Pool
	chunkSize int
	logger    *slog.Logger
}

// Option configures an Importer.
type Option func(*Importer) error

// WithPoolSize sets the number of embedding requests in flight at once.
func WithPoolSize(size int) Option {
	return func(i *Importer) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if i.pool != nil {
			i.pool.Release()
		}
		i.pool = pool
		return nil
	}
}

// WithChunkSize sets the number of entries per embedding request.
func WithChunkSize(size int) Option {
	return func(i *Importer) error {
		i.chunkSize = max(size, 1)
		return nil
	}
}

// WithTextIndex mirrors stored entries to an external full-text index.
func WithTextIndex(sink TextSink) Option {
	return func(i *Importer) error {
		i.text = sink
		return nil
	}
}

// WithVectorIndex mirrors stored entries to an external vector index.
func WithVectorIndex(sink VectorSink) Option {
	return func(i *Importer) error {
		i.vectors = sink
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Importer) error {
		if logger == nil {
			logger = slog.Default()
		}
		i.logger = logger.With("component", "knowledge-import")
		return nil
	}
}

// NewImporter creates an importer. Call Release when done.
func NewImporter(repo storage.KnowledgeRepository, embedder *ai.EmbeddingClient, opts ...Option) (*Importer, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	pool, err := ants.NewPool(defaultPoolSize)
	if err != nil {
		return nil, err
	}

	i := &Importer{
		repo:      repo,
		embedder:  embedder,
		pool:      pool,
		chunkSize: defaultChunkSize,
		logger:    slog.Default().With("component", "knowledge-import"),
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			i.Release()
			return nil, err
		}
	}
	return i, nil
}

// Release stops the embedding workers.
func (i *Importer) Release() {
	if i.pool != nil {
		i.pool.Release()
	}
}

// Import validates, embeds and stores entries. Re-importing an entry with the same
// title and content replaces the stored copy. Nothing is stored unless every
// entry was embedded. Mirror failures are returned after the entries are stored.
func (i *Importer) Import(ctx context.Context, entries ...*core.KnowledgeEntry) ([]*core.KnowledgeEntry, error) {
	if len(entries) == 0 {
		return []*core.KnowledgeEntry{}, nil
	}
	for _, entry := range entries {
		if err := core.ValidateKnowledgeEntry(entry); err != nil {
			return nil, err
		}
	}

	if err := i.embed(ctx, entries); err != nil {
		return nil, err
	}

	stored, err := i.repo.AddEntries(ctx, entries...)
	if err != nil {
		return nil, fmt.Errorf("failed to store entries: %w", err)
	}
	i.logger.Info("stored knowledge entries", "entries", len(stored))

	var result *multierror.Error
	if i.text != nil {
		if err := i.text.AddEntries(ctx, stored...); err != nil {
			result = multierror.Append(result, fmt.Errorf("text index: %w", err))
		}
	}
	if i.vectors != nil {
		n, err := i.vectors.ImportEntries(ctx, stored...)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("vector index: %w", err))
		} else {
			i.logger.Debug("exported vectors", "entries", n)
		}
	}
	return stored, result.ErrorOrNil()
}

// embed fills in every entry's vector, one pool task per chunk.
func (i *Importer) embed(ctx context.Context, entries []*core.KnowledgeEntry) error {
	chunks := slices.Collect(slices.Chunk(entries, i.chunkSize))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for n, chunk := range chunks {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			errs[n] = i.embedChunk(ctx, chunk)
		}
		if err := i.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	var result *multierror.Error
	for _, err := range errs {
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (i *Importer) embedChunk(ctx context.Context, chunk []*core.KnowledgeEntry) error {
	texts := make([]string, len(chunk))
	for n, entry := range chunk {
		texts[n] = ai.DocumentText(entry.Title, entry.Content)
	}
	vectors, err := i.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		i.logger.Error("error generating embeddings", "entries", len(chunk), "err", err)
		return fmt.Errorf("%q: %w", chunk[0].Title, err)
	}
	for n, entry := range chunk {
		entry.Vector = vectors[n]
	}
	return nil
}
