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

package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

// ProcessorType names the checkpoint a reembedding run saves its position under.
const ProcessorType = "knowledge_reembed"

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of entries read, written and checkpointed together
	BatchSize int

	// ChunkSize is the number of entries in each embedding request
	ChunkSize int

	// Workers is the number of embedding requests in flight at once
	Workers int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ChunkSize:      DefaultChunkSize,
		Workers:        4,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder orchestrates the reembedding of every knowledge entry.
type Reembedder struct {
	repo        storage.KnowledgeRepository
	checkpoints storage.CheckpointRepository
	config      *Config
	progress    io.Writer
	pool        *ants.Pool
	processor   *BatchProcessor
	iterator    *EntryIterator
	logger      *slog.Logger
}

// Option configures a Reembedder.
type Option func(*Reembedder)

// WithCheckpoints makes runs resumable by saving the last finished entry ID.
func WithCheckpoints(repo storage.CheckpointRepository) Option {
	return func(r *Reembedder) {
		r.checkpoints = repo
	}
}

// WithVectorSink mirrors every refreshed batch to an external vector index.
func WithVectorSink(sink VectorSink) Option {
	return func(r *Reembedder) {
		r.processor.sink = sink
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reembedder) {
		if logger != nil {
			r.logger = logger.With("component", "reembed")
		}
	}
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
// Call Release when done.
func NewReembedder(repo storage.KnowledgeRepository, embedder *ai.EmbeddingClient, config *Config, progress io.Writer, opts ...Option) (*Reembedder, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	pool, err := ants.NewPool(max(config.Workers, 1))
	if err != nil {
		return nil, err
	}

	processor := NewBatchProcessor(repo, embedder, config.MaxRetries, config.RetryDelay)
	processor.pool = pool
	if config.ChunkSize > 0 {
		processor.chunkSize = config.ChunkSize
	}

	r := &Reembedder{
		repo:      repo,
		config:    config,
		progress:  progress,
		pool:      pool,
		processor: processor,
		iterator:  NewEntryIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Release stops the embedding workers.
func (r *Reembedder) Release() {
	r.pool.Release()
}

// Run reembeds every entry after the saved checkpoint, or all entries when
// there is none. A run that reaches the end clears its checkpoint.
func (r *Reembedder) Run(ctx context.Context) error {
	total, err := r.repo.CountEntries(ctx)
	if err != nil {
		return fmt.Errorf("failed to count entries: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No entries found in knowledge base (0 entries)\n")
		return nil
	}

	var after core.ID
	if r.checkpoints != nil {
		checkpoint, err := r.checkpoints.LoadCheckpoint(ctx, ProcessorType)
		if err != nil {
			return fmt.Errorf("failed to load checkpoint: %w", err)
		}
		if checkpoint != nil {
			after = checkpoint.LastID
			fmt.Fprintf(r.progress, "Resuming after entry %d\n", after)
		}
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d entries (batch size: %d)\n",
		total, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	err = r.iterator.ForEach(ctx, after, func(entries []*core.KnowledgeEntry) error {
		if err := r.processor.Process(ctx, entries); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		tracker.Add(len(entries))

		if r.checkpoints == nil {
			return nil
		}
		lastID := entries[len(entries)-1].Id
		if err := r.checkpoints.SaveCheckpoint(ctx, &core.Checkpoint{ProcessorType: ProcessorType, LastID: lastID}); err != nil {
			return fmt.Errorf("failed to save checkpoint: %w", err)
		}
		r.logger.Debug("checkpoint saved", "lastID", lastID)
		return nil
	})
	if err != nil {
		return err
	}

	tracker.Finish()

	if r.checkpoints != nil {
		if err := r.checkpoints.ClearCheckpoint(ctx, ProcessorType); err != nil {
			r.logger.Warn("failed to clear checkpoint", "err", err)
		}
	}

	processed := tracker.Current()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d entries in %v (%.1f entries/sec)\n",
		processed, elapsed.Round(time.Millisecond), float64(processed)/elapsed.Seconds())
	return nil
}
