package reembed

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/kbassist/ai"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

// DefaultChunkSize is the number of entries sent to the embedder in one request.
const DefaultChunkSize = 16

// VectorSink receives refreshed entries for an external vector index.
type VectorSink interface {
	ImportEntries(ctx context.Context, entries ...*core.KnowledgeEntry) (int, error)
}

// BatchProcessor embeds a batch of entries and writes the vectors back.
type BatchProcessor struct {
	repo           storage.KnowledgeRepository
	embedder       *ai.EmbeddingClient
	sink           VectorSink
	pool           *ants.Pool
	chunkSize      int
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a batch processor that embeds chunks inline.
func NewBatchProcessor(repo storage.KnowledgeRepository, embedder *ai.EmbeddingClient, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		chunkSize:      DefaultChunkSize,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process embeds every entry, then updates the whole batch in one write.
// Nothing is written if any chunk fails; the chunk errors are returned together.
func (bp *BatchProcessor) Process(ctx context.Context, entries []*core.KnowledgeEntry) error {
	if len(entries) == 0 {
		return nil
	}

	chunks := slices.Collect(slices.Chunk(entries, max(bp.chunkSize, 1)))
	errs := make([]error, len(chunks))

	var wg sync.WaitGroup
	for i, chunk := range chunks {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			errs[i] = bp.embedChunk(ctx, chunk)
		}
		if bp.pool == nil {
			task()
			continue
		}
		if err := bp.pool.Submit(task); err != nil {
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
	if err := result.ErrorOrNil(); err != nil {
		return err
	}

	err := RetryWithBackoff(ctx, func() error {
		_, err := bp.repo.UpdateEntries(ctx, entries...)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to update entries: %w", err)
	}

	if bp.sink == nil {
		return nil
	}
	err = RetryWithBackoff(ctx, func() error {
		_, err := bp.sink.ImportEntries(ctx, entries...)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to export vectors: %w", err)
	}
	return nil
}

func (bp *BatchProcessor) embedChunk(ctx context.Context, chunk []*core.KnowledgeEntry) error {
	texts := make([]string, len(chunk))
	for i, entry := range chunk {
		texts[i] = ai.DocumentText(entry.Title, entry.Content)
	}

	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		var err error
		vectors, err = bp.embedder.EmbedDocuments(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("entries %d-%d: %w", chunk[0].Id, chunk[len(chunk)-1].Id, err)
	}

	for i, entry := range chunk {
		entry.Vector = vectors[i]
	}
	return nil
}
