package storage

import (
	"context"
	"time"

	"github.com/poiesic/kbassist/core"
)

// ConversationRepository persists sessions and their turns.
// Implementations must be thread-safe and support concurrent access.
type ConversationRepository interface {
	// CreateSession stores a new session.
	// Generates an ID if session.ID is empty and sets CreatedAt/UpdatedAt if zero.
	CreateSession(ctx context.Context, session *core.Session) (*core.Session, error)

	// GetSession retrieves a session by ID.
	// Returns ErrNotFound if the session doesn't exist.
	GetSession(ctx context.Context, id string) (*core.Session, error)

	// AppendTurn stores a turn and advances the owning session's UpdatedAt.
	// Both writes commit together or not at all.
	// Generates the turn ID and CreatedAt. Returns ErrNotFound if the session doesn't exist.
	AppendTurn(ctx context.Context, turn *core.Turn) (*core.Turn, error)

	// RecentTurns returns up to limit of the newest turns in a session, oldest first.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]*core.Turn, error)

	// Turns returns every turn in a session, oldest first.
	Turns(ctx context.Context, sessionID string) ([]*core.Turn, error)

	// ListSessions returns a user's sessions ordered by UpdatedAt descending.
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]*core.Session, error)

	// SearchSessions returns a user's sessions whose title, messages or responses
	// contain query (case-insensitive), ordered by UpdatedAt descending.
	SearchSessions(ctx context.Context, userID, query string, limit int) ([]*core.Session, error)

	// RenameSession replaces a session title and advances UpdatedAt.
	// Returns ErrNotFound if the session doesn't exist.
	RenameSession(ctx context.Context, id, title string) (*core.Session, error)

	// Stats summarizes a user's sessions and turns as of now.
	// A user without sessions gets zero counts and an empty DailyUsage.
	Stats(ctx context.Context, userID string, now time.Time) (*core.ConversationStats, error)

	// DeleteSession removes a session and all of its turns.
	// Returns ErrNotFound if the session doesn't exist.
	DeleteSession(ctx context.Context, id string) error

	// Close releases resources held by the repository.
	Close() error
}

// VectorIndex finds knowledge by embedding similarity.
type VectorIndex interface {
	// FindSimilar returns up to limit entries with score >= minScore, highest first.
	// Entries with equal scores keep the index's insertion order.
	FindSimilar(ctx context.Context, vector []float32, minScore float64, limit int) ([]*core.ScoredEntry, error)
}

// TextIndex finds knowledge by full-text match.
type TextIndex interface {
	// SearchText returns up to limit entries matching every query term, ordered by
	// relevance descending with administrative entries ahead of equally ranked others.
	SearchText(ctx context.Context, query string, limit int) ([]*core.ScoredEntry, error)
}

// KnowledgeRepository stores knowledge entries and serves both indexes over them.
type KnowledgeRepository interface {
	VectorIndex
	TextIndex

	// AddEntries stores new entries, assigning sequential IDs and timestamps.
	// An entry whose title and content match an existing entry replaces it and keeps its ID.
	AddEntries(ctx context.Context, entries ...*core.KnowledgeEntry) ([]*core.KnowledgeEntry, error)

	// UpdateEntries overwrites existing entries and refreshes UpdatedAt.
	// Returns ErrNotFound if any entry doesn't exist.
	UpdateEntries(ctx context.Context, entries ...*core.KnowledgeEntry) ([]*core.KnowledgeEntry, error)

	// GetEntry retrieves an entry by ID.
	// Returns ErrNotFound if the entry doesn't exist.
	GetEntry(ctx context.Context, id core.ID) (*core.KnowledgeEntry, error)

	// EntriesAfter returns up to limit entries with ID greater than after, in ID order.
	EntriesAfter(ctx context.Context, after core.ID, limit int) ([]*core.KnowledgeEntry, error)

	// CountEntries returns the number of stored entries.
	CountEntries(ctx context.Context) (int, error)

	// Close releases resources held by the repository.
	Close() error
}

// CheckpointRepository persists progress markers for resumable jobs.
type CheckpointRepository interface {
	// SaveCheckpoint stores a checkpoint, replacing any previous one for the processor type.
	SaveCheckpoint(ctx context.Context, checkpoint *core.Checkpoint) error

	// LoadCheckpoint retrieves the checkpoint for a processor type.
	// Returns nil, nil if none exists.
	LoadCheckpoint(ctx context.Context, processorType string) (*core.Checkpoint, error)

	// ClearCheckpoint removes the checkpoint for a processor type.
	ClearCheckpoint(ctx context.Context, processorType string) error
}
