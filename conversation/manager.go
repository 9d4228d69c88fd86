// Package conversation owns session lifecycle and turn history for one user at a time.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

const (
	// DefaultHistoryTurns is the history window used when none is given.
	DefaultHistoryTurns = 5

	// DefaultListLimit is the page size for ListConversations.
	DefaultListLimit = 20

	// DefaultRecentLimit is how many sessions RecentConversations returns.
	DefaultRecentLimit = 5
)

// ErrRepositoryRequired is returned when a Manager is built without storage.
var ErrRepositoryRequired = errors.New("conversation repository required")

// Manager creates sessions, enforces ownership and records turns.
type Manager struct {
	repo   storage.ConversationRepository
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager over repo.
func NewManager(repo storage.ConversationRepository, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	m := &Manager{repo: repo, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "conversation")
	return m, nil
}

// GetOrCreate returns the session existingID when it belongs to userID, or
// creates a new one titled from seedTitle when existingID is empty.
// Sessions that are missing or owned by someone else both yield
// core.ErrConversationNotFound. Storage failures yield core.ErrStoreUnavailable.
func (m *Manager) GetOrCreate(ctx context.Context, userID, seedTitle, existingID string) (*core.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, core.ErrEmptyUserID
	}

	if existingID != "" {
		return m.owned(ctx, userID, existingID)
	}

	session, err := m.repo.CreateSession(ctx, &core.Session{
		UserID: userID,
		Title:  core.SessionTitle(seedTitle),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	m.logger.Debug("created session", "session", session.ID, "user", userID)
	return session, nil
}

// LoadHistory returns up to maxTurns of the newest turns, oldest first.
// A maxTurns of zero or less uses DefaultHistoryTurns.
func (m *Manager) LoadHistory(ctx context.Context, sessionID string, maxTurns int) (core.HistoryWindow, error) {
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryTurns
	}
	turns, err := m.repo.RecentTurns(ctx, sessionID, maxTurns)
	if err != nil {
		return nil, err
	}
	if len(turns) > maxTurns {
		turns = turns[len(turns)-maxTurns:]
	}
	return core.HistoryWindow(turns), nil
}

// AppendTurn records one exchange and advances the session's UpdatedAt atomically.
func (m *Manager) AppendTurn(ctx context.Context, sessionID, userID, message, response string, sources []core.Source) (*core.Turn, error) {
	turn, err := m.repo.AppendTurn(ctx, &core.Turn{
		SessionID: sessionID,
		UserID:    userID,
		Message:   message,
		Response:  response,
		Sources:   sources,
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, core.ErrConversationNotFound
		}
		return nil, err
	}
	return turn, nil
}

// ListConversations returns a page of the user's sessions, newest activity first.
func (m *Manager) ListConversations(ctx context.Context, userID string, limit, offset int) ([]*core.Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return m.repo.ListSessions(ctx, userID, limit, offset)
}

// RecentConversations returns the user's n most recently active sessions.
func (m *Manager) RecentConversations(ctx context.Context, userID string, n int) ([]*core.Session, error) {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	return m.repo.ListSessions(ctx, userID, n, 0)
}

// SearchConversations finds the user's sessions mentioning query in the title or any turn.
func (m *Manager) SearchConversations(ctx context.Context, userID, query string, limit int) ([]*core.Session, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return m.repo.SearchSessions(ctx, userID, query, limit)
}

// RenameConversation sets a new title on a session the user owns.
func (m *Manager) RenameConversation(ctx context.Context, userID, sessionID, title string) (*core.Session, error) {
	title, err := core.ValidateTitle(title)
	if err != nil {
		return nil, err
	}
	if _, err := m.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return m.repo.RenameSession(ctx, sessionID, title)
}

// Transcript returns every turn of a session the user owns, oldest first.
func (m *Manager) Transcript(ctx context.Context, userID, sessionID string) ([]*core.Turn, error) {
	if _, err := m.owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return m.repo.Turns(ctx, sessionID)
}

// Analytics summarizes the user's conversation activity as of now.
func (m *Manager) Analytics(ctx context.Context, userID string) (*core.ConversationStats, error) {
	stats, err := m.repo.Stats(ctx, userID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	return stats, nil
}

// owned loads a session and checks it belongs to userID.
func (m *Manager) owned(ctx context.Context, userID, sessionID string) (*core.Session, error) {
	session, err := m.repo.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, core.ErrConversationNotFound
		}
		return nil, fmt.Errorf("%w: %w", core.ErrStoreUnavailable, err)
	}
	if session.UserID != userID {
		m.logger.Debug("session owned by another user", "session", sessionID)
		return nil, core.ErrConversationNotFound
	}
	return session, nil
}
