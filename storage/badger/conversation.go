package badger

import (
	"context"
	"encoding/binary"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

// ConversationRepository implements storage.ConversationRepository for BadgerDB.
type ConversationRepository struct {
	backend *Backend
	turnSeq *badger.Sequence
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a new ConversationRepository.
func NewConversationRepository(backend *Backend) (*ConversationRepository, error) {
	turnSeq, err := backend.GetSequence(turnIDSeq)
	if err != nil {
		return nil, err
	}

	return &ConversationRepository{
		backend: backend,
		turnSeq: turnSeq,
	}, nil
}

// Close releases the turn ID sequence.
func (r *ConversationRepository) Close() error {
	return r.turnSeq.Release()
}

// CreateSession stores a new session and its recency index entry.
func (r *ConversationRepository) CreateSession(ctx context.Context, session *core.Session) (*core.Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = timestamp()
	}
	session.CreatedAt = session.CreatedAt.UTC().Truncate(time.Microsecond)
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	session.UpdatedAt = session.UpdatedAt.UTC().Truncate(time.Microsecond)

	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeSessionKey(session.ID)
		existing, err := readSession(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}
		if err := tx.Set(key, storage.MarshalSession(session)); err != nil {
			return err
		}
		return tx.Set(makeUserSessionKey(session.UserID, session.UpdatedAt, session.ID), []byte(session.ID))
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// GetSession retrieves a session by ID.
func (r *ConversationRepository) GetSession(ctx context.Context, id string) (*core.Session, error) {
	var session *core.Session
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		session, err = readSession(tx, makeSessionKey(id))
		if err != nil {
			return err
		}
		if session == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return session, err
}

// AppendTurn stores a turn and bumps the session's UpdatedAt in one transaction.
// Concurrent appends to the same session conflict on the session key and are retried,
// so each committed turn sees the previous one's timestamp.
func (r *ConversationRepository) AppendTurn(ctx context.Context, turn *core.Turn) (*core.Turn, error) {
	var stored core.Turn
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		sessionKey := makeSessionKey(turn.SessionID)
		session, err := readSession(tx, sessionKey)
		if err != nil {
			return err
		}
		if session == nil {
			return storage.ErrNotFound
		}

		id, err := nextID(r.turnSeq)
		if err != nil {
			return err
		}

		stored = *turn
		stored.ID = core.ID(id)
		stored.CreatedAt = timestamp()
		// Keep turn order monotonic even if the wall clock steps backwards
		if !stored.CreatedAt.After(session.UpdatedAt) {
			stored.CreatedAt = session.UpdatedAt.Add(time.Microsecond)
		}

		turnKey := makeTurnKey(stored.SessionID, stored.CreatedAt, stored.ID)
		if err := tx.Set(turnKey, storage.MarshalTurn(&stored)); err != nil {
			return err
		}

		return r.touchSession(tx, session, stored.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	*turn = stored
	return turn, nil
}

// RecentTurns returns up to limit of the newest turns in a session, oldest first.
func (r *ConversationRepository) RecentTurns(ctx context.Context, sessionID string, limit int) ([]*core.Turn, error) {
	if limit <= 0 {
		return []*core.Turn{}, nil
	}

	var results []*core.Turn
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		// Use reverse iterator to get most recent turns first
		prefix := makeTurnPrefix(sessionID)
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(seekLast(prefix)); iter.Valid() && len(results) < limit; iter.Next() {
			turn, err := readTurnItem(iter.Item())
			if err != nil {
				return err
			}
			results = append(results, turn)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.Reverse(results)
	return results, nil
}

// Turns returns every turn in a session, oldest first.
func (r *ConversationRepository) Turns(ctx context.Context, sessionID string) ([]*core.Turn, error) {
	var results []*core.Turn
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = readTurns(tx, sessionID)
		return err
	}, false)
	return results, err
}

// ListSessions returns a user's sessions, most recently updated first.
func (r *ConversationRepository) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*core.Session, error) {
	var results []*core.Session
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		skipped := 0
		return r.eachUserSession(tx, userID, func(session *core.Session) (bool, error) {
			if skipped < offset {
				skipped++
				return true, nil
			}
			results = append(results, session)
			return limit <= 0 || len(results) < limit, nil
		})
	}, false)
	return results, err
}

// SearchSessions returns a user's sessions whose title or any turn contains query.
func (r *ConversationRepository) SearchSessions(ctx context.Context, userID, query string, limit int) ([]*core.Session, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []*core.Session{}, nil
	}

	var results []*core.Session
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.eachUserSession(tx, userID, func(session *core.Session) (bool, error) {
			matched := strings.Contains(strings.ToLower(session.Title), needle)
			if !matched {
				turns, err := readTurns(tx, session.ID)
				if err != nil {
					return false, err
				}
				for _, turn := range turns {
					if strings.Contains(strings.ToLower(turn.Message), needle) ||
						strings.Contains(strings.ToLower(turn.Response), needle) {
						matched = true
						break
					}
				}
			}
			if matched {
				results = append(results, session)
			}
			return limit <= 0 || len(results) < limit, nil
		})
	}, false)
	return results, err
}

// RenameSession replaces a session's title and bumps UpdatedAt.
func (r *ConversationRepository) RenameSession(ctx context.Context, id, title string) (*core.Session, error) {
	var renamed *core.Session
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		session, err := readSession(tx, makeSessionKey(id))
		if err != nil {
			return err
		}
		if session == nil {
			return storage.ErrNotFound
		}
		session.Title = title
		now := timestamp()
		if !now.After(session.UpdatedAt) {
			now = session.UpdatedAt.Add(time.Microsecond)
		}
		renamed = session
		return r.touchSession(tx, session, now)
	})
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// Stats walks the user's sessions, reading turn keys only.
func (r *ConversationRepository) Stats(ctx context.Context, userID string, now time.Time) (*core.ConversationStats, error) {
	weekStart := now.Add(-core.StatsWeek)
	dailyStart := now.Add(-core.StatsDailyWindow)
	stats := &core.ConversationStats{DailyUsage: []core.DailyUsage{}}
	daily := make(map[time.Time]int)

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		return r.eachUserSession(tx, userID, func(session *core.Session) (bool, error) {
			stats.TotalConversations++
			if !session.CreatedAt.Before(weekStart) {
				stats.ConversationsThisWeek++
			}
			if !session.CreatedAt.Before(dailyStart) {
				daily[core.Day(session.CreatedAt)]++
			}

			turns, recent := countTurns(tx, session.ID, weekStart)
			if turns == 0 {
				stats.EmptyConversations++
			}
			stats.TotalMessages += turns
			stats.MessagesThisWeek += recent
			return true, nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	for day, n := range daily {
		stats.DailyUsage = append(stats.DailyUsage, core.DailyUsage{Date: day, Conversations: n})
	}
	slices.SortFunc(stats.DailyUsage, func(a, b core.DailyUsage) int {
		return b.Date.Compare(a.Date)
	})
	if len(stats.DailyUsage) > core.StatsMaxDays {
		stats.DailyUsage = stats.DailyUsage[:core.StatsMaxDays]
	}
	return stats, nil
}

// DeleteSession removes a session, its index entry and all of its turns.
func (r *ConversationRepository) DeleteSession(ctx context.Context, id string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		sessionKey := makeSessionKey(id)
		session, err := readSession(tx, sessionKey)
		if err != nil {
			return err
		}
		if session == nil {
			return storage.ErrNotFound
		}

		// Collect turn keys first; deleting while iterating invalidates the iterator
		var turnKeys [][]byte
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makeTurnPrefix(id)
		iter := tx.NewIterator(opts)
		for iter.Rewind(); iter.Valid(); iter.Next() {
			turnKeys = append(turnKeys, iter.Item().KeyCopy(nil))
		}
		iter.Close()

		for _, key := range turnKeys {
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeUserSessionKey(session.UserID, session.UpdatedAt, session.ID)); err != nil {
			return err
		}
		return tx.Delete(sessionKey)
	})
}

// Helper methods

// touchSession moves a session's recency index entry to updatedAt and rewrites the session.
func (r *ConversationRepository) touchSession(tx *badger.Txn, session *core.Session, updatedAt time.Time) error {
	if err := tx.Delete(makeUserSessionKey(session.UserID, session.UpdatedAt, session.ID)); err != nil {
		return err
	}
	session.UpdatedAt = updatedAt
	if err := tx.Set(makeSessionKey(session.ID), storage.MarshalSession(session)); err != nil {
		return err
	}
	return tx.Set(makeUserSessionKey(session.UserID, session.UpdatedAt, session.ID), []byte(session.ID))
}

// eachUserSession walks a user's sessions newest first until fn returns false.
func (r *ConversationRepository) eachUserSession(tx *badger.Txn, userID string, fn func(*core.Session) (bool, error)) error {
	prefix := makeUserSessionPrefix(userID)
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Seek(seekLast(prefix)); iter.Valid(); iter.Next() {
		var sessionID string
		if err := iter.Item().Value(func(val []byte) error {
			sessionID = string(val)
			return nil
		}); err != nil {
			return err
		}

		session, err := readSession(tx, makeSessionKey(sessionID))
		if err != nil {
			return err
		}
		if session == nil {
			continue
		}
		more, err := fn(session)
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
	return nil
}

// readSession reads a session from the transaction.
// Returns nil, nil if the key doesn't exist.
func readSession(tx *badger.Txn, key []byte) (*core.Session, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var session *core.Session
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		session, unmarshalErr = storage.UnmarshalSession(val)
		return unmarshalErr
	})
	return session, err
}

// readTurns reads every turn of a session in key order.
func readTurns(tx *badger.Txn, sessionID string) ([]*core.Turn, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makeTurnPrefix(sessionID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var turns []*core.Turn
	for iter.Rewind(); iter.Valid(); iter.Next() {
		turn, err := readTurnItem(iter.Item())
		if err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// countTurns counts a session's turns and those created at or after since.
// Creation times come from the turn keys so values are never read.
func countTurns(tx *badger.Txn, sessionID string, since time.Time) (total, recent int) {
	prefix := makeTurnPrefix(sessionID)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	sinceMicros := since.UnixMicro()
	for iter.Rewind(); iter.Valid(); iter.Next() {
		total++
		key := iter.Item().Key()
		if len(key) < len(prefix)+8 {
			continue
		}
		if int64(binary.BigEndian.Uint64(key[len(prefix):])) >= sinceMicros {
			recent++
		}
	}
	return total, recent
}

func readTurnItem(item *badger.Item) (*core.Turn, error) {
	var turn *core.Turn
	err := item.Value(func(val []byte) error {
		var unmarshalErr error
		turn, unmarshalErr = storage.UnmarshalTurn(val)
		return unmarshalErr
	})
	return turn, err
}
