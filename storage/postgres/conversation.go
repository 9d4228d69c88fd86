package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

const sessionColumns = "id, user_id, title, created_at, updated_at"

const turnColumns = "id, session_id, user_id, message, response, context_documents, created_at"

// ConversationRepository implements storage.ConversationRepository over
// the chat_sessions and chat_messages tables.
type ConversationRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.ConversationRepository = (*ConversationRepository)(nil)

// NewConversationRepository creates a repository over db.
func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return New(db).Conversations()
}

// Close is a no-op; the Store owns the handle.
func (r *ConversationRepository) Close() error {
	return nil
}

func (r *ConversationRepository) CreateSession(ctx context.Context, session *core.Session) (*core.Session, error) {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = timestamp()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5)`,
		session.ID, session.UserID, session.Title, session.CreatedAt, session.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, storage.ErrDuplicateKey
		}
		return nil, err
	}
	return session, nil
}

func (r *ConversationRepository) GetSession(ctx context.Context, id string) (*core.Session, error) {
	// Malformed ids cannot exist and would fail the uuid cast
	if _, err := uuid.Parse(id); err != nil {
		return nil, storage.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM chat_sessions WHERE id = $1`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return session, err
}

// AppendTurn inserts the turn and bumps the session in one transaction.
// The session row is locked so concurrent appends serialize.
func (r *ConversationRepository) AppendTurn(ctx context.Context, turn *core.Turn) (*core.Turn, error) {
	if _, err := uuid.Parse(turn.SessionID); err != nil {
		return nil, storage.ErrNotFound
	}
	docs, err := encodeSources(turn.Sources)
	if err != nil {
		return nil, err
	}

	stored := *turn
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		var updatedAt time.Time
		err := tx.QueryRowContext(ctx,
			`SELECT updated_at FROM chat_sessions WHERE id = $1 FOR UPDATE`, turn.SessionID).Scan(&updatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}

		stored.CreatedAt = timestamp()
		if !stored.CreatedAt.After(updatedAt) {
			stored.CreatedAt = updatedAt.Add(time.Microsecond)
		}

		var id int64
		err = tx.QueryRowContext(ctx,
			`INSERT INTO chat_messages (session_id, user_id, message, response, context_documents, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
			stored.SessionID, stored.UserID, stored.Message, stored.Response, docs, stored.CreatedAt).Scan(&id)
		if err != nil {
			return err
		}
		stored.ID = core.ID(id)

		_, err = tx.ExecContext(ctx,
			`UPDATE chat_sessions SET updated_at = $2 WHERE id = $1`, stored.SessionID, stored.CreatedAt)
		return err
	})
	if err != nil {
		return nil, err
	}

	*turn = stored
	return turn, nil
}

func (r *ConversationRepository) RecentTurns(ctx context.Context, sessionID string, limit int) ([]*core.Turn, error) {
	if limit <= 0 {
		return []*core.Turn{}, nil
	}
	if _, err := uuid.Parse(sessionID); err != nil {
		return []*core.Turn{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+turnColumns+` FROM chat_messages WHERE session_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	slices.Reverse(turns)
	return turns, nil
}

func (r *ConversationRepository) Turns(ctx context.Context, sessionID string) ([]*core.Turn, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return []*core.Turn{}, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+turnColumns+` FROM chat_messages WHERE session_id = $1
		 ORDER BY created_at ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	return scanTurns(rows)
}

func (r *ConversationRepository) ListSessions(ctx context.Context, userID string, limit, offset int) ([]*core.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM chat_sessions WHERE user_id = $1
		 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`, userID, limitArg(limit), max(offset, 0))
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

func (r *ConversationRepository) SearchSessions(ctx context.Context, userID, query string, limit int) ([]*core.Session, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*core.Session{}, nil
	}
	pattern := "%" + escapeLike(query) + "%"

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+qualified("s", sessionColumns)+` FROM chat_sessions s
		 WHERE s.user_id = $1 AND (s.title ILIKE $2 OR EXISTS (
			SELECT 1 FROM chat_messages m
			WHERE m.session_id = s.id AND (m.message ILIKE $2 OR m.response ILIKE $2)))
		 ORDER BY s.updated_at DESC LIMIT $3`, userID, pattern, limitArg(limit))
	if err != nil {
		return nil, err
	}
	return scanSessions(rows)
}

func (r *ConversationRepository) RenameSession(ctx context.Context, id, title string) (*core.Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, storage.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`UPDATE chat_sessions SET title = $2,
			updated_at = GREATEST($3, updated_at + INTERVAL '1 microsecond')
		 WHERE id = $1 RETURNING `+sessionColumns, id, title, timestamp())
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return session, err
}

// statsQuery gathers every counter in one round trip. $2 is the reference time.
const statsQuery = `
WITH session_counts AS (
	SELECT s.id, s.created_at, COUNT(m.id) AS turns
	FROM chat_sessions s
	LEFT JOIN chat_messages m ON m.session_id = s.id
	WHERE s.user_id = $1
	GROUP BY s.id, s.created_at
),
daily AS (
	SELECT DATE(created_at AT TIME ZONE 'UTC') AS day, COUNT(*) AS conversations
	FROM session_counts
	WHERE created_at >= $2::timestamptz - $3::interval
	GROUP BY day
	ORDER BY day DESC
	LIMIT $5
)
SELECT
	(SELECT COUNT(*) FROM session_counts),
	(SELECT COUNT(*) FROM session_counts WHERE turns = 0),
	(SELECT COALESCE(SUM(turns), 0) FROM session_counts),
	(SELECT COUNT(*) FROM session_counts WHERE created_at >= $2::timestamptz - $4::interval),
	(SELECT COUNT(*) FROM chat_messages m JOIN session_counts s ON s.id = m.session_id
		WHERE m.created_at >= $2::timestamptz - $4::interval),
	COALESCE((SELECT json_agg(json_build_object('date', day, 'count', conversations) ORDER BY day DESC)
		FROM daily), '[]'::json)`

func (r *ConversationRepository) Stats(ctx context.Context, userID string, now time.Time) (*core.ConversationStats, error) {
	var (
		stats core.ConversationStats
		daily []byte
	)
	err := r.db.QueryRowContext(ctx, statsQuery, userID, now.UTC(),
		intervalArg(core.StatsDailyWindow), intervalArg(core.StatsWeek), core.StatsMaxDays).Scan(
		&stats.TotalConversations, &stats.EmptyConversations, &stats.TotalMessages,
		&stats.ConversationsThisWeek, &stats.MessagesThisWeek, &daily)
	if err != nil {
		return nil, err
	}
	stats.DailyUsage, err = decodeDailyUsage(daily)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *ConversationRepository) DeleteSession(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return storage.ErrNotFound
	}
	return withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chat_messages WHERE session_id = $1`, id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id = $1`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// Helper methods

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*core.Session, error) {
	var s core.Session
	if err := row.Scan(&s.ID, &s.UserID, &s.Title, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func scanSessions(rows *sql.Rows) ([]*core.Session, error) {
	defer rows.Close()
	sessions := []*core.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func scanTurns(rows *sql.Rows) ([]*core.Turn, error) {
	defer rows.Close()
	turns := []*core.Turn{}
	for rows.Next() {
		var (
			t    core.Turn
			id   int64
			docs []byte
		)
		if err := rows.Scan(&id, &t.SessionID, &t.UserID, &t.Message, &t.Response, &docs, &t.CreatedAt); err != nil {
			return nil, err
		}
		sources, err := decodeSources(docs)
		if err != nil {
			return nil, err
		}
		t.ID = core.ID(id)
		t.Sources = sources
		t.CreatedAt = t.CreatedAt.UTC()
		turns = append(turns, &t)
	}
	return turns, rows.Err()
}

// sourceDocument is the JSON shape of one context_documents element.
type sourceDocument struct {
	Title string  `json:"title"`
	Score float64 `json:"score"`
	Kind  string  `json:"kind"`
}

func encodeSources(sources []core.Source) ([]byte, error) {
	docs := make([]sourceDocument, len(sources))
	for i, s := range sources {
		docs[i] = sourceDocument{Title: s.Title, Score: s.Score, Kind: s.Kind.String()}
	}
	return json.Marshal(docs)
}

func decodeSources(data []byte) ([]core.Source, error) {
	if len(data) == 0 {
		return []core.Source{}, nil
	}
	var docs []sourceDocument
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: context_documents: %w", storage.ErrSerializationFailed, err)
	}
	sources := make([]core.Source, len(docs))
	for i, d := range docs {
		sources[i] = core.Source{Title: d.Title, Score: d.Score, Kind: parseKind(d.Kind)}
	}
	return sources, nil
}

func parseKind(s string) core.SourceKind {
	switch s {
	case core.SourceSemantic.String():
		return core.SourceSemantic
	case core.SourceLexical.String():
		return core.SourceLexical
	default:
		return 0
	}
}

// dailyDocument is the JSON shape of one daily usage element.
type dailyDocument struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

func decodeDailyUsage(data []byte) ([]core.DailyUsage, error) {
	var docs []dailyDocument
	if len(data) > 0 {
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("%w: daily usage: %w", storage.ErrSerializationFailed, err)
		}
	}
	usage := make([]core.DailyUsage, 0, len(docs))
	for _, d := range docs {
		day, err := time.Parse(time.DateOnly, d.Date)
		if err != nil {
			return nil, fmt.Errorf("%w: daily usage date %q: %w", storage.ErrSerializationFailed, d.Date, err)
		}
		usage = append(usage, core.DailyUsage{Date: day, Conversations: d.Count})
	}
	return usage, nil
}

// intervalArg renders d as a Postgres interval literal in whole seconds.
func intervalArg(d time.Duration) string {
	return fmt.Sprintf("%d seconds", int64(d/time.Second))
}

// limitArg maps a non-positive limit to NULL, which Postgres treats as no limit.
func limitArg(limit int) any {
	if limit <= 0 {
		return nil
	}
	return limit
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func qualified(alias, columns string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + "." + p
	}
	return strings.Join(parts, ", ")
}

func timestamp() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
