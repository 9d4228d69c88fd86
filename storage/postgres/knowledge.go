package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
)

// searchQuery matches every term of the question and ranks by ts_rank,
// preferring administrative rows among equal ranks, then row id.
const searchQuery = `
SELECT id, title, content, source, COALESCE(department, ''), tags, rank FROM (
	SELECT *, ts_rank(to_tsvector('english', content || ' ' || title), plainto_tsquery('english', $1)) AS rank
	FROM knowledge_base
	WHERE to_tsvector('english', content || ' ' || title) @@ plainto_tsquery('english', $1)
) ranked
ORDER BY rank DESC, CASE WHEN source = 'admin' THEN 0 ELSE 1 END, id
LIMIT $2`

// KnowledgeIndex implements storage.TextIndex over the knowledge_base table.
type KnowledgeIndex struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.TextIndex = (*KnowledgeIndex)(nil)

// NewKnowledgeIndex creates an index over db.
func NewKnowledgeIndex(db *sql.DB) *KnowledgeIndex {
	return New(db).Knowledge()
}

// RowID returns the knowledge_base id an entry is stored under.
// Entries with the same fingerprint share a row.
func RowID(entry *core.KnowledgeEntry) string {
	return entry.UUID()
}

func (k *KnowledgeIndex) SearchText(ctx context.Context, query string, limit int) ([]*core.ScoredEntry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []*core.ScoredEntry{}, nil
	}
	rows, err := k.db.QueryContext(ctx, searchQuery, query, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []*core.ScoredEntry{}
	for rows.Next() {
		var (
			id, source string
			tags       []byte
			rank       float64
			e          core.KnowledgeEntry
		)
		if err := rows.Scan(&id, &e.Title, &e.Content, &source, &e.Origin, &tags, &rank); err != nil {
			return nil, err
		}
		if len(tags) > 0 {
			if err := json.Unmarshal(tags, &e.Tags); err != nil {
				return nil, fmt.Errorf("tags of %s: %w", id, err)
			}
		}
		e.Id = core.IDFromContent(id)
		e.Kind = core.KnowledgeKind(source)
		results = append(results, &core.ScoredEntry{Entry: &e, Score: rank})
	}
	return results, rows.Err()
}

// AddEntries upserts entries keyed by RowID. Entries are not modified.
func (k *KnowledgeIndex) AddEntries(ctx context.Context, entries ...*core.KnowledgeEntry) error {
	for _, entry := range entries {
		if err := core.ValidateKnowledgeEntry(entry); err != nil {
			return err
		}
	}

	return withTx(ctx, k.db, func(tx *sql.Tx) error {
		for _, entry := range entries {
			tags, err := json.Marshal(entry.Tags)
			if err != nil {
				return err
			}
			rowID := RowID(entry)
			_, err = tx.ExecContext(ctx,
				`INSERT INTO knowledge_base (id, title, content, source, department, tags)
				 VALUES ($1, $2, $3, $4, $5, $6)
				 ON CONFLICT (id) DO UPDATE SET source = EXCLUDED.source,
					department = EXCLUDED.department, tags = EXCLUDED.tags, updated_at = NOW()`,
				rowID, entry.Title, entry.Content, string(entry.Kind), entry.Origin, tags)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// CountEntries returns the number of rows in knowledge_base.
func (k *KnowledgeIndex) CountEntries(ctx context.Context) (int, error) {
	var n int
	err := k.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM knowledge_base`).Scan(&n)
	return n, err
}
