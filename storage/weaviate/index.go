// Package weaviate serves vector search over knowledge entries stored as
// Weaviate objects with externally supplied vectors.
package weaviate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/poiesic/kbassist/core"
	"github.com/poiesic/kbassist/storage"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// DefaultClass is the Weaviate class knowledge entries are stored in.
const DefaultClass = "KnowledgeBase"

var errNilResponse = fmt.Errorf("%w: empty weaviate response", storage.ErrBadResponse)

// Index implements storage.VectorIndex with nearVector queries.
// Scores are cosine similarities (1 - cosine distance).
type Index struct {
	client     *weaviate.Client
	class      string
	department string
	logger     *slog.Logger
}

var _ storage.VectorIndex = (*Index)(nil)

// Option configures an Index.
type Option func(*Index)

// WithClass sets the class name.
func WithClass(class string) Option {
	return func(i *Index) {
		if class != "" {
			i.class = class
		}
	}
}

// WithDepartment restricts results to entries of one department.
func WithDepartment(department string) Option {
	return func(i *Index) {
		i.department = department
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Index) {
		if logger != nil {
			i.logger = logger
		}
	}
}

// New connects to the Weaviate instance at scheme://host.
func New(scheme, host string, opts ...Option) (*Index, error) {
	client, err := weaviate.NewClient(weaviate.Config{Scheme: scheme, Host: host})
	if err != nil {
		return nil, err
	}
	return NewWithClient(client, opts...), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *weaviate.Client, opts ...Option) *Index {
	idx := &Index{client: client, class: DefaultClass, logger: slog.Default()}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = idx.logger.With("component", "weaviate", "class", idx.class)
	return idx
}

// Schema returns the class definition for knowledge entries.
func (i *Index) Schema() *models.Class {
	return &models.Class{
		Class:       i.class,
		Description: "Knowledge base articles",
		Vectorizer:  "none",
		VectorIndexConfig: map[string]any{
			"distance": "cosine",
		},
		Properties: []*models.Property{
			{Name: "title", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "department", DataType: []string{"text"}},
			{Name: "source", DataType: []string{"text"}},
			{Name: "tags", DataType: []string{"text[]"}},
		},
	}
}

// EnsureSchema creates the class if it does not exist.
func (i *Index) EnsureSchema(ctx context.Context) error {
	exists, err := i.client.Schema().ClassExistenceChecker().WithClassName(i.class).Do(ctx)
	if err != nil {
		return fmt.Errorf("weaviate: checking class: %w", err)
	}
	if exists {
		return nil
	}
	i.logger.Info("creating class")
	return i.client.Schema().ClassCreator().WithClass(i.Schema()).Do(ctx)
}

// FindSimilar returns up to limit entries with cosine similarity of at least minScore.
func (i *Index) FindSimilar(ctx context.Context, vector []float32, minScore float64, limit int) ([]*core.ScoredEntry, error) {
	nearVector := i.client.GraphQL().NearVectorArgBuilder().
		WithVector(vector).
		WithDistance(float32(1 - minScore))

	fields := []graphql.Field{
		{Name: "title"},
		{Name: "content"},
		{Name: "department"},
		{Name: "source"},
		{Name: "tags"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "distance"},
		}},
	}

	query := i.client.GraphQL().Get().
		WithClassName(i.class).
		WithFields(fields...).
		WithNearVector(nearVector)
	if limit > 0 {
		query = query.WithLimit(limit)
	}
	if i.department != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"department"}).
			WithOperator(filters.Equal).
			WithValueString(i.department))
	}

	resp, err := query.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	hits, err := parseHits(resp, i.class)
	if err != nil {
		return nil, err
	}

	results := make([]*core.ScoredEntry, 0, len(hits))
	for _, h := range hits {
		score := 1 - h.Additional.Distance
		if score < minScore {
			continue
		}
		results = append(results, &core.ScoredEntry{Entry: h.entry(), Score: score})
	}
	i.logger.Debug("vector search completed", "hits", len(results))
	return results, nil
}

// ImportEntries stores entries with their vectors, keyed by KnowledgeEntry.UUID.
// Entries without a vector are skipped.
func (i *Index) ImportEntries(ctx context.Context, entries ...*core.KnowledgeEntry) (int, error) {
	objects := make([]*models.Object, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) == 0 {
			continue
		}
		objects = append(objects, &models.Object{
			Class:  i.class,
			ID:     strfmt.UUID(e.UUID()),
			Vector: e.Vector,
			Properties: map[string]any{
				"title":      e.Title,
				"content":    e.Content,
				"department": e.Origin,
				"source":     string(e.Kind),
				"tags":       e.Tags,
			},
		})
	}
	if len(objects) == 0 {
		return 0, nil
	}

	resp, err := i.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("weaviate import failed: %w", err)
	}

	imported := 0
	var failures []string
	for _, item := range resp {
		if item.Result != nil && item.Result.Errors != nil && len(item.Result.Errors.Error) > 0 {
			for _, e := range item.Result.Errors.Error {
				failures = append(failures, e.Message)
			}
			continue
		}
		imported++
	}
	if len(failures) > 0 {
		return imported, fmt.Errorf("%w: %d of %d weaviate objects failed: %s",
			storage.ErrPartialImport, len(failures), len(resp), strings.Join(failures, "; "))
	}
	return imported, nil
}

type hit struct {
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Department string   `json:"department"`
	Source     string   `json:"source"`
	Tags       []string `json:"tags"`
	Additional struct {
		ID       string  `json:"id"`
		Distance float64 `json:"distance"`
	} `json:"_additional"`
}

func (h hit) entry() *core.KnowledgeEntry {
	return &core.KnowledgeEntry{
		Id:      core.IDFromContent(h.Additional.ID),
		Title:   h.Title,
		Content: h.Content,
		Origin:  h.Department,
		Tags:    h.Tags,
		Kind:    core.KnowledgeKind(h.Source),
	}
}

// parseHits decodes the Get.<class> array of a GraphQL response.
func parseHits(resp *models.GraphQLResponse, class string) ([]hit, error) {
	if resp == nil {
		return nil, errNilResponse
	}
	if len(resp.Errors) > 0 {
		msgs := make([]string, 0, len(resp.Errors))
		for _, e := range resp.Errors {
			if e != nil {
				msgs = append(msgs, e.Message)
			}
		}
		return nil, fmt.Errorf("%w: graphql: %s", storage.ErrBadResponse, strings.Join(msgs, "; "))
	}

	data, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var parsed struct {
		Get map[string][]hit `json:"Get"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrBadResponse, err)
	}
	return parsed.Get[class], nil
}
