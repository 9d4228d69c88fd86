package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/poiesic/kbassist/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)}, // max uint64
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.NotEmpty(t, data)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	_, err := UnmarshalID([]byte{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSerializationFailed))
}

func TestSessionRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	session := &core.Session{
		ID:        "5b0c3f1e-8f0e-4c36-9a4c-5d3a2e1f0b9c",
		UserID:    "user-1",
		Title:     "What is the remote work policy?",
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
	}

	decoded, err := UnmarshalSession(MarshalSession(session))
	require.NoError(t, err)
	assert.Equal(t, session.ID, decoded.ID)
	assert.Equal(t, session.UserID, decoded.UserID)
	assert.Equal(t, session.Title, decoded.Title)
	assert.True(t, session.CreatedAt.Equal(decoded.CreatedAt))
	assert.True(t, session.UpdatedAt.Equal(decoded.UpdatedAt))
}

func TestTurnRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("with sources", func(t *testing.T) {
		turn := &core.Turn{
			ID:        7,
			SessionID: "s1",
			UserID:    "u1",
			Message:   "How many vacation days?",
			Response:  "Twenty.",
			Sources: []core.Source{
				{Title: "Leave Policy", Score: 0.9, Kind: core.SourceLexical},
				{Title: "Handbook", Score: 0.31, Kind: core.SourceSemantic},
			},
			CreatedAt: now,
		}

		decoded, err := UnmarshalTurn(MarshalTurn(turn))
		require.NoError(t, err)
		assert.Equal(t, turn.ID, decoded.ID)
		assert.Equal(t, turn.Message, decoded.Message)
		assert.Equal(t, turn.Response, decoded.Response)
		assert.Equal(t, turn.Sources, decoded.Sources)
		assert.True(t, turn.CreatedAt.Equal(decoded.CreatedAt))
	})

	t.Run("without sources", func(t *testing.T) {
		turn := &core.Turn{ID: 1, SessionID: "s1", UserID: "u1", Message: "hi", Response: "hello", CreatedAt: now}
		decoded, err := UnmarshalTurn(MarshalTurn(turn))
		require.NoError(t, err)
		assert.Empty(t, decoded.Sources)
	})

	t.Run("truncated data", func(t *testing.T) {
		data := MarshalTurn(&core.Turn{ID: 1, SessionID: "s1", Message: "hello", CreatedAt: now})
		_, err := UnmarshalTurn(data[:len(data)/2])
		assert.ErrorIs(t, err, ErrSerializationFailed)
	})
}

func TestKnowledgeEntryRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	entry := &core.KnowledgeEntry{
		Id:         99,
		Title:      "Company Remote Work Policy",
		Content:    "Employees may work remotely up to three days per week.",
		Origin:     "HR",
		Tags:       []string{"remote", "policy"},
		Kind:       core.KnowledgeAdmin,
		Vector:     []float32{0.1, -0.2, 0.3},
		InsertedAt: now,
		UpdatedAt:  now,
	}

	decoded, err := UnmarshalKnowledgeEntry(MarshalKnowledgeEntry(entry))
	require.NoError(t, err)
	assert.Equal(t, entry.Id, decoded.Id)
	assert.Equal(t, entry.Title, decoded.Title)
	assert.Equal(t, entry.Content, decoded.Content)
	assert.Equal(t, entry.Origin, decoded.Origin)
	assert.Equal(t, entry.Tags, decoded.Tags)
	assert.Equal(t, entry.Kind, decoded.Kind)
	assert.Equal(t, entry.Vector, decoded.Vector)
	assert.True(t, entry.InsertedAt.Equal(decoded.InsertedAt))

	t.Run("empty vector and tags", func(t *testing.T) {
		bare := &core.KnowledgeEntry{Id: 1, Title: "t", Content: "c", Kind: core.KnowledgeConfluence}
		decoded, err := UnmarshalKnowledgeEntry(MarshalKnowledgeEntry(bare))
		require.NoError(t, err)
		assert.Empty(t, decoded.Vector)
		assert.Empty(t, decoded.Tags)
	})
}

func TestCheckpointRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	checkpoint := &core.Checkpoint{ProcessorType: "reembed", LastID: 1234, UpdatedAt: now}

	decoded, err := UnmarshalCheckpoint(MarshalCheckpoint(checkpoint))
	require.NoError(t, err)
	assert.Equal(t, checkpoint.ProcessorType, decoded.ProcessorType)
	assert.Equal(t, checkpoint.LastID, decoded.LastID)
	assert.True(t, checkpoint.UpdatedAt.Equal(decoded.UpdatedAt))
}
