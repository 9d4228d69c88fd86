package core

import (
	"math"
	"testing"
	"time"

	"github.com/mus-format/mus-go/varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKnowledgeEntryMUS_RoundTrip(t *testing.T) {
	entry := KnowledgeEntry{
		Id:         7,
		Title:      "IT Security Guidelines",
		Content:    "Two-factor authentication is mandatory.",
		Origin:     "IT",
		Tags:       []string{"security", "2fa"},
		Kind:       KnowledgeConfluence,
		Vector:     []float32{0.5, -0.25, float32(math.Pi)},
		InsertedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	bs := make([]byte, KnowledgeEntryMUS.Size(entry))
	KnowledgeEntryMUS.Marshal(entry, bs)

	decoded, n, err := KnowledgeEntryMUS.Unmarshal(bs)
	require.NoError(t, err)
	assert.Equal(t, len(bs), n)
	assert.Equal(t, entry.Vector, decoded.Vector)
	assert.Equal(t, entry.Tags, decoded.Tags)
	assert.True(t, entry.InsertedAt.Equal(decoded.InsertedAt))
}

func TestUnmarshalVector_CorruptLength(t *testing.T) {
	tests := []struct {
		name   string
		length uint64
	}{
		{"longer than data", 1 << 40},
		{"wraps negative", math.MaxUint64},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bs := make([]byte, varint.Uint64.Size(tt.length)+8)
			varint.Uint64.Marshal(tt.length, bs)

			assert.NotPanics(t, func() {
				v, _, err := unmarshalVector(bs)
				assert.Error(t, err)
				assert.Nil(t, v)
			})
		})
	}
}

func TestUnmarshalStrings_CorruptLength(t *testing.T) {
	bs := make([]byte, varint.Uint64.Size(math.MaxUint64)+2)
	varint.Uint64.Marshal(math.MaxUint64, bs)

	assert.NotPanics(t, func() {
		_, _, err := unmarshalStrings(bs)
		assert.Error(t, err)
	})
}

func TestUnmarshalVector_Empty(t *testing.T) {
	bs := make([]byte, vectorMUS.Size(nil))
	vectorMUS.Marshal(nil, bs)

	v, n, err := unmarshalVector(bs)
	require.NoError(t, err)
	assert.Equal(t, len(bs), n)
	assert.Nil(t, v)
}
