package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantSame bool
	}{
		{
			name:     "same content produces same ID",
			content:  "test content",
			wantSame: true,
		},
		{
			name:     "empty string",
			content:  "",
			wantSame: true,
		},
		{
			name:     "long content",
			content:  "This is a much longer piece of content that should still hash consistently",
			wantSame: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)

			if tt.wantSame && id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %d vs %d", id1, id2)
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	id1 := IDFromContent("content1")
	id2 := IDFromContent("content2")

	if id1 == id2 {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestFingerprint(t *testing.T) {
	t.Run("ignores case and spacing", func(t *testing.T) {
		assert.Equal(t, Fingerprint("Remote  Work\tPolicy"), Fingerprint("remote work policy"))
	})

	t.Run("different text differs", func(t *testing.T) {
		assert.NotEqual(t, Fingerprint("remote work policy"), Fingerprint("travel policy"))
	})

	t.Run("hex encoded 16 bytes", func(t *testing.T) {
		assert.Len(t, Fingerprint("anything"), 32)
	})
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "company remote work policy", NormalizeText("  Company\n Remote   WORK policy "))
	assert.Equal(t, "", NormalizeText(" \t\n"))
}

func TestSourceKind_String(t *testing.T) {
	assert.Equal(t, "semantic", SourceSemantic.String())
	assert.Equal(t, "lexical", SourceLexical.String())
	assert.Equal(t, "unknown", SourceKind(0).String())
}

func TestHistoryWindow_Entries(t *testing.T) {
	now := time.Now()
	window := HistoryWindow{
		{Message: "first question", Response: "first answer", CreatedAt: now.Add(-time.Minute)},
		{Message: "second question", Response: "second answer", CreatedAt: now},
	}

	entries := window.Entries()
	assert.Equal(t, []HistoryEntry{
		{Role: RoleUser, Content: "first question"},
		{Role: RoleAssistant, Content: "first answer"},
		{Role: RoleUser, Content: "second question"},
		{Role: RoleAssistant, Content: "second answer"},
	}, entries)

	assert.Empty(t, HistoryWindow(nil).Entries())
}

func TestKnowledgeEntry_Authoritative(t *testing.T) {
	assert.True(t, (&KnowledgeEntry{Kind: KnowledgeAdmin}).Authoritative())
	assert.False(t, (&KnowledgeEntry{Kind: KnowledgeConfluence}).Authoritative())
}

func TestSourceOf(t *testing.T) {
	f := Fragment{Title: "Handbook", Score: 0.42, Kind: SourceSemantic, Content: "ignored"}
	assert.Equal(t, Source{Title: "Handbook", Score: 0.42, Kind: SourceSemantic}, SourceOf(f))
}

func TestKnowledgeEntryUUID(t *testing.T) {
	a := &KnowledgeEntry{Title: "Policy", Content: "Body"}
	b := &KnowledgeEntry{Title: "POLICY", Content: "  body "}
	c := &KnowledgeEntry{Title: "Policy", Content: "Other body"}

	assert.Equal(t, a.UUID(), b.UUID())
	assert.NotEqual(t, a.UUID(), c.UUID())
	assert.Len(t, a.UUID(), 36)
}

func TestConversationStats_Derived(t *testing.T) {
	stats := &ConversationStats{TotalConversations: 3, EmptyConversations: 1, TotalMessages: 7}
	assert.Equal(t, 2.33, stats.AverageMessages())
	assert.Equal(t, 66.67, stats.EngagementRate())

	empty := &ConversationStats{}
	assert.Zero(t, empty.AverageMessages())
	assert.Zero(t, empty.EngagementRate())
}

func TestDay(t *testing.T) {
	at := time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("west", -2*3600))
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), Day(at))
}
