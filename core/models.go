package core

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// entryNamespace seeds the name-based UUIDs external stores key entries by.
var entryNamespace = uuid.MustParse("6f1c1d8e-5a0b-4d55-9a3e-0c6b8e1f2a47")

// ID is a unique identifier for stored entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// Fingerprint returns a hex BLAKE2b digest of whitespace-normalized, lowercased text.
// Two texts that differ only in case or spacing share a fingerprint.
func Fingerprint(text string) string {
	h, _ := blake2b.New(16, nil)
	h.Write([]byte(NormalizeText(text)))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeText lowercases text and collapses runs of whitespace to a single space.
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// SourceKind identifies which retriever produced a fragment.
type SourceKind int

const (
	// SourceSemantic marks fragments returned by the vector index.
	SourceSemantic SourceKind = iota + 1
	// SourceLexical marks fragments returned by full-text search.
	SourceLexical
)

func (k SourceKind) String() string {
	switch k {
	case SourceSemantic:
		return "semantic"
	case SourceLexical:
		return "lexical"
	default:
		return "unknown"
	}
}

// KnowledgeKind tags where a knowledge entry came from.
type KnowledgeKind string

const (
	// KnowledgeAdmin entries are curated by administrators and treated as authoritative.
	KnowledgeAdmin KnowledgeKind = "admin"
	// KnowledgeConfluence entries were imported from a wiki.
	KnowledgeConfluence KnowledgeKind = "confluence"
)

// Fragment is a single retrieved unit of knowledge. Fragments are produced
// per query and never persisted.
type Fragment struct {
	ID              string
	Title           string
	Content         string
	Kind            SourceKind
	Origin          string  // department or category
	Authoritative   bool    // administrative knowledge
	Score           float64 // raw score, comparable only within Kind
	NormalizedScore float64 // set by fusion, in [0,1]
	Rank            int     // 1-based position after fusion
}

// Source is the compact provenance record kept for each fragment that
// contributed to an answer.
type Source struct {
	Title string
	Score float64
	Kind  SourceKind
}

// SourceOf returns the provenance record for a fragment.
func SourceOf(f Fragment) Source {
	return Source{Title: f.Title, Score: f.Score, Kind: f.Kind}
}

// Session is a conversation thread owned by a single user.
type Session struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Turn is one question/answer exchange within a session.
type Turn struct {
	ID        ID
	SessionID string
	UserID    string
	Message   string
	Response  string
	Sources   []Source
	CreatedAt time.Time
}

// Role identifies the speaker of a history entry.
type Role int

const (
	// RoleUser is the human side of a turn.
	RoleUser Role = iota + 1
	// RoleAssistant is the model side of a turn.
	RoleAssistant
)

// HistoryEntry is a single role-tagged message handed to the language model.
type HistoryEntry struct {
	Role    Role
	Content string
}

// HistoryWindow holds the most recent turns of a session, oldest first.
type HistoryWindow []*Turn

// Entries expands the window into alternating user/assistant entries.
func (w HistoryWindow) Entries() []HistoryEntry {
	entries := make([]HistoryEntry, 0, len(w)*2)
	for _, turn := range w {
		entries = append(entries,
			HistoryEntry{Role: RoleUser, Content: turn.Message},
			HistoryEntry{Role: RoleAssistant, Content: turn.Response},
		)
	}
	return entries
}

// KnowledgeEntry is a stored knowledge base article.
type KnowledgeEntry struct {
	Id         ID
	Title      string
	Content    string
	Origin     string // department
	Tags       []string
	Kind       KnowledgeKind
	Vector     []float32 // populated by embedding
	InsertedAt time.Time
	UpdatedAt  time.Time
}

// Authoritative reports whether the entry is administrative knowledge.
func (e *KnowledgeEntry) Authoritative() bool {
	return e.Kind == KnowledgeAdmin
}

// Fingerprint returns the content fingerprint of the entry's title and body.
func (e *KnowledgeEntry) Fingerprint() string {
	return Fingerprint(e.Title + "\n" + e.Content)
}

// UUID returns a stable UUID derived from the entry's fingerprint, used as the
// row or object id in external stores.
func (e *KnowledgeEntry) UUID() string {
	return uuid.NewSHA1(entryNamespace, []byte(e.Fingerprint())).String()
}

// ScoredEntry pairs a knowledge entry with a retrieval score.
type ScoredEntry struct {
	Entry *KnowledgeEntry
	Score float64
}

// Checkpoint records how far a long-running maintenance job has progressed.
type Checkpoint struct {
	ProcessorType string
	LastID        ID
	UpdatedAt     time.Time
}
