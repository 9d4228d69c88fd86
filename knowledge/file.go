package knowledge

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/poiesic/kbassist/core"
	"gopkg.in/yaml.v3"
)

// SeedFile is the on-disk layout of a knowledge seed file.
type SeedFile struct {
	Entries []SeedEntry `yaml:"entries"`
}

// SeedEntry is one article in a seed file. Kind defaults to confluence.
type SeedEntry struct {
	Title      string   `yaml:"title"`
	Content    string   `yaml:"content"`
	Department string   `yaml:"department"`
	Kind       string   `yaml:"kind"`
	Tags       []string `yaml:"tags"`
}

// LoadFile reads and validates the seed file at path.
func LoadFile(path string) ([]*core.KnowledgeEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses seed YAML into validated knowledge entries.
func Decode(r io.Reader) ([]*core.KnowledgeEntry, error) {
	var file SeedFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeedFile, err)
	}

	entries := make([]*core.KnowledgeEntry, 0, len(file.Entries))
	for i, seed := range file.Entries {
		entry := seed.entry()
		if err := core.ValidateKnowledgeEntry(entry); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %w", ErrInvalidSeedFile, i+1, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (s SeedEntry) entry() *core.KnowledgeEntry {
	kind := core.KnowledgeKind(strings.ToLower(strings.TrimSpace(s.Kind)))
	if kind == "" {
		kind = core.KnowledgeConfluence
	}
	return &core.KnowledgeEntry{
		Title:   strings.TrimSpace(s.Title),
		Content: strings.TrimSpace(s.Content),
		Origin:  strings.TrimSpace(s.Department),
		Tags:    s.Tags,
		Kind:    kind,
	}
}
