// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// SessionTitleLength is how many characters of the first message become the session title.
	SessionTitleLength = 50

	// MaxTitleLength is the longest title accepted when renaming a session.
	MaxTitleLength = 200
)

// ValidateUtterance trims the utterance and rejects it if nothing remains.
func ValidateUtterance(utterance string) (string, error) {
	trimmed := strings.TrimSpace(utterance)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	return trimmed, nil
}

// SessionTitle derives a session title from the first message of a thread.
// Messages longer than SessionTitleLength characters are cut and suffixed with "...".
func SessionTitle(seed string) string {
	seed = strings.TrimSpace(seed)
	if utf8.RuneCountInString(seed) <= SessionTitleLength {
		return seed
	}
	runes := []rune(seed)
	return string(runes[:SessionTitleLength]) + "..."
}

// ValidateTitle trims a user-supplied session title and checks its length.
func ValidateTitle(title string) (string, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return "", ErrEmptyTitle
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleLength {
		return "", fmt.Errorf("%w: %d characters, max %d", ErrTitleTooLong, utf8.RuneCountInString(trimmed), MaxTitleLength)
	}
	return trimmed, nil
}

// ValidateKnowledgeEntry validates a KnowledgeEntry according to domain rules.
//
// Validation rules:
//   - Title must not be empty
//   - Content must not be empty
//   - Kind must be admin or confluence
//
// NOT validated:
//   - Vector (can be empty until embedded)
//   - ID (0 is valid from database sequences)
func ValidateKnowledgeEntry(entry *KnowledgeEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidKnowledgeEntry)
	}

	if strings.TrimSpace(entry.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidKnowledgeEntry, ErrEmptyTitle)
	}

	if strings.TrimSpace(entry.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidKnowledgeEntry, ErrEmptyContent)
	}

	if err := ValidateKnowledgeKind(entry.Kind); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKnowledgeEntry, err)
	}

	return nil
}

// ValidateKnowledgeKind validates that a KnowledgeKind has a known value.
func ValidateKnowledgeKind(kind KnowledgeKind) error {
	if kind != KnowledgeAdmin && kind != KnowledgeConfluence {
		return fmt.Errorf("%w: value %q", ErrInvalidKnowledgeKind, kind)
	}
	return nil
}
