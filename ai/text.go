package ai

import (
	"strings"
	"unicode"
)

// MaxEmbeddingRunes is the longest text sent to the embedding service.
const MaxEmbeddingRunes = 512

// PrepareEmbeddingText cleans text before embedding: trims it, collapses
// whitespace, drops everything except word characters, whitespace and basic
// punctuation, and cuts the result to MaxEmbeddingRunes.
func PrepareEmbeddingText(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")

	var b strings.Builder
	b.Grow(len(collapsed))
	count := 0
	for _, r := range collapsed {
		if !keepRune(r) {
			continue
		}
		if count == MaxEmbeddingRunes {
			break
		}
		b.WriteRune(r)
		count++
	}
	return b.String()
}

// DocumentText is the text embedded for a knowledge entry.
func DocumentText(title, content string) string {
	if strings.TrimSpace(title) == "" {
		return content
	}
	return title + ". " + content
}

func keepRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
		return true
	case unicode.IsSpace(r):
		return true
	}
	return strings.ContainsRune(".,!?-", r)
}
