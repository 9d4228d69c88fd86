package badger

import (
	"math"
	"strings"
)

// Stop words dropped from both queries and documents before matching
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "what": true, "which": true, "who": true,
	"how": true, "when": true, "where": true, "why": true, "can": true, "i": true,
	"my": true, "our": true, "we": true, "me": true, "does": true, "there": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// queryTerms returns the distinct filtered terms of a query in first-seen order.
func queryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, term := range tokenizeAndFilter(query) {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	return terms
}

// textRank scores a document against query terms. Every term must occur in the
// title or body, otherwise the document does not match. Title hits weigh double
// and the total is damped by document length.
func textRank(terms []string, title, content string) (float64, bool) {
	if len(terms) == 0 {
		return 0, false
	}

	titleCounts := termCounts(tokenizeAndFilter(title))
	bodyWords := tokenizeAndFilter(content)
	bodyCounts := termCounts(bodyWords)

	var hits float64
	for _, term := range terms {
		t, b := titleCounts[term], bodyCounts[term]
		if t == 0 && b == 0 {
			return 0, false
		}
		hits += 2*float64(t) + float64(b)
	}

	docLen := len(bodyWords)
	for _, c := range titleCounts {
		docLen += c
	}
	return hits / (1 + math.Log(1+float64(docLen))), true
}

func termCounts(words []string) map[string]int {
	counts := make(map[string]int, len(words))
	for _, w := range words {
		counts[w]++
	}
	return counts
}
