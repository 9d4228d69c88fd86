package prompt

import (
	"strings"
	"unicode/utf8"

	"github.com/poiesic/kbassist/core"
)

// DefaultMaxChars bounds the context block when no budget is configured.
const DefaultMaxChars = 6000

// TokenCounter measures text in model tokens.
type TokenCounter interface {
	Count(text string) int
}

// Assembly is a budgeted context block and the fragments it contains.
type Assembly struct {
	// Text is the joined blocks, or NoDocumentsMarker when Included is empty.
	Text string

	// Included holds the fragments that made it into Text, in order.
	Included []core.Fragment
}

// Budgeter packs whole fragment blocks into a character budget and,
// optionally, a token budget.
type Budgeter struct {
	counter   TokenCounter
	maxTokens int
}

// BudgetOption configures a Budgeter.
type BudgetOption func(*Budgeter)

// WithTokenLimit adds a token ceiling measured by counter.
// A limit of zero or less disables it.
func WithTokenLimit(counter TokenCounter, maxTokens int) BudgetOption {
	return func(b *Budgeter) {
		if counter == nil || maxTokens <= 0 {
			return
		}
		b.counter = counter
		b.maxTokens = maxTokens
	}
}

// NewBudgeter creates a Budgeter.
func NewBudgeter(opts ...BudgetOption) *Budgeter {
	b := &Budgeter{}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Assemble walks ranked in order and appends each block while the running
// total stays within maxChars characters. It stops at the first block that
// does not fit and never cuts a block.
//
// Characters are Unicode code points, separators included, so non-ASCII
// context may take more than maxChars bytes once encoded as UTF-8. Callers
// that need a byte ceiling must leave room for multi-byte text.
func (b *Budgeter) Assemble(ranked []core.Fragment, maxChars int) Assembly {
	var (
		parts    []string
		included []core.Fragment
		chars    int
		tokens   int
	)

	for _, f := range ranked {
		block := FormatBlock(f)
		cost := utf8.RuneCountInString(block)
		if len(parts) > 0 {
			cost += utf8.RuneCountInString(BlockSeparator)
		}
		if chars+cost > maxChars {
			break
		}

		if b.counter != nil {
			blockTokens := b.counter.Count(block)
			if len(parts) > 0 {
				blockTokens += b.counter.Count(BlockSeparator)
			}
			if tokens+blockTokens > b.maxTokens {
				break
			}
			tokens += blockTokens
		}

		parts = append(parts, block)
		included = append(included, f)
		chars += cost
	}

	if len(parts) == 0 {
		return Assembly{Text: NoDocumentsMarker, Included: []core.Fragment{}}
	}
	return Assembly{Text: strings.Join(parts, BlockSeparator), Included: included}
}

// Budget returns only the context text of Assemble.
func (b *Budgeter) Budget(ranked []core.Fragment, maxChars int) string {
	return b.Assemble(ranked, maxChars).Text
}

// Budget packs ranked into maxChars with no token ceiling.
func Budget(ranked []core.Fragment, maxChars int) string {
	return NewBudgeter().Budget(ranked, maxChars)
}
