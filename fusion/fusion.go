// Package fusion merges semantic and lexical hits into one ranked, deduplicated list.
package fusion

import (
	"cmp"
	"slices"

	"github.com/poiesic/kbassist/core"
)

// DefaultEpsilon is how close a lexical hit's normalized score must be to a
// semantic hit's for the lexical hit to rank first.
const DefaultEpsilon = 0.1

// Fuser combines retrieval results. The zero value is not usable; use New.
type Fuser struct {
	epsilon float64
}

// Option configures a Fuser.
type Option func(*Fuser)

// WithEpsilon sets the lexical priority window. Negative values are treated as zero.
func WithEpsilon(epsilon float64) Option {
	return func(f *Fuser) {
		f.epsilon = max(epsilon, 0)
	}
}

// New creates a Fuser.
func New(opts ...Option) *Fuser {
	f := &Fuser{epsilon: DefaultEpsilon}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fuse normalizes each list against its own maximum, merges them with lexical
// priority inside the epsilon window, drops duplicates and assigns 1-based ranks.
// The inputs are not modified. Identical inputs always produce identical output.
func (f *Fuser) Fuse(semantic, lexical []core.Fragment) []core.Fragment {
	sem := normalize(semantic)
	lex := normalize(lexical)

	merged := make([]core.Fragment, 0, len(sem)+len(lex))
	i, j := 0, 0
	for i < len(sem) && j < len(lex) {
		if lex[j].NormalizedScore+f.epsilon >= sem[i].NormalizedScore {
			merged = append(merged, lex[j])
			j++
		} else {
			merged = append(merged, sem[i])
			i++
		}
	}
	merged = append(merged, lex[j:]...)
	merged = append(merged, sem[i:]...)

	fused := dedupe(merged)
	for k := range fused {
		fused[k].Rank = k + 1
	}
	return fused
}

// Fuse combines semantic and lexical results with the default epsilon.
func Fuse(semantic, lexical []core.Fragment) []core.Fragment {
	return New().Fuse(semantic, lexical)
}

// normalize copies fragments, scales scores into [0,1] and orders them by
// descending score, keeping incoming order among equals.
func normalize(fragments []core.Fragment) []core.Fragment {
	out := slices.Clone(fragments)
	if len(out) == 0 {
		return out
	}

	maxScore := out[0].Score
	for _, f := range out[1:] {
		maxScore = max(maxScore, f.Score)
	}

	for k := range out {
		if maxScore <= 0 {
			out[k].NormalizedScore = 0
			continue
		}
		out[k].NormalizedScore = min(max(out[k].Score/maxScore, 0), 1)
	}

	slices.SortStableFunc(out, func(a, b core.Fragment) int {
		return cmp.Compare(b.NormalizedScore, a.NormalizedScore)
	})
	return out
}

// dedupe keeps the first fragment for each normalized title and each content fingerprint.
func dedupe(fragments []core.Fragment) []core.Fragment {
	titles := make(map[string]bool, len(fragments))
	contents := make(map[string]bool, len(fragments))
	out := make([]core.Fragment, 0, len(fragments))

	for _, f := range fragments {
		title := core.NormalizeText(f.Title)
		fp := core.Fingerprint(f.Content)
		if (title != "" && titles[title]) || contents[fp] {
			continue
		}
		if title != "" {
			titles[title] = true
		}
		contents[fp] = true
		out = append(out, f)
	}
	return out
}
