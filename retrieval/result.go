package retrieval

import (
	"strconv"

	"github.com/poiesic/kbassist/core"
)

// Result is the outcome of one retrieval.
type Result struct {
	// Fragments are ordered by descending score.
	Fragments []core.Fragment

	// Degraded is set when the index could not be queried.
	Degraded bool

	// Reason holds the failure behind a degraded result.
	Reason error
}

// Degraded returns an empty result carrying reason.
func Degraded(reason error) Result {
	return Result{Fragments: []core.Fragment{}, Degraded: true, Reason: reason}
}

// Len returns the number of fragments.
func (r Result) Len() int {
	return len(r.Fragments)
}

// fragmentsFrom converts index hits into fragments of the given kind, keeping order.
func fragmentsFrom(hits []*core.ScoredEntry, kind core.SourceKind) []core.Fragment {
	fragments := make([]core.Fragment, 0, len(hits))
	for _, hit := range hits {
		if hit == nil || hit.Entry == nil {
			continue
		}
		e := hit.Entry
		fragments = append(fragments, core.Fragment{
			ID:            kind.String() + ":" + strconv.FormatUint(uint64(e.Id), 10),
			Title:         e.Title,
			Content:       e.Content,
			Kind:          kind,
			Origin:        e.Origin,
			Authoritative: e.Authoritative(),
			Score:         hit.Score,
		})
	}
	return fragments
}
