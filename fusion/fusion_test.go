package fusion

import (
	"testing"

	"github.com/poiesic/kbassist/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sem(title string, score float64) core.Fragment {
	return core.Fragment{ID: "s-" + title, Title: title, Content: title + " semantic body", Kind: core.SourceSemantic, Score: score}
}

func lex(title string, score float64) core.Fragment {
	return core.Fragment{ID: "l-" + title, Title: title, Content: title + " lexical body", Kind: core.SourceLexical, Score: score, Authoritative: true}
}

func titles(fragments []core.Fragment) []string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		out[i] = f.Title
	}
	return out
}

func TestFuse_BothEmpty(t *testing.T) {
	fused := Fuse(nil, nil)
	assert.NotNil(t, fused)
	assert.Empty(t, fused)
}

func TestFuse_SingleSource(t *testing.T) {
	fused := Fuse([]core.Fragment{sem("a", 0.4), sem("b", 0.8)}, nil)
	require.Len(t, fused, 2)
	assert.Equal(t, []string{"b", "a"}, titles(fused))
	assert.Equal(t, 1.0, fused[0].NormalizedScore)
	assert.Equal(t, 0.5, fused[1].NormalizedScore)
	assert.Equal(t, 1, fused[0].Rank)
	assert.Equal(t, 2, fused[1].Rank)
	// Original scores survive
	assert.Equal(t, 0.8, fused[0].Score)
}

func TestFuse_LexicalPriorityWithinEpsilon(t *testing.T) {
	// Normalized: semantic x=1.0 y=0.5; lexical p=1.0 q=0.2
	fused := Fuse(
		[]core.Fragment{sem("x", 0.6), sem("y", 0.3)},
		[]core.Fragment{lex("p", 4), lex("q", 0.8)},
	)
	assert.Equal(t, []string{"p", "x", "y", "q"}, titles(fused))
	for i, f := range fused {
		assert.Equal(t, i+1, f.Rank)
	}
}

func TestFuse_SemanticWinsOutsideEpsilon(t *testing.T) {
	fused := New(WithEpsilon(0.05)).Fuse(
		[]core.Fragment{sem("x", 1.0), sem("y", 0.9)},
		[]core.Fragment{lex("p", 10), lex("q", 5)},
	)
	// p=1.0 beats x=1.0 (tie); q=0.5 loses to y=0.9
	assert.Equal(t, []string{"p", "x", "y", "q"}, titles(fused))

	fused = New(WithEpsilon(0.5)).Fuse(
		[]core.Fragment{sem("x", 1.0), sem("y", 0.9)},
		[]core.Fragment{lex("p", 10), lex("q", 5)},
	)
	assert.Equal(t, []string{"p", "q", "x", "y"}, titles(fused))
}

func TestFuse_CrossSourceDedup(t *testing.T) {
	fused := Fuse(
		[]core.Fragment{sem("Company Remote Work Policy", 0.55)},
		[]core.Fragment{lex("company  remote work policy ", 0.9)},
	)
	require.Len(t, fused, 1)
	assert.Equal(t, core.SourceLexical, fused[0].Kind)
	assert.Equal(t, 0.9, fused[0].Score)
}

func TestFuse_DedupByContent(t *testing.T) {
	a := sem("Vacation", 0.9)
	b := sem("Time off", 0.8)
	b.Content = "  VACATION semantic   body"
	fused := Fuse([]core.Fragment{a, b}, nil)
	require.Len(t, fused, 1)
	assert.Equal(t, "Vacation", fused[0].Title)
}

func TestFuse_Deterministic(t *testing.T) {
	semantic := []core.Fragment{sem("a", 0.5), sem("b", 0.5), sem("c", 0.2)}
	lexical := []core.Fragment{lex("d", 0.3), lex("e", 0.3), lex("a", 0.1)}

	first := Fuse(semantic, lexical)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Fuse(semantic, lexical))
	}
}

func TestFuse_DoesNotModifyInputs(t *testing.T) {
	semantic := []core.Fragment{sem("a", 0.2), sem("b", 0.4)}
	Fuse(semantic, nil)
	assert.Equal(t, "a", semantic[0].Title)
	assert.Zero(t, semantic[0].NormalizedScore)
	assert.Zero(t, semantic[0].Rank)
}

func TestFuse_NonPositiveScores(t *testing.T) {
	fused := Fuse([]core.Fragment{sem("a", 0), sem("b", -1)}, nil)
	require.Len(t, fused, 2)
	for _, f := range fused {
		assert.Equal(t, 0.0, f.NormalizedScore)
	}
	assert.Equal(t, []string{"a", "b"}, titles(fused))
}

func TestWithEpsilon_Negative(t *testing.T) {
	f := New(WithEpsilon(-1))
	assert.Equal(t, 0.0, f.epsilon)
}
