package deptree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	var parseTests = []struct {
		line          string
		expectedWords []string
		skipped       int
	}{
		{"John/NNP/nsubj/1 eats/VBZ/ROOT/0 apples/NNS/dobj/1", []string{"John", "eats", "apples"}, 0},
		{"waits/VBZ/ROOT/0\tfor/IN/prep/1\tMary/NNP/pobj/2\t153", []string{"waits", "for", "Mary"}, 0},
		{"be\tdeath/NN/nsubj/2 be/VB/ROOT/0\t23\t1834,2", []string{"death", "be"}, 1},
		{"a/DT/det b/NN/dobj/x c/NN/dobj/2", []string{"a", "c"}, 1},
		{"and/or/CC/cc/3 x/NN/dobj/0", []string{"and/or", "x"}, 0},
		{"", nil, 0},
		{"\t\t153\t", nil, 0},
		{"noslash/NN", nil, 1},
		{"John/NNP/nsubj/1 eats/VBZ/ROOT/-1 apples/NNS/dobj/1", []string{"John", "eats", "apples"}, 0},
	}

	for _, test := range parseTests {
		nodes, skipped := ParseLine(test.line)
		words := make([]string, 0, len(nodes))
		for i, n := range nodes {
			assert.Equal(t, i, n.Pos)
			words = append(words, n.Word)
		}
		if test.expectedWords == nil {
			assert.Empty(t, nodes, test.line)
		} else {
			assert.Equal(t, test.expectedWords, words, test.line)
		}
		assert.Equal(t, test.skipped, skipped, test.line)
	}
}

func TestParseToken(t *testing.T) {
	node, ok := parseToken("apples/NNS/dobj/1")
	require.True(t, ok)
	assert.Equal(t, Node{Word: "apples", Tag: "NNS", Label: "dobj", Head: 1}, node)

	node, ok = parseToken("the/DT/det/")
	require.True(t, ok)
	assert.Equal(t, 0, node.Head)

	node, ok = parseToken("the/DT/det")
	require.True(t, ok)
	assert.Equal(t, 0, node.Head)

	_, ok = parseToken("the/DT/det/one")
	assert.False(t, ok)

	_, ok = parseToken("/DT/det/1")
	assert.False(t, ok)

	node, ok = parseToken("eats/VBZ/ROOT/-1")
	require.True(t, ok)
	assert.Equal(t, -1, node.Head)
}

func TestDetectBaseZeroBased(t *testing.T) {
	nodes, _ := ParseLine("John/NNP/nsubj/1 eats/VBZ/ROOT/0 apples/NNS/dobj/1")
	assert.Equal(t, ZeroBased, DetectBase(nodes))
}

func TestDetectBaseOneBased(t *testing.T) {
	nodes, _ := ParseLine("waits/VBZ/ROOT/0\tfor/IN/prep/1\tMary/NNP/pobj/2")
	assert.Equal(t, OneBased, DetectBase(nodes))
}

func TestDetectBaseTieIsZeroBased(t *testing.T) {
	// "a" resolves under both bases, "b" under neither.
	nodes := []Node{
		{Word: "a", Label: "dep", Head: 2, Pos: 0},
		{Word: "b", Label: "dep", Head: 9, Pos: 1},
		{Word: "c", Label: RootLabel, Head: 0, Pos: 2},
	}
	assert.Equal(t, ZeroBased, DetectBase(nodes))
}

func TestDetectBaseIdempotent(t *testing.T) {
	lines := []string{
		"John/NNP/nsubj/1 eats/VBZ/ROOT/0 apples/NNS/dobj/1",
		"waits/VBZ/ROOT/0\tfor/IN/prep/1\tMary/NNP/pobj/2",
		"John/NNP/nsubj/2\tis/VBZ/aux/2\twalking/VBG/ROOT/0",
	}
	for _, line := range lines {
		nodes, _ := ParseLine(line)
		first := DetectBase(nodes)
		for i := 0; i < 5; i++ {
			assert.Equal(t, first, DetectBase(nodes), line)
		}
		assert.Equal(t, first, NewForest(nodes).Base, line)
	}
}

func TestForestZeroBased(t *testing.T) {
	nodes, _ := ParseLine("John/NNP/nsubj/1 eats/VBZ/ROOT/0 apples/NNS/dobj/1")
	f := NewForest(nodes)

	require.Equal(t, 3, f.Len())
	assert.Equal(t, ZeroBased, f.Base)
	assert.Equal(t, []int{0, 2}, f.Children(1))
	assert.Equal(t, -1, f.Parent(1))
	assert.Equal(t, 1, f.Parent(0))
	assert.Empty(t, f.Children(0))
}

func TestForestOneBased(t *testing.T) {
	nodes, _ := ParseLine("waits/VBZ/ROOT/0\tfor/IN/prep/1\tMary/NNP/pobj/2")
	f := NewForest(nodes)

	assert.Equal(t, OneBased, f.Base)
	assert.Equal(t, []int{1}, f.Children(0))
	assert.Equal(t, []int{2}, f.Children(1))
	assert.Equal(t, 1, f.Parent(2))
}

func TestForestDropsSelfLoops(t *testing.T) {
	nodes := []Node{
		{Word: "a", Label: "dep", Head: 0, Pos: 0},
		{Word: "b", Label: "dep", Head: 0, Pos: 1},
	}
	f := NewForestWithBase(nodes, ZeroBased)
	assert.Equal(t, -1, f.Parent(0))
	assert.Equal(t, 0, f.Parent(1))
	assert.Equal(t, []int{1}, f.Children(0))
}

func TestForestNegativeHead(t *testing.T) {
	nodes, _ := ParseLine("John/NNP/nsubj/1 eats/VBZ/ROOT/-1 apples/NNS/dobj/1")
	f := NewForest(nodes)

	require.Equal(t, 3, f.Len())
	assert.Equal(t, ZeroBased, f.Base)
	assert.Equal(t, -1, f.Parent(1))
	assert.Equal(t, []int{0, 2}, f.Children(1))
}
