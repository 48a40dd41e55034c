package deptree

// Base is the interpretation of a line's head indices.
type Base int

const (
	// ZeroBased heads address another node's position directly.
	ZeroBased Base = iota
	// OneBased heads are position+1, with 0 meaning no parent.
	OneBased
)

func (b Base) String() string {
	if b == OneBased {
		return "1-based"
	}
	return "0-based"
}

// parentOf returns the arena index of n's parent under base, or -1 if the
// head does not resolve to a distinct node of a sentence of size nodes.
func parentOf(n Node, base Base, size int) int {
	if n.IsRoot() {
		return -1
	}

	parent := n.Head
	if base == OneBased {
		parent = n.Head - 1
	}
	if parent < 0 || parent >= size || parent == n.Pos {
		return -1
	}
	return parent
}

// DetectBase decides whether the head indices of nodes are 0-based or
// 1-based. Each interpretation gets one vote per node whose head resolves
// to a valid, distinct node; roots do not vote. The interpretation with
// more votes wins and ties go to ZeroBased. The result depends only on
// nodes, so repeated calls agree.
func DetectBase(nodes []Node) Base {
	zero, one := 0, 0
	for _, n := range nodes {
		if n.IsRoot() {
			continue
		}
		if parentOf(n, ZeroBased, len(nodes)) >= 0 {
			zero++
		}
		if parentOf(n, OneBased, len(nodes)) >= 0 {
			one++
		}
	}

	if one > zero {
		return OneBased
	}
	return ZeroBased
}

// Forest is the resolved dependency structure of one line: the node arena,
// the base its heads were read in, and an adjacency list from each node to
// its direct dependents.
type Forest struct {
	Nodes []Node
	Base  Base

	parents  []int
	children [][]int
}

// NewForest resolves nodes into a Forest using the base chosen by
// DetectBase.
func NewForest(nodes []Node) *Forest {
	return NewForestWithBase(nodes, DetectBase(nodes))
}

// NewForestWithBase resolves nodes into a Forest using the given base.
func NewForestWithBase(nodes []Node, base Base) *Forest {
	f := &Forest{
		Nodes:    nodes,
		Base:     base,
		parents:  make([]int, len(nodes)),
		children: make([][]int, len(nodes)),
	}

	for i, n := range nodes {
		p := parentOf(n, base, len(nodes))
		f.parents[i] = p
		if p >= 0 {
			f.children[p] = append(f.children[p], i)
		}
	}
	return f
}

// Parent returns the arena index of node i's parent, or -1.
func (f *Forest) Parent(i int) int {
	return f.parents[i]
}

// Children returns the arena indices of node i's direct dependents in
// sentence order.
func (f *Forest) Children(i int) []int {
	return f.children[i]
}

// Len returns the number of nodes in the forest.
func (f *Forest) Len() int {
	return len(f.Nodes)
}
