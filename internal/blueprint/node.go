package blueprint

import (
	"errors"

	"github.com/agentic-research/pagetree/api"
)

// ErrNotPopulated is returned by record accessors on a node whose
// Blueprint has not been populated yet.
var ErrNotPopulated = errors.New("blueprint node not populated")

// noParent marks a node without a parent inside its Blueprint.
const noParent = -1

// Node is the tree-local view of one page: the summary columns the tree
// is built from, plus its position in the Blueprint arena.
//
// Parent and children are arena indices, never owning pointers; bp is a
// back-reference to the arena used for navigation only.
type Node struct {
	ID                   int64
	ParentID             int64
	Slug                 string
	Pattern              string
	IsOnline             bool
	IsNavigationExcluded bool
	Depth                int

	bp       *Blueprint
	parent   int
	children []int
	record   *api.Page // guarded by bp.mu
}

// Parent returns the parent node, or nil for a root of the Blueprint.
func (n *Node) Parent() *Node {
	if n.parent == noParent {
		return nil
	}
	return &n.bp.nodes[n.parent]
}

// Children returns the child nodes in sibling order.
func (n *Node) Children() []*Node {
	out := make([]*Node, len(n.children))
	for i, c := range n.children {
		out[i] = &n.bp.nodes[c]
	}
	return out
}

func (n *Node) HasChildren() bool  { return len(n.children) > 0 }
func (n *Node) ChildrenCount() int { return len(n.children) }

// Descendants returns every node below n, parents before children.
func (n *Node) Descendants() []*Node {
	var out []*Node
	n.bp.walk(n.children, func(d *Node) { out = append(out, d) })
	return out
}

// DescendantsCount returns the number of nodes below n.
func (n *Node) DescendantsCount() int {
	count := 0
	n.bp.walk(n.children, func(*Node) { count++ })
	return count
}

// Trail returns the chain of nodes from the root down to n, inclusive.
func (n *Node) Trail() []*Node {
	var rev []*Node
	for p := n; p != nil; p = p.Parent() {
		rev = append(rev, p)
	}
	out := make([]*Node, len(rev))
	for i, p := range rev {
		out[len(rev)-1-i] = p
	}
	return out
}

// Record returns the full page attached by Populate.
func (n *Node) Record() (*api.Page, error) {
	n.bp.mu.RLock()
	defer n.bp.mu.RUnlock()
	if n.record == nil {
		return nil, ErrNotPopulated
	}
	return n.record, nil
}

// Populated reports whether a record is attached.
func (n *Node) Populated() bool {
	n.bp.mu.RLock()
	defer n.bp.mu.RUnlock()
	return n.record != nil
}

// Label is the navigation label of the page. Requires Populate.
func (n *Node) Label() (string, error) {
	rec, err := n.Record()
	if err != nil {
		return "", err
	}
	return rec.Label, nil
}
