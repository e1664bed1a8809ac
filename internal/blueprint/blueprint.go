// Package blueprint holds the in-memory tree index of a site's pages.
//
// A Blueprint is built once from the site's summary rows, ordered by
// (weight, created_at), and is read-only afterwards. The only mutation it
// accepts is Populate, which attaches full records to the nodes.
package blueprint

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/agentic-research/pagetree/api"
)

// ErrNoLoader is returned by Populate on a Blueprint built without a Loader.
var ErrNoLoader = errors.New("blueprint has no record loader")

// Loader batch-loads full page records by id.
type Loader interface {
	FindByIDs(ctx context.Context, ids []int64) ([]*api.Page, error)
}

// Blueprint is an arena of nodes plus the flattened relation maps.
type Blueprint struct {
	mu     sync.RWMutex // guards Node.record
	loader Loader

	nodes    []Node
	index    map[int64]int     // id -> arena position
	relation map[int64]int64   // id -> parent id
	children map[int64][]int64 // parent id -> child ids, sibling order
	tree     []int             // root positions, sibling order
}

// Build turns ordered summary rows into a Blueprint. It never fails:
// a row whose parent is zero or unknown becomes a root. Duplicate ids
// keep their first row.
//
// Rows forming a parent cycle cannot be reached from any root. For each
// cycle, the member met first when walking up from the earliest
// unreachable row is detached from its parent and promoted to a root,
// which breaks the cycle and keeps every node reachable.
func Build(rows []api.Page, loader Loader) *Blueprint {
	bp := &Blueprint{
		loader:   loader,
		nodes:    make([]Node, 0, len(rows)),
		index:    make(map[int64]int, len(rows)),
		relation: make(map[int64]int64, len(rows)),
		children: make(map[int64][]int64),
	}

	for i := range rows {
		r := &rows[i]
		if _, dup := bp.index[r.ID]; dup {
			continue
		}
		bp.index[r.ID] = len(bp.nodes)
		bp.relation[r.ID] = r.ParentID
		bp.children[r.ParentID] = append(bp.children[r.ParentID], r.ID)
		bp.nodes = append(bp.nodes, Node{
			ID:                   r.ID,
			ParentID:             r.ParentID,
			Slug:                 r.Slug,
			Pattern:              r.Pattern,
			IsOnline:             r.IsOnline,
			IsNavigationExcluded: r.IsNavigationExcluded,
			bp:                   bp,
			parent:               noParent,
		})
	}

	for i := range bp.nodes {
		n := &bp.nodes[i]
		p, ok := bp.index[n.ParentID]
		if n.ParentID == 0 || !ok {
			bp.tree = append(bp.tree, i)
			continue
		}
		n.parent = p
		bp.nodes[p].children = append(bp.nodes[p].children, i)
	}

	reached := make([]bool, len(bp.nodes))
	bp.setDepth(bp.tree, 0, reached)

	for i := range bp.nodes {
		if reached[i] {
			continue
		}
		c := bp.cycleMember(i)
		bp.promote(c)
		bp.setDepth([]int{c}, 0, reached)
	}

	return bp
}

// cycleMember walks up from an unreachable node until a node repeats.
// The repeated node lies on the cycle.
func (bp *Blueprint) cycleMember(i int) int {
	seen := make(map[int]bool)
	for !seen[i] {
		seen[i] = true
		i = bp.nodes[i].parent
	}
	return i
}

// promote detaches node i from its parent and makes it a root.
func (bp *Blueprint) promote(i int) {
	n := &bp.nodes[i]
	slog.Warn("blueprint: parent cycle, promoting page to root", "id", n.ID, "parent_id", n.ParentID)

	p := &bp.nodes[n.parent]
	p.children = removeInt(p.children, i)
	bp.children[n.ParentID] = removeID(bp.children[n.ParentID], n.ID)
	if len(bp.children[n.ParentID]) == 0 {
		delete(bp.children, n.ParentID)
	}
	n.parent = noParent
	bp.tree = append(bp.tree, i)
}

func (bp *Blueprint) setDepth(branch []int, depth int, reached []bool) {
	for _, i := range branch {
		reached[i] = true
		bp.nodes[i].Depth = depth
		bp.setDepth(bp.nodes[i].children, depth+1, reached)
	}
}

// walk visits the branch depth first, parents before children.
func (bp *Blueprint) walk(branch []int, fn func(*Node)) {
	for _, i := range branch {
		fn(&bp.nodes[i])
		bp.walk(bp.nodes[i].children, fn)
	}
}

// Len returns the number of nodes.
func (bp *Blueprint) Len() int { return len(bp.nodes) }

// Node returns the node with the given id.
func (bp *Blueprint) Node(id int64) (*Node, bool) {
	i, ok := bp.index[id]
	if !ok {
		return nil, false
	}
	return &bp.nodes[i], true
}

// Roots returns the top-level nodes in sibling order.
func (bp *Blueprint) Roots() []*Node {
	out := make([]*Node, len(bp.tree))
	for i, p := range bp.tree {
		out[i] = &bp.nodes[p]
	}
	return out
}

// All iterates over every node in index order (row order for a built
// Blueprint). The sequence can be ranged over any number of times.
func (bp *Blueprint) All() iter.Seq[*Node] {
	return func(yield func(*Node) bool) {
		for i := range bp.nodes {
			if !yield(&bp.nodes[i]) {
				return
			}
		}
	}
}

// IDs returns every node id in index order.
func (bp *Blueprint) IDs() []int64 {
	ids := make([]int64, len(bp.nodes))
	for i := range bp.nodes {
		ids[i] = bp.nodes[i].ID
	}
	return ids
}

// Relation returns the parent id recorded for id.
func (bp *Blueprint) Relation(id int64) (int64, bool) {
	p, ok := bp.relation[id]
	return p, ok
}

// ChildIDs returns the ids recorded as children of parentID.
func (bp *Blueprint) ChildIDs(parentID int64) []int64 {
	return append([]int64(nil), bp.children[parentID]...)
}

// HasChildren reports whether id has at least one child.
func (bp *Blueprint) HasChildren(id int64) bool {
	return len(bp.children[id]) > 0
}

// ChildrenCount returns the number of children of id, 0 if unknown.
func (bp *Blueprint) ChildrenCount(id int64) int {
	return len(bp.children[id])
}

// OrderedNodes flattens the tree depth first, parents before children.
func (bp *Blueprint) OrderedNodes() []*Node {
	out := make([]*Node, 0, len(bp.nodes))
	bp.walk(bp.tree, func(n *Node) { out = append(out, n) })
	return out
}

// OrderedRecords returns the records in OrderedNodes order, populating the
// Blueprint first when needed. Nodes whose record could not be loaded are
// skipped.
func (bp *Blueprint) OrderedRecords(ctx context.Context) ([]*api.Page, error) {
	if len(bp.nodes) == 0 {
		return nil, nil
	}
	if !bp.nodes[0].Populated() {
		if _, err := bp.Populate(ctx); err != nil {
			return nil, err
		}
	}

	out := make([]*api.Page, 0, len(bp.nodes))
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	bp.walk(bp.tree, func(n *Node) {
		if n.record != nil {
			out = append(out, n.record)
		}
	})
	return out, nil
}

// Populate loads the full record of every node and attaches it. Calling it
// again reloads and reattaches; the tree structure is never touched.
func (bp *Blueprint) Populate(ctx context.Context) ([]*api.Page, error) {
	if len(bp.nodes) == 0 {
		return nil, nil
	}
	if bp.loader == nil {
		return nil, ErrNoLoader
	}

	records, err := bp.loader.FindByIDs(ctx, bp.IDs())
	if err != nil {
		return nil, fmt.Errorf("populate blueprint: %w", err)
	}

	bp.mu.Lock()
	defer bp.mu.Unlock()
	for _, rec := range records {
		if i, ok := bp.index[rec.ID]; ok {
			bp.nodes[i].record = rec
		}
	}
	return records, nil
}

// Descendants returns the ids of every node below id. The set is empty
// when id is unknown or a leaf.
func (bp *Blueprint) Descendants(id int64) *roaring64.Bitmap {
	bm := roaring64.New()
	n, ok := bp.Node(id)
	if !ok {
		return bm
	}
	bp.walk(n.children, func(d *Node) { bm.Add(uint64(d.ID)) })
	return bm
}

// Trail returns the ids from the root down to id, inclusive.
func (bp *Blueprint) Trail(id int64) *roaring64.Bitmap {
	bm := roaring64.New()
	n, ok := bp.Node(id)
	if !ok {
		return bm
	}
	for _, p := range n.Trail() {
		bm.Add(uint64(p.ID))
	}
	return bm
}

func removeInt(s []int, v int) []int {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

func removeID(s []int64, v int64) []int64 {
	out := s[:0]
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
