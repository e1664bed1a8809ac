package blueprint

// Unbounded disables the depth limit of Subset.
const Unbounded = -1

// FilterFunc reports whether a node must be dropped from a subset.
// Dropping a node drops its whole branch.
type FilterFunc func(n *Node) bool

// Subset returns a new, independent Blueprint covering the nodes that
// survive a walk of the tree. The walk starts at the roots when start is
// 0, otherwise at the children of start; an unknown start yields an empty
// Blueprint.
//
// A node's children are walked only while node.Depth < maxDepth (or
// always with Unbounded). The filter runs after a node's children have
// been walked, so it sees the trimmed branch through n.Children().
//
// Nodes keep their id, attributes, depth and attached record. Nodes at
// the top of the subset have no Parent, but keep their ParentID.
func (bp *Blueprint) Subset(start int64, maxDepth int, filter FilterFunc) *Blueprint {
	out := &Blueprint{
		loader:   bp.loader,
		index:    make(map[int64]int),
		relation: make(map[int64]int64),
		children: make(map[int64][]int64),
	}

	var branch []int
	if start == 0 {
		branch = bp.tree
	} else if i, ok := bp.index[start]; ok {
		branch = bp.nodes[i].children
	}

	bp.mu.RLock()
	out.tree = bp.copyBranch(out, branch, noParent, maxDepth, filter)
	bp.mu.RUnlock()

	for i := range out.nodes {
		n := &out.nodes[i]
		out.index[n.ID] = i
		out.relation[n.ID] = n.ParentID
		if n.parent == noParent && bp.promoted(n.ID) {
			continue
		}
		out.children[n.ParentID] = append(out.children[n.ParentID], n.ID)
	}
	return out
}

// promoted reports whether id is a root that was detached from a known
// parent to break a cycle.
func (bp *Blueprint) promoted(id int64) bool {
	n := &bp.nodes[bp.index[id]]
	if n.parent != noParent || n.ParentID == 0 {
		return false
	}
	_, known := bp.index[n.ParentID]
	return known
}

// Filter is Subset over the whole tree without depth limit.
func (bp *Blueprint) Filter(filter FilterFunc) *Blueprint {
	return bp.Subset(0, Unbounded, filter)
}

// copyBranch clones branch into out and returns the arena positions of
// the surviving clones. Clones are appended depth first, so a dropped
// node and its copied descendants always sit at the tail of the arena and
// are removed by truncation.
func (bp *Blueprint) copyBranch(out *Blueprint, branch []int, parent, maxDepth int, filter FilterFunc) []int {
	var kept []int
	for _, src := range branch {
		orig := &bp.nodes[src]

		pos := len(out.nodes)
		clone := *orig
		clone.bp = out
		clone.parent = parent
		clone.children = nil
		out.nodes = append(out.nodes, clone)

		if len(orig.children) > 0 && (maxDepth == Unbounded || orig.Depth < maxDepth) {
			kids := bp.copyBranch(out, orig.children, pos, maxDepth, filter)
			out.nodes[pos].children = kids
		}

		if filter != nil && filter(&out.nodes[pos]) {
			out.nodes = out.nodes[:pos]
			continue
		}
		kept = append(kept, pos)
	}
	return kept
}
