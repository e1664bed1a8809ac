package blueprint

import (
	"context"
	"errors"
	"testing"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/agentic-research/pagetree/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapLoader struct {
	pages map[int64]*api.Page
	calls int
	err   error
}

func (l *mapLoader) FindByIDs(_ context.Context, ids []int64) ([]*api.Page, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	var out []*api.Page
	for _, id := range ids {
		if p, ok := l.pages[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func loaderFor(rows []api.Page) *mapLoader {
	l := &mapLoader{pages: make(map[int64]*api.Page)}
	for i := range rows {
		p := rows[i]
		p.Label = p.Slug + "-label"
		l.pages[p.ID] = &p
	}
	return l
}

// siteRows is a small site:
//
//	1 home
//	2 about
//	  4 team
//	    6 alice
//	  5 history
//	3 blog
//	  7 <year>/<slug>
func siteRows() []api.Page {
	return []api.Page{
		{ID: 1, Slug: "home", IsOnline: true},
		{ID: 2, Slug: "about", IsOnline: true},
		{ID: 3, Slug: "blog", IsOnline: true},
		{ID: 4, ParentID: 2, Slug: "team", IsOnline: true},
		{ID: 5, ParentID: 2, Slug: "history", IsOnline: false},
		{ID: 6, ParentID: 4, Slug: "alice", IsOnline: true},
		{ID: 7, ParentID: 3, Pattern: `<year:\d+>/<slug:\w+>`, IsOnline: true},
	}
}

func ids(nodes []*Node) []int64 {
	out := make([]int64, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestBuild_TreeShape(t *testing.T) {
	bp := Build(siteRows(), nil)

	assert.Equal(t, 7, bp.Len())
	assert.Equal(t, []int64{1, 2, 3}, ids(bp.Roots()))

	about, ok := bp.Node(2)
	require.True(t, ok)
	assert.Equal(t, []int64{4, 5}, ids(about.Children()))
	assert.Nil(t, about.Parent())

	alice, _ := bp.Node(6)
	assert.Equal(t, int64(4), alice.Parent().ID)
	assert.Equal(t, []int64{2, 4, 6}, ids(alice.Trail()))
}

func TestBuild_DepthMatchesAncestorCount(t *testing.T) {
	bp := Build(siteRows(), nil)
	for n := range bp.All() {
		ancestors := 0
		for p := n.Parent(); p != nil; p = p.Parent() {
			ancestors++
		}
		assert.Equal(t, ancestors, n.Depth, "node %d", n.ID)
	}
}

func TestBuild_OrphanBecomesRoot(t *testing.T) {
	bp := Build([]api.Page{
		{ID: 1, Slug: "a"},
		{ID: 2, ParentID: 99, Slug: "orphan"},
		{ID: 3, ParentID: 2, Slug: "child"},
	}, nil)

	assert.Equal(t, []int64{1, 2}, ids(bp.Roots()))
	child, _ := bp.Node(3)
	assert.Equal(t, 1, child.Depth)

	// The unknown parent still appears in the flat maps.
	assert.Equal(t, []int64{2}, bp.ChildIDs(99))
	p, ok := bp.Relation(2)
	assert.True(t, ok)
	assert.Equal(t, int64(99), p)
}

func TestBuild_PreservesRowOrder(t *testing.T) {
	// Rows arrive sorted by weight; the builder must not reorder them.
	bp := Build([]api.Page{
		{ID: 10, Slug: "z", Weight: 0},
		{ID: 3, Slug: "a", Weight: 1},
		{ID: 7, ParentID: 10, Slug: "y"},
		{ID: 5, ParentID: 10, Slug: "b"},
	}, nil)

	assert.Equal(t, []int64{10, 3}, ids(bp.Roots()))
	assert.Equal(t, []int64{7, 5}, bp.ChildIDs(10))
	assert.Equal(t, []int64{10, 3, 7, 5}, bp.IDs())
}

func TestBuild_DuplicateIDKeepsFirstRow(t *testing.T) {
	bp := Build([]api.Page{
		{ID: 1, Slug: "first"},
		{ID: 1, Slug: "second"},
	}, nil)
	assert.Equal(t, 1, bp.Len())
	n, _ := bp.Node(1)
	assert.Equal(t, "first", n.Slug)
}

func TestBuild_CycleIsBroken(t *testing.T) {
	bp := Build([]api.Page{
		{ID: 1, Slug: "root"},
		{ID: 3, ParentID: 4, Slug: "hangs-off-cycle"},
		{ID: 4, ParentID: 5, Slug: "a"},
		{ID: 5, ParentID: 4, Slug: "b"},
	}, nil)

	// Every node is reachable and has a well defined depth.
	assert.Len(t, bp.OrderedNodes(), 4)
	for n := range bp.All() {
		ancestors := 0
		for p := n.Parent(); p != nil; p = p.Parent() {
			ancestors++
		}
		assert.Equal(t, ancestors, n.Depth, "node %d", n.ID)
	}

	// The row hanging off the cycle keeps its parent.
	n3, _ := bp.Node(3)
	require.NotNil(t, n3.Parent())
	assert.Equal(t, int64(4), n3.Parent().ID)
	assert.Len(t, bp.Roots(), 2)
}

func TestSubset_PromotedRootStaysDetached(t *testing.T) {
	bp := Build([]api.Page{
		{ID: 1, ParentID: 2, Slug: "a"},
		{ID: 2, ParentID: 1, Slug: "b"},
	}, nil)
	sub := bp.Filter(nil)

	for _, b := range []*Blueprint{bp, sub} {
		for n := range b.All() {
			assert.Equal(t, n.ChildrenCount(), b.ChildrenCount(n.ID), "node %d", n.ID)
			assert.Len(t, b.ChildIDs(n.ID), n.ChildrenCount(), "node %d", n.ID)
		}
	}
	assert.Equal(t, ids(bp.OrderedNodes()), ids(sub.OrderedNodes()))
}

func TestChildrenCount(t *testing.T) {
	bp := Build(siteRows(), loaderFor(siteRows()))

	check := func() {
		for n := range bp.All() {
			assert.Equal(t, len(n.Children()), bp.ChildrenCount(n.ID))
			assert.Equal(t, n.HasChildren(), bp.HasChildren(n.ID))
		}
		assert.Equal(t, 0, bp.ChildrenCount(404))
		assert.False(t, bp.HasChildren(404))
	}

	check()
	_, err := bp.Populate(context.Background())
	require.NoError(t, err)
	check()
}

func TestOrderedNodes(t *testing.T) {
	bp := Build(siteRows(), nil)
	assert.Equal(t, []int64{1, 2, 4, 6, 5, 3, 7}, ids(bp.OrderedNodes()))
}

func TestDescendants(t *testing.T) {
	bp := Build(siteRows(), nil)

	about, _ := bp.Node(2)
	assert.Equal(t, []int64{4, 6, 5}, ids(about.Descendants()))
	assert.Equal(t, 3, about.DescendantsCount())

	assert.Equal(t, []uint64{4, 5, 6}, bp.Descendants(2).ToArray())
	assert.True(t, bp.Descendants(6).IsEmpty())
	assert.True(t, bp.Descendants(404).IsEmpty())
	assert.Equal(t, []uint64{2, 4, 6}, bp.Trail(6).ToArray())
}

func TestPopulate(t *testing.T) {
	rows := siteRows()
	loader := loaderFor(rows)
	bp := Build(rows, loader)

	n, _ := bp.Node(6)
	_, err := n.Record()
	assert.ErrorIs(t, err, ErrNotPopulated)

	records, err := bp.Populate(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 7)

	label, err := n.Label()
	require.NoError(t, err)
	assert.Equal(t, "alice-label", label)
}

func TestPopulate_Empty(t *testing.T) {
	loader := &mapLoader{}
	bp := Build(nil, loader)
	records, err := bp.Populate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, loader.calls)
}

func TestPopulate_PropagatesLoaderError(t *testing.T) {
	boom := errors.New("boom")
	bp := Build(siteRows(), &mapLoader{err: boom})
	_, err := bp.Populate(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = Build(siteRows(), nil).Populate(context.Background())
	assert.ErrorIs(t, err, ErrNoLoader)
}

func TestOrderedRecords_PopulatesOnce(t *testing.T) {
	rows := siteRows()
	loader := loaderFor(rows)
	bp := Build(rows, loader)

	records, err := bp.OrderedRecords(context.Background())
	require.NoError(t, err)
	got := make([]int64, len(records))
	for i, r := range records {
		got[i] = r.ID
	}
	assert.Equal(t, []int64{1, 2, 4, 6, 5, 3, 7}, got)

	_, err = bp.OrderedRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
}

func TestSubset_KeepAllReproducesShape(t *testing.T) {
	bp := Build(siteRows(), nil)
	sub := bp.Subset(0, Unbounded, func(*Node) bool { return false })

	require.Equal(t, bp.Len(), sub.Len())
	assert.Equal(t, ids(bp.OrderedNodes()), ids(sub.OrderedNodes()))

	for n := range bp.All() {
		c, ok := sub.Node(n.ID)
		require.True(t, ok)
		assert.NotSame(t, n, c)
		assert.Equal(t, n.Depth, c.Depth)
		assert.Equal(t, ids(n.Children()), ids(c.Children()))
		assert.Equal(t, bp.ChildIDs(n.ID), sub.ChildIDs(n.ID))
	}
}

func TestSubset_FilteredBranchCascades(t *testing.T) {
	bp := Build(siteRows(), nil)

	// Drop "about" only; its children pass the filter on their own.
	sub := bp.Filter(func(n *Node) bool { return n.ID == 2 })

	for _, id := range []int64{2, 4, 5, 6} {
		_, ok := sub.Node(id)
		assert.False(t, ok, "node %d should be gone", id)
		_, ok = sub.Relation(id)
		assert.False(t, ok)
	}
	assert.Empty(t, sub.ChildIDs(2))
	assert.Equal(t, []int64{1, 3}, ids(sub.Roots()))
	assert.Equal(t, []int64{1, 3, 7}, ids(sub.OrderedNodes()))
}

func TestSubset_FilterSeesTrimmedChildren(t *testing.T) {
	bp := Build(siteRows(), nil)

	var aboutKids []int64
	sub := bp.Filter(func(n *Node) bool {
		if n.ID == 2 {
			aboutKids = ids(n.Children())
		}
		return Offline(n)
	})

	assert.Equal(t, []int64{4}, aboutKids)
	about, _ := sub.Node(2)
	assert.Equal(t, 1, about.ChildrenCount())
	assert.Equal(t, 1, sub.ChildrenCount(2))
}

func TestSubset_MaxDepth(t *testing.T) {
	bp := Build(siteRows(), nil)

	sub := bp.Subset(0, 0, nil)
	assert.Equal(t, []int64{1, 2, 3}, ids(sub.OrderedNodes()))

	sub = bp.Subset(0, 1, nil)
	assert.Equal(t, []int64{1, 2, 4, 5, 3, 7}, ids(sub.OrderedNodes()))
}

func TestSubset_FromStartNode(t *testing.T) {
	bp := Build(siteRows(), nil)

	sub := bp.Subset(2, Unbounded, nil)
	assert.Equal(t, []int64{4, 5}, ids(sub.Roots()))
	assert.Equal(t, []int64{4, 6, 5}, ids(sub.OrderedNodes()))

	team, _ := sub.Node(4)
	assert.Nil(t, team.Parent())
	assert.Equal(t, int64(2), team.ParentID)
	assert.Equal(t, 1, team.Depth)

	assert.Equal(t, 0, bp.Subset(404, Unbounded, nil).Len())
}

func TestSubset_DoesNotAliasSource(t *testing.T) {
	rows := siteRows()
	bp := Build(rows, loaderFor(rows))
	sub := bp.Filter(nil)

	_, err := sub.Populate(context.Background())
	require.NoError(t, err)

	n, _ := bp.Node(1)
	assert.False(t, n.Populated())
}

func TestFilters(t *testing.T) {
	bp := Build(siteRows(), nil)

	nav := bp.Filter(NavigationHidden)
	assert.Equal(t, []int64{1, 2, 4, 6, 3}, ids(nav.OrderedNodes()))

	expanded := roaring64.BitmapOf(2)
	managed := bp.Filter(Collapsed(expanded))
	assert.Equal(t, []int64{1, 2, 4, 5, 3}, ids(managed.OrderedNodes()))

	branch := bp.Subset(2, Unbounded, OutsideTrail(bp.Trail(4)))
	assert.Equal(t, []int64{4, 6}, ids(branch.OrderedNodes()))

	excluded := bp.Filter(AnyOf(ExcludeIDs(roaring64.BitmapOf(3)), Offline))
	assert.Equal(t, []int64{1, 2, 4, 6}, ids(excluded.OrderedNodes()))
}
