package resolve

import (
	"context"
	"testing"

	"github.com/agentic-research/pagetree/api"
	"github.com/agentic-research/pagetree/internal/cache"
	"github.com/agentic-research/pagetree/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mainSite = api.Site{ID: 1, Name: "main"}

func setup(t *testing.T, pages ...api.Page) (*Resolver, *store.Memory) {
	t.Helper()
	s := store.NewMemory()
	for i := range pages {
		if pages[i].SiteID == 0 {
			pages[i].SiteID = 1
		}
		_, err := s.Save(context.Background(), &pages[i])
		require.NoError(t, err)
	}
	return New(cache.New(s, nil), s, nil), s
}

func chainIDs(r *Result) []int64 {
	ids := make([]int64, len(r.Chain))
	for i, p := range r.Chain {
		ids[i] = p.ID
	}
	return ids
}

func TestResolve_StaticSlugTrailingSlash(t *testing.T) {
	r, _ := setup(t, api.Page{ID: 1, Slug: "about", IsOnline: true})

	res, err := r.Resolve(context.Background(), mainSite, "/about/")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Page.ID)
	assert.Equal(t, "about", res.Page.URLPart)
	assert.Empty(t, res.Page.URLVariables)
}

func TestResolve_MultiSegmentPattern(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "blog", IsOnline: true},
		api.Page{ID: 2, ParentID: 1, Pattern: `<year:\d+>/<slug:\w+>`, IsOnline: true},
	)

	res, err := r.Resolve(context.Background(), mainSite, "/blog/2021/hello")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Page.ID)
	assert.Equal(t, map[string]string{"year": "2021", "slug": "hello"}, res.Page.URLVariables)
	assert.Equal(t, "2021/hello", res.Page.URLPart)
	assert.Equal(t, []int64{1, 2}, chainIDs(res))
}

func TestResolve_NoHomeIsFatal(t *testing.T) {
	r, _ := setup(t, api.Page{ID: 1, Slug: "draft"})

	_, err := r.Resolve(context.Background(), mainSite, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoHome)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestResolve_OfflinePropagatesDownTheChain(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "archive"},
		api.Page{ID: 2, ParentID: 1, Slug: "2019", IsOnline: true},
	)

	res, err := r.Resolve(context.Background(), mainSite, "/archive/2019")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Page.ID)
	assert.False(t, res.Page.IsOnline)
	assert.False(t, res.Chain[0].IsOnline)
}

func TestResolve_ExtensionAppendedToLeaf(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "docs", IsOnline: true},
		api.Page{ID: 2, ParentID: 1, Slug: "report", IsOnline: true},
	)

	res, err := r.Resolve(context.Background(), mainSite, "/docs/report.json")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Page.ID)
	assert.Equal(t, ".json", res.Extension)
	assert.Equal(t, "report.json", res.Page.URLPart)
	assert.Equal(t, "docs", res.Chain[0].URLPart)
}

func TestResolve_HomeOnEmptyRemainder(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "home", IsOnline: true},
		api.Page{ID: 2, Slug: "about", IsOnline: true, Weight: 1},
	)
	fr := api.Site{ID: 1, Path: "/fr"}

	for _, tc := range []struct {
		site api.Site
		path string
	}{
		{mainSite, ""},
		{mainSite, "/"},
		{fr, "/fr"},
		{fr, "/fr/"},
	} {
		res, err := r.Resolve(context.Background(), tc.site, tc.path)
		require.NoError(t, err, tc.path)
		assert.Equal(t, int64(1), res.Page.ID, tc.path)
		assert.Len(t, res.Chain, 1)
	}
}

func TestResolve_SiteMismatch(t *testing.T) {
	r, _ := setup(t, api.Page{ID: 1, Slug: "x", IsOnline: true})
	fr := api.Site{ID: 1, Path: "/fr"}

	for _, path := range []string{"/de/x", "/fred/x", "/x"} {
		_, err := r.Resolve(context.Background(), fr, path)
		assert.ErrorIs(t, err, ErrSiteMismatch, path)
		assert.ErrorIs(t, err, ErrNotFound, path)
	}

	res, err := r.Resolve(context.Background(), fr, "/fr/x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Page.ID)
}

func TestResolve_UnmatchedSegment(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "blog", IsOnline: true},
		api.Page{ID: 2, ParentID: 1, Pattern: `<id:\d+>`, IsOnline: true},
	)

	for _, path := range []string{"/nope", "/blog/abc", "/blog/12/extra"} {
		_, err := r.Resolve(context.Background(), mainSite, path)
		assert.ErrorIs(t, err, ErrNotFound, path)
		assert.NotErrorIs(t, err, ErrSiteMismatch, path)
	}
}

func TestResolve_FirstSiblingWins(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Pattern: `<first:\w+>`, IsOnline: true, Weight: 0},
		api.Page{ID: 2, Pattern: `<second:\w+>`, IsOnline: true, Weight: 1},
		api.Page{ID: 3, Slug: "static", IsOnline: true, Weight: 2},
	)

	res, err := r.Resolve(context.Background(), mainSite, "/static")
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Page.ID)
	assert.Equal(t, map[string]string{"first": "static"}, res.Page.URLVariables)
}

func TestResolve_LaterCaptureOverridesEarlier(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Pattern: `<id:\d+>`, IsOnline: true},
		api.Page{ID: 2, ParentID: 1, Pattern: `<id:[a-z]+>`, IsOnline: true},
	)

	res, err := r.Resolve(context.Background(), mainSite, "/12/abc")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"id": "abc"}, res.Page.URLVariables)
	assert.Equal(t, map[string]string{"id": "12"}, res.Chain[0].URLVariables)
}

func TestResolve_Idempotent(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "blog", IsOnline: true},
		api.Page{ID: 2, ParentID: 1, Pattern: `<year:\d+>/<slug:\w+>`, IsOnline: true},
	)

	first, err := r.Resolve(context.Background(), mainSite, "/blog/2021/hello.html")
	require.NoError(t, err)
	second, err := r.Resolve(context.Background(), mainSite, "/blog/2021/hello.html")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.NotSame(t, first.Page, second.Page)
}

func TestResolve_MissingRecord(t *testing.T) {
	s := store.NewMemory()
	_, err := s.Save(context.Background(), &api.Page{ID: 1, SiteID: 1, Slug: "gone", IsOnline: true})
	require.NoError(t, err)
	r := New(cache.New(s, nil), store.NewMemory(), nil)

	_, err = r.Resolve(context.Background(), mainSite, "/gone")
	assert.ErrorIs(t, err, ErrNoPage)
}

func TestURL_RoundTrip(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "home", IsOnline: true},
		api.Page{ID: 2, Slug: "blog", IsOnline: true, Weight: 1},
		api.Page{ID: 3, ParentID: 2, Pattern: `<year:\d+>/<slug:\w+>`, IsOnline: true},
		api.Page{ID: 4, Slug: "about", IsOnline: true, Weight: 2},
		api.Page{ID: 5, ParentID: 4, Slug: "team", IsOnline: true},
	)
	ctx := context.Background()
	vars := map[string]string{"year": "2021", "slug": "hello"}

	for _, site := range []api.Site{mainSite, {ID: 1, Path: "/fr"}} {
		for _, tc := range []struct {
			id   int64
			want string
		}{
			{1, "/"},
			{2, "/blog/"},
			{3, "/blog/2021/hello"},
			{4, "/about/"},
			{5, "/about/team"},
		} {
			u, err := r.URL(ctx, site, tc.id, vars)
			require.NoError(t, err)
			assert.Equal(t, site.Path+tc.want, u)

			res, err := r.Resolve(ctx, site, u)
			require.NoError(t, err, u)
			assert.Equal(t, tc.id, res.Page.ID, u)
		}
	}

	res, err := r.Resolve(ctx, mainSite, "/blog/2021/hello")
	require.NoError(t, err)
	assert.Equal(t, vars, res.Page.URLVariables)
}

func TestURL_Errors(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "blog", IsOnline: true},
		api.Page{ID: 2, ParentID: 1, Pattern: `<year:\d+>`, IsOnline: true},
	)
	ctx := context.Background()

	_, err := r.URL(ctx, mainSite, 99, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.URL(ctx, mainSite, 2, nil)
	assert.Error(t, err)
}

func TestURLPattern(t *testing.T) {
	r, _ := setup(t,
		api.Page{ID: 1, Slug: "blog", IsOnline: true},
		api.Page{ID: 2, ParentID: 1, Pattern: `<year:\d+>`, IsOnline: true},
		api.Page{ID: 3, ParentID: 2, Slug: "index", IsOnline: true},
	)
	ctx := context.Background()

	got, err := r.URLPattern(ctx, mainSite, 2)
	require.NoError(t, err)
	assert.Equal(t, `/blog/<year:\d+>/`, got)

	got, err = r.URLPattern(ctx, api.Site{ID: 1, Path: "/fr"}, 3)
	require.NoError(t, err)
	assert.Equal(t, `/fr/blog/<year:\d+>/index`, got)
}

func TestSplitExtension(t *testing.T) {
	tests := []struct {
		in, path, ext string
	}{
		{"/a/b.json", "/a/b", ".json"},
		{"/a.b/c", "/a.b/c", ""},
		{".hidden", ".hidden", ""},
		{"/a/.hidden", "/a/", ".hidden"},
		{"/a/b", "/a/b", ""},
		{"", "", ""},
	}
	for _, tt := range tests {
		p, e := splitExtension(tt.in)
		assert.Equal(t, tt.path, p, tt.in)
		assert.Equal(t, tt.ext, e, tt.in)
	}
}
