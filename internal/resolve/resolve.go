// Package resolve maps a request path to the page it designates by
// walking a site's Blueprint level by level.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/agentic-research/pagetree/api"
	"github.com/agentic-research/pagetree/internal/blueprint"
	"github.com/agentic-research/pagetree/internal/cache"
	"github.com/agentic-research/pagetree/internal/pattern"
)

var (
	// ErrNotFound means no page matches the path.
	ErrNotFound = errors.New("no page matches path")
	// ErrSiteMismatch means the path lies outside the site's base path.
	// It also matches ErrNotFound.
	ErrSiteMismatch = fmt.Errorf("%w: path outside of site", ErrNotFound)
	// ErrNoPage guards a matched chain whose records could not be loaded.
	ErrNoPage = errors.New("matched page has no record")
	// ErrNoHome is the configuration-fatal condition of a site without
	// a home page.
	ErrNoHome = cache.ErrNoHome
)

// Matcher tests path fragments against page patterns.
type Matcher interface {
	SegmentCount(tmpl string) int
	Match(tmpl, literal string) (map[string]string, bool, error)
	Format(tmpl string, vars map[string]string) (string, error)
}

// Source supplies the per-site tree and home page, usually a *cache.Cache.
type Source interface {
	Blueprint(ctx context.Context, siteID int64) (*blueprint.Blueprint, error)
	Home(ctx context.Context, siteID int64) (*api.Page, error)
}

// Result is a resolved path.
type Result struct {
	// Page is the leaf of Chain.
	Page *api.Page
	// Chain holds the matched pages from the root down to Page, each
	// with the fragment it consumed and the variables captured so far.
	Chain []*api.Page
	// Extension is the trailing extension split off the path, dot included.
	Extension string
}

// Resolver resolves paths against cached Blueprints.
type Resolver struct {
	src     Source
	loader  blueprint.Loader
	matcher Matcher
}

// New returns a Resolver. A nil matcher uses pattern.Default.
func New(src Source, loader blueprint.Loader, m Matcher) *Resolver {
	if m == nil {
		m = pattern.Default
	}
	return &Resolver{src: src, loader: loader, matcher: m}
}

type step struct {
	node *blueprint.Node
	part string
	vars map[string]string
}

// Resolve finds the page designated by rawPath on site.
//
// Errors: ErrSiteMismatch and ErrNotFound (both match ErrNotFound) for
// ordinary misses, ErrNoHome when the site has no home page, ErrNoPage
// when matched records vanished, and store errors unchanged.
func (r *Resolver) Resolve(ctx context.Context, site api.Site, rawPath string) (*Result, error) {
	path, ext := splitExtension(rawPath)
	path = strings.TrimSuffix(path, "/")

	rest, ok := trimSitePath(path, site.Path)
	if !ok {
		return nil, fmt.Errorf("%w: %q not under %q", ErrSiteMismatch, rawPath, site.Path)
	}

	if rest == "" {
		home, err := r.src.Home(ctx, site.ID)
		if err != nil {
			return nil, err
		}
		return &Result{Page: home, Chain: []*api.Page{home}, Extension: ext}, nil
	}

	bp, err := r.src.Blueprint(ctx, site.ID)
	if err != nil {
		return nil, err
	}

	chain, err := r.walk(bp, strings.Split(strings.TrimPrefix(rest, "/"), "/"))
	if err != nil {
		return nil, err
	}
	chain[len(chain)-1].part += ext

	pages, err := r.load(ctx, chain)
	if err != nil {
		return nil, err
	}
	return &Result{Page: pages[len(pages)-1], Chain: pages, Extension: ext}, nil
}

// walk matches segments level by level. At each level the first sibling
// that matches wins, in sibling order.
func (r *Resolver) walk(bp *blueprint.Blueprint, segments []string) ([]step, error) {
	tries := bp.Roots()
	vars := map[string]string{}
	var chain []step

	for i := 0; i < len(segments); i++ {
		segment := segments[i]
		consumed := segment
		var elected *blueprint.Node

		for _, n := range tries {
			if n.Pattern == "" {
				if n.Slug == segment {
					elected = n
					break
				}
				continue
			}

			nparts := r.matcher.SegmentCount(n.Pattern)
			candidate := strings.Join(segments[i:min(i+nparts, len(segments))], "/")
			captured, ok, err := r.matcher.Match(n.Pattern, candidate)
			if err != nil {
				return nil, fmt.Errorf("match page %d: %w", n.ID, err)
			}
			if !ok {
				continue
			}

			merged := maps.Clone(vars)
			maps.Copy(merged, captured) // new captures win
			vars = merged
			i += nparts - 1
			consumed = candidate
			elected = n
			break
		}

		if elected == nil {
			return nil, fmt.Errorf("%w: segment %q at level %d", ErrNotFound, segment, len(chain))
		}
		chain = append(chain, step{node: elected, part: consumed, vars: vars})
		tries = elected.Children()
	}
	return chain, nil
}

// load fetches the chain's records and propagates offline status down
// the chain. Only the returned copies are changed.
func (r *Resolver) load(ctx context.Context, chain []step) ([]*api.Page, error) {
	ids := make([]int64, len(chain))
	for i, s := range chain {
		ids[i] = s.node.ID
	}
	records, err := r.loader.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load matched pages: %w", err)
	}
	byID := make(map[int64]*api.Page, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	pages := make([]*api.Page, len(chain))
	var parent *api.Page
	for i, s := range chain {
		rec, ok := byID[s.node.ID]
		if !ok {
			return nil, fmt.Errorf("%w: page %d", ErrNoPage, s.node.ID)
		}
		rec = rec.Clone()
		rec.URLPart = s.part
		rec.URLVariables = nil
		if len(s.vars) > 0 {
			rec.URLVariables = maps.Clone(s.vars)
		}
		if parent != nil && !parent.IsOnline {
			rec.IsOnline = false
		}
		pages[i] = rec
		parent = rec
	}
	return pages, nil
}

// splitExtension splits a trailing ".ext" off the last path segment.
// A dot in first position is not an extension.
func splitExtension(path string) (string, string) {
	dot := strings.LastIndexByte(path, '.')
	if dot > 0 && dot > strings.LastIndexByte(path, '/') {
		return path[:dot], path[dot:]
	}
	return path, ""
}

// trimSitePath strips the site base path. The base path must end on a
// segment boundary: "/fr" matches "/fr" and "/fr/x", not "/fred".
func trimSitePath(path, base string) (string, bool) {
	if base == "" {
		return path, true
	}
	if !strings.HasPrefix(path, base) {
		return "", false
	}
	rest := path[len(base):]
	if rest != "" && rest[0] != '/' {
		return "", false
	}
	return rest, true
}
