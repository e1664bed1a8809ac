package resolve

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/agentic-research/pagetree/api"
	"github.com/agentic-research/pagetree/internal/blueprint"
)

// URL builds the path that resolves back to page id on site. Pattern
// pages along the trail are formatted with vars. Pages with children get
// a trailing "/" and the home page is the site root.
func (r *Resolver) URL(ctx context.Context, site api.Site, id int64, vars map[string]string) (string, error) {
	home, err := r.src.Home(ctx, site.ID)
	switch {
	case err == nil && home.ID == id:
		return site.Path + "/", nil
	case err != nil && !errors.Is(err, ErrNoHome):
		return "", err
	}

	n, err := r.node(ctx, site.ID, id)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, t := range n.Trail() {
		if t.Pattern == "" {
			parts = append(parts, t.Slug)
			continue
		}
		s, err := r.matcher.Format(t.Pattern, vars)
		if err != nil {
			return "", fmt.Errorf("format page %d: %w", t.ID, err)
		}
		parts = append(parts, s)
	}
	return join(site.Path, parts, n.HasChildren()), nil
}

// URLPattern is the unformatted template of a page's URL: each level
// contributes its pattern or slug.
func (r *Resolver) URLPattern(ctx context.Context, site api.Site, id int64) (string, error) {
	n, err := r.node(ctx, site.ID, id)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, t := range n.Trail() {
		parts = append(parts, cmp.Or(t.Pattern, t.Slug))
	}
	return join(site.Path, parts, n.HasChildren()), nil
}

func (r *Resolver) node(ctx context.Context, siteID, id int64) (*blueprint.Node, error) {
	bp, err := r.src.Blueprint(ctx, siteID)
	if err != nil {
		return nil, err
	}
	n, ok := bp.Node(id)
	if !ok {
		return nil, fmt.Errorf("%w: page %d not in site %d", ErrNotFound, id, siteID)
	}
	return n, nil
}

func join(base string, parts []string, dir bool) string {
	u := base + "/" + strings.Join(parts, "/")
	if dir {
		u += "/"
	}
	return u
}
