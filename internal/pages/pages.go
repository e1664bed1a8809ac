// Package pages is the write side of the page tree. Every change that
// can move, add or remove a page goes through Model so the per-site
// cache is invalidated along with it.
package pages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/agentic-research/pagetree/api"
	"github.com/agentic-research/pagetree/internal/blueprint"
	"github.com/agentic-research/pagetree/internal/cache"
	"github.com/agentic-research/pagetree/internal/store"
)

var (
	ErrOwnParent       = store.ErrOwnParent
	ErrNoSite          = errors.New("site_id is empty")
	ErrEmptyOrder      = errors.New("tree update has no pages")
	ErrMissingRelation = errors.New("tree update is missing a parent relation")
)

// Notifier publishes invalidations to other processes.
type Notifier interface {
	Bump(siteID int64) (uint64, error)
}

// Model composes the store with the cache.
type Model struct {
	store  store.Store
	cache  *cache.Cache
	notify Notifier
	log    *slog.Logger
}

func New(s store.Store, c *cache.Cache, log *slog.Logger) *Model {
	if log == nil {
		log = slog.Default()
	}
	return &Model{store: s, cache: c, log: log}
}

// Notify makes m bump n for every site it invalidates.
func (m *Model) Notify(n Notifier) {
	m.notify = n
}

func (m *Model) invalidate(siteID int64) {
	m.cache.Invalidate(siteID)
	if m.notify == nil {
		return
	}
	if _, err := m.notify.Bump(siteID); err != nil {
		m.log.Warn("publish invalidation", "site_id", siteID, "error", err)
	}
}

func (m *Model) Find(ctx context.Context, id int64) (*api.Page, error) {
	return m.store.Find(ctx, id)
}

func (m *Model) Blueprint(ctx context.Context, siteID int64) (*blueprint.Blueprint, error) {
	return m.cache.Blueprint(ctx, siteID)
}

func (m *Model) Home(ctx context.Context, siteID int64) (*api.Page, error) {
	return m.cache.Home(ctx, siteID)
}

// Save inserts or updates p and returns its id. A page moved to another
// site invalidates both sites.
func (m *Model) Save(ctx context.Context, p *api.Page) (int64, error) {
	if p.ID != 0 && p.ParentID == p.ID {
		return 0, fmt.Errorf("save page %d: %w", p.ID, ErrOwnParent)
	}
	if p.SiteID == 0 {
		return 0, ErrNoSite
	}

	var prevSite int64
	if p.ID != 0 {
		prev, err := m.store.Find(ctx, p.ID)
		switch {
		case err == nil:
			prevSite = prev.SiteID
		case !errors.Is(err, store.ErrNotFound):
			return 0, fmt.Errorf("save page %d: %w", p.ID, err)
		}
	}

	id, err := m.store.Save(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("save page: %w", err)
	}

	// After the write: a build that read the old rows is not published.
	if prevSite != 0 && prevSite != p.SiteID {
		m.invalidate(prevSite)
	}
	m.invalidate(p.SiteID)
	m.log.Debug("page saved", "id", id, "site_id", p.SiteID)
	return id, nil
}

// Delete removes a page. Its children are left in place and become
// roots of the next Blueprint.
func (m *Model) Delete(ctx context.Context, id int64) error {
	p, err := m.store.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	m.invalidate(p.SiteID)
	m.log.Debug("page deleted", "id", id, "site_id", p.SiteID)
	return nil
}

// UpdateTree reorders and reparents pages in one batch. order lists page
// ids in their new sibling order, relation maps each of them to its new
// parent (0 for a root). Weights are reassigned from the position in
// order.
func (m *Model) UpdateTree(ctx context.Context, order []int64, relation map[int64]int64) error {
	if len(order) == 0 {
		return ErrEmptyOrder
	}
	moves := make([]store.TreeMove, len(order))
	for w, id := range order {
		parent, ok := relation[id]
		if !ok {
			return fmt.Errorf("%w: page %d", ErrMissingRelation, id)
		}
		if parent == id {
			return fmt.Errorf("move page %d: %w", id, ErrOwnParent)
		}
		moves[w] = store.TreeMove{ID: id, ParentID: parent, Weight: w}
	}

	pages, err := m.store.FindByIDs(ctx, order)
	if err != nil {
		return fmt.Errorf("update tree: %w", err)
	}
	if err := m.store.UpdateTree(ctx, moves); err != nil {
		return fmt.Errorf("update tree: %w", err)
	}

	sites := make(map[int64]struct{})
	for _, p := range pages {
		sites[p.SiteID] = struct{}{}
	}
	for site := range sites {
		m.invalidate(site)
	}
	m.log.Debug("tree updated", "pages", len(order), "sites", len(sites))
	return nil
}

// SetNavigationExcluded includes or excludes a page from navigation menus.
func (m *Model) SetNavigationExcluded(ctx context.Context, id int64, excluded bool) error {
	p, err := m.store.Find(ctx, id)
	if err != nil {
		return fmt.Errorf("navigation toggle %d: %w", id, err)
	}
	if p.IsNavigationExcluded == excluded {
		return nil
	}
	p.IsNavigationExcluded = excluded
	_, err = m.Save(ctx, p)
	return err
}

// Copy duplicates a page next to the original. The copy is offline and
// its slug and label are suffixed so it does not shadow the original.
func (m *Model) Copy(ctx context.Context, id int64) (int64, error) {
	p, err := m.store.Find(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("copy page %d: %w", id, err)
	}
	p.ID = 0
	p.IsOnline = false
	p.CreatedAt = time.Time{}
	p.Slug += "-copy"
	p.Label += " (copy)"
	return m.Save(ctx, p)
}

// NavigationChildren returns the children of parentID (the roots when 0)
// a navigation menu shows.
func (m *Model) NavigationChildren(ctx context.Context, siteID, parentID int64) ([]*blueprint.Node, error) {
	bp, err := m.cache.Blueprint(ctx, siteID)
	if err != nil {
		return nil, err
	}
	var candidates []*blueprint.Node
	if parentID == 0 {
		candidates = bp.Roots()
	} else if n, ok := bp.Node(parentID); ok {
		candidates = n.Children()
	}

	var out []*blueprint.Node
	for _, n := range candidates {
		if !blueprint.NavigationHidden(n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// NavigationBranch returns the branch a navigation menu opened on current
// shows. The branch starts below the root of current's trail and keeps
// visible pages on the trail and their visible children, down to
// maxDepth. The second result is the root the branch hangs from, nil
// when current is unknown.
func (m *Model) NavigationBranch(ctx context.Context, siteID, current int64, maxDepth int) (*blueprint.Blueprint, *blueprint.Node, error) {
	bp, err := m.cache.Blueprint(ctx, siteID)
	if err != nil {
		return nil, nil, err
	}
	n, ok := bp.Node(current)
	if !ok {
		return blueprint.Build(nil, nil), nil, nil
	}
	start := n.Trail()[0]
	return bp.Subset(start.ID, maxDepth, blueprint.OutsideTrail(bp.Trail(current))), start, nil
}

// ManageTree returns the management view of a site: roots plus the
// children of expanded pages.
func (m *Model) ManageTree(ctx context.Context, siteID int64, expanded []int64) (*blueprint.Blueprint, error) {
	bp, err := m.cache.Blueprint(ctx, siteID)
	if err != nil {
		return nil, err
	}
	set := roaring64.New()
	for _, id := range expanded {
		set.Add(uint64(id))
	}
	return bp.Subset(0, blueprint.Unbounded, blueprint.Collapsed(set)), nil
}
