// Package cache memoizes one Blueprint and one home page per site.
//
// Entries are never patched. Any structural change to a site's pages calls
// Invalidate, which drops both entries; the next read rebuilds them from
// the store. A Blueprint is fully built before it is published, so readers
// observe either the previous complete value or a fresh complete one.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/agentic-research/pagetree/api"
	"github.com/agentic-research/pagetree/internal/blueprint"
	"github.com/agentic-research/pagetree/internal/store"
)

// ErrNoHome means a site has no online root page. No path of that site
// can resolve, so callers should treat it as a misconfiguration rather
// than a per-request miss.
var ErrNoHome = errors.New("site has no home page: no online root page")

// Cache holds the per-site Blueprints and home pages.
type Cache struct {
	store store.Store
	log   *slog.Logger

	mu         sync.RWMutex
	blueprints map[int64]*blueprint.Blueprint
	homes      map[int64]*api.Page
	generation map[int64]uint64 // bumped by Invalidate

	builds singleflight.Group
}

// New returns an empty cache over s. A nil logger uses slog.Default().
func New(s store.Store, log *slog.Logger) *Cache {
	if log == nil {
		log = slog.Default()
	}
	return &Cache{
		store:      s,
		log:        log,
		blueprints: make(map[int64]*blueprint.Blueprint),
		homes:      make(map[int64]*api.Page),
		generation: make(map[int64]uint64),
	}
}

// Blueprint returns the site's Blueprint, building it on a miss.
// Concurrent misses for the same site share one build.
func (c *Cache) Blueprint(ctx context.Context, siteID int64) (*blueprint.Blueprint, error) {
	c.mu.RLock()
	bp, ok := c.blueprints[siteID]
	gen := c.generation[siteID]
	c.mu.RUnlock()
	if ok {
		return bp, nil
	}

	key := "bp/" + strconv.FormatInt(siteID, 10) + "/" + strconv.FormatUint(gen, 10)
	v, err := c.share(ctx, key, func(ctx context.Context) (any, error) {
		rows, err := c.store.SummaryRows(ctx, siteID)
		if err != nil {
			return nil, fmt.Errorf("build blueprint for site %d: %w", siteID, err)
		}
		built := blueprint.Build(rows, c.store)
		c.log.Debug("blueprint built", "site_id", siteID, "nodes", built.Len())

		c.mu.Lock()
		if c.generation[siteID] == gen {
			c.blueprints[siteID] = built
		}
		c.mu.Unlock()
		return built, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*blueprint.Blueprint), nil
}

// Home returns the site's home page: the first online root page by
// (weight, created_at). It returns ErrNoHome when there is none.
// The returned page is a copy.
func (c *Cache) Home(ctx context.Context, siteID int64) (*api.Page, error) {
	c.mu.RLock()
	home, ok := c.homes[siteID]
	gen := c.generation[siteID]
	c.mu.RUnlock()
	if ok {
		return home.Clone(), nil
	}

	key := "home/" + strconv.FormatInt(siteID, 10) + "/" + strconv.FormatUint(gen, 10)
	v, err := c.share(ctx, key, func(ctx context.Context) (any, error) {
		home, err := c.store.HomeCandidate(ctx, siteID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("site %d: %w", siteID, ErrNoHome)
		}
		if err != nil {
			return nil, fmt.Errorf("find home of site %d: %w", siteID, err)
		}

		c.mu.Lock()
		if c.generation[siteID] == gen {
			c.homes[siteID] = home
		}
		c.mu.Unlock()
		return home, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*api.Page).Clone(), nil
}

// share runs build once per key for all concurrent callers. The build
// does not inherit the cancellation of whichever caller started it; each
// caller stops waiting when its own ctx is done.
func (c *Cache) share(ctx context.Context, key string, build func(context.Context) (any, error)) (any, error) {
	ch := c.builds.DoChan(key, func() (any, error) {
		return build(context.WithoutCancel(ctx))
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate drops the cached Blueprint and home page of a site. It must
// be called as part of any change to a page's parent, site, weight or
// existence. Builds already in flight finish but are not published.
func (c *Cache) Invalidate(siteID int64) {
	c.mu.Lock()
	delete(c.blueprints, siteID)
	delete(c.homes, siteID)
	c.generation[siteID]++
	c.mu.Unlock()
	c.log.Debug("site cache invalidated", "site_id", siteID)
}

// Cached reports whether a Blueprint is currently cached for a site.
func (c *Cache) Cached(siteID int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.blueprints[siteID]
	return ok
}
