package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/agentic-research/pagetree/api"
)

// Memory is an in-process Store. Records are copied on the way in and
// out, so callers never share state with the store.
type Memory struct {
	mu     sync.RWMutex
	pages  map[int64]*api.Page
	nextID int64
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{pages: make(map[int64]*api.Page)}
}

func (m *Memory) SummaryRows(_ context.Context, siteID int64) ([]api.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []api.Page
	for _, p := range m.pages {
		if p.SiteID != siteID {
			continue
		}
		row := *p.Clone()
		row.Label = ""
		out = append(out, row)
	}
	slices.SortFunc(out, func(a, b api.Page) int { return comparePages(&a, &b) })
	return out, nil
}

func (m *Memory) FindByIDs(_ context.Context, ids []int64) ([]*api.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*api.Page, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.pages[id]; ok {
			out = append(out, p.Clone())
		}
	}
	return out, nil
}

func (m *Memory) Find(_ context.Context, id int64) (*api.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) HomeCandidate(_ context.Context, siteID int64) (*api.Page, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var home *api.Page
	for _, p := range m.pages {
		if p.SiteID != siteID || p.ParentID != 0 || !p.IsOnline {
			continue
		}
		if home == nil || comparePages(p, home) < 0 {
			home = p
		}
	}
	if home == nil {
		return nil, ErrNotFound
	}
	return home.Clone(), nil
}

func (m *Memory) Save(_ context.Context, p *api.Page) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c := p.Clone()
	c.URLPart = ""
	c.URLVariables = nil
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
	}
	m.nextID = max(m.nextID, c.ID)

	if prev, ok := m.pages[c.ID]; ok {
		c.CreatedAt = prev.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	m.pages[c.ID] = c
	return c.ID, nil
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pages[id]; !ok {
		return ErrNotFound
	}
	delete(m.pages, id)
	return nil
}

func (m *Memory) UpdateTree(_ context.Context, moves []TreeMove) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, mv := range moves {
		if p, ok := m.pages[mv.ID]; ok {
			p.ParentID = mv.ParentID
			p.Weight = mv.Weight
		}
	}
	return nil
}

func comparePages(a, b *api.Page) int {
	return cmp.Or(
		cmp.Compare(a.Weight, b.Weight),
		a.CreatedAt.Compare(b.CreatedAt),
		cmp.Compare(a.ID, b.ID),
	)
}

var _ Store = (*Memory)(nil)
