// Package store persists page records and serves the queries the tree
// index and the path resolver are built on.
package store

import (
	"context"
	"errors"

	"github.com/agentic-research/pagetree/api"
)

// ErrNotFound is returned when a page id does not exist.
var (
	ErrNotFound  = errors.New("page not found")
	ErrOwnParent = errors.New("a page cannot be its own parent")
)

// Store is the page persistence port.
type Store interface {
	// SummaryRows returns every page of a site ordered by
	// (weight, created_at). Label is not loaded.
	SummaryRows(ctx context.Context, siteID int64) ([]api.Page, error)
	// FindByIDs loads full records, in the order of ids. Unknown ids
	// are skipped.
	FindByIDs(ctx context.Context, ids []int64) ([]*api.Page, error)
	// Find loads one record.
	Find(ctx context.Context, id int64) (*api.Page, error)
	// HomeCandidate returns the first online root page of a site, or
	// ErrNotFound.
	HomeCandidate(ctx context.Context, siteID int64) (*api.Page, error)
	// Save inserts the page when its ID is zero or unknown, and updates
	// it otherwise. It returns the page id.
	Save(ctx context.Context, p *api.Page) (int64, error)
	Delete(ctx context.Context, id int64) error
	// UpdateTree applies a batch of reparent/reweight moves atomically.
	UpdateTree(ctx context.Context, moves []TreeMove) error
}

// TreeMove sets the parent and weight of one page.
type TreeMove struct {
	ID       int64
	ParentID int64
	Weight   int
}
