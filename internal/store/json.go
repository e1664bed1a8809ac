package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"

	"github.com/agentic-research/pagetree/api"
)

// DefaultSelector selects the elements of a top-level JSON array.
const DefaultSelector = "$[*]"

// Import parses a JSON document, selects page objects with a JSONPath
// selector and saves each of them into s, in document order. Pages
// without an id are inserted; pages with an id are upserted. siteID, when
// non-zero, overrides the site of every imported page.
func Import(ctx context.Context, s Store, data []byte, selector string, siteID int64) (int, error) {
	if selector == "" {
		selector = DefaultSelector
	}
	x, err := jp.ParseString(selector)
	if err != nil {
		return 0, fmt.Errorf("invalid jsonpath '%s': %w", selector, err)
	}
	doc, err := oj.Parse(data)
	if err != nil {
		return 0, fmt.Errorf("parse import document: %w", err)
	}

	count := 0
	for i, match := range x.Get(doc) {
		obj, ok := match.(map[string]any)
		if !ok {
			return count, fmt.Errorf("import match %d: expected an object, got %T", i, match)
		}
		p, err := decodePage(obj)
		if err != nil {
			return count, fmt.Errorf("import match %d: %w", i, err)
		}
		if siteID != 0 {
			p.SiteID = siteID
		}
		if _, err := s.Save(ctx, p); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// Export renders every page of a site as an indented JSON array, in
// (weight, created_at) order.
func Export(ctx context.Context, s Store, siteID int64) ([]byte, error) {
	rows, err := s.SummaryRows(ctx, siteID)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(rows))
	for i := range rows {
		ids[i] = rows[i].ID
	}
	pages, err := s.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	list := make([]any, len(pages))
	for i, p := range pages {
		list[i] = encodePage(p)
	}
	return []byte(oj.JSON(list, &oj.Options{Indent: 2, Sort: true})), nil
}

func encodePage(p *api.Page) map[string]any {
	m := map[string]any{
		"id":                     p.ID,
		"parent_id":              p.ParentID,
		"site_id":                p.SiteID,
		"slug":                   p.Slug,
		"weight":                 int64(p.Weight),
		"is_online":              p.IsOnline,
		"is_navigation_excluded": p.IsNavigationExcluded,
		"label":                  p.Label,
		"created_at":             p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if p.Pattern != "" {
		m["pattern"] = p.Pattern
	}
	return m
}

func decodePage(obj map[string]any) (*api.Page, error) {
	p := &api.Page{}
	var err error
	if p.ID, err = intField(obj, "id"); err != nil {
		return nil, err
	}
	if p.ParentID, err = intField(obj, "parent_id"); err != nil {
		return nil, err
	}
	if p.SiteID, err = intField(obj, "site_id"); err != nil {
		return nil, err
	}
	weight, err := intField(obj, "weight")
	if err != nil {
		return nil, err
	}
	p.Weight = int(weight)
	if p.ID != 0 && p.ParentID == p.ID {
		return nil, fmt.Errorf("page %d: %w", p.ID, ErrOwnParent)
	}

	p.Slug, _ = obj["slug"].(string)
	p.Pattern, _ = obj["pattern"].(string)
	p.Label, _ = obj["label"].(string)
	p.IsOnline = boolField(obj, "is_online")
	p.IsNavigationExcluded = boolField(obj, "is_navigation_excluded")

	if s, ok := obj["created_at"].(string); ok && s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, fmt.Errorf("field created_at: %w", err)
		}
		p.CreatedAt = t
	}
	return p, nil
}

func intField(obj map[string]any, key string) (int64, error) {
	switch v := obj[key].(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("field %s: expected a number, got %T", key, v)
	}
}

func boolField(obj map[string]any, key string) bool {
	switch v := obj[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	}
	return false
}
