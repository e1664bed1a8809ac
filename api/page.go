package api

import "time"

// Page is one record of the page hierarchy of a site.
// A page is addressed either by its Slug or, when Pattern is set, by the
// path fragment the pattern captures.
type Page struct {
	ID       int64 `json:"id"`
	ParentID int64 `json:"parent_id"`
	SiteID   int64 `json:"site_id"`
	// Slug identifies the page among its siblings.
	Slug string `json:"slug"`
	// Pattern is a capturing template, e.g. "<year:\d+>/<slug:\w+>".
	Pattern              string    `json:"pattern,omitempty"`
	Weight               int       `json:"weight"`
	IsOnline             bool      `json:"is_online"`
	IsNavigationExcluded bool      `json:"is_navigation_excluded"`
	Label                string    `json:"label"`
	CreatedAt            time.Time `json:"created_at"`

	// Set by path resolution only, never persisted.
	URLPart      string            `json:"url_part,omitempty"`
	URLVariables map[string]string `json:"url_variables,omitempty"`
}

// Clone returns a copy that does not share URLVariables with p.
func (p *Page) Clone() *Page {
	c := *p
	if p.URLVariables != nil {
		c.URLVariables = make(map[string]string, len(p.URLVariables))
		for k, v := range p.URLVariables {
			c.URLVariables[k] = v
		}
	}
	return &c
}

// Site scopes a page tree. Path is the base path the site is mounted on,
// empty for the root of the host, otherwise "/xx" without trailing slash.
type Site struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name"`
	Path string `json:"path" yaml:"path"`
}
