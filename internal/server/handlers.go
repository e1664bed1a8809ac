package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/agentic-research/pagetree/api"
	"github.com/agentic-research/pagetree/internal/blueprint"
	"github.com/agentic-research/pagetree/internal/store"
)

// Resolution is the body returned for a resolved path.
type Resolution struct {
	Site      api.Site    `json:"site"`
	Page      *api.Page   `json:"page"`
	Chain     []*api.Page `json:"chain"`
	Extension string      `json:"extension,omitempty"`
}

// Node is the JSON view of a Blueprint node.
type Node struct {
	ID                   int64  `json:"id"`
	ParentID             int64  `json:"parent_id"`
	Slug                 string `json:"slug,omitempty"`
	Pattern              string `json:"pattern,omitempty"`
	Label                string `json:"label,omitempty"`
	IsOnline             bool   `json:"is_online"`
	IsNavigationExcluded bool   `json:"is_navigation_excluded"`
	Depth                int    `json:"depth"`
	Children             []Node `json:"children,omitempty"`
}

// TreeUpdate is the body of POST /api/sites/{site}/tree.
type TreeUpdate struct {
	Order    []int64         `json:"order"`
	Relation map[int64]int64 `json:"relation"`
}

func nodeViews(nodes []*blueprint.Node, deep bool) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		v := Node{
			ID:                   n.ID,
			ParentID:             n.ParentID,
			Slug:                 n.Slug,
			Pattern:              n.Pattern,
			IsOnline:             n.IsOnline,
			IsNavigationExcluded: n.IsNavigationExcluded,
			Depth:                n.Depth,
		}
		if label, err := n.Label(); err == nil {
			v.Label = label
		}
		if deep && n.HasChildren() {
			v.Children = nodeViews(n.Children(), true)
		}
		out = append(out, v)
	}
	return out
}

func (s *Server) resolution(w http.ResponseWriter, r *http.Request, site api.Site, path string) {
	res, err := s.resolver.Resolve(r.Context(), site, path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, Resolution{
		Site:      site,
		Page:      res.Page,
		Chain:     res.Chain,
		Extension: res.Extension,
	})
}

// handleDispatch resolves the request path on the site mounted on the
// longest matching base path.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	site, ok := s.cfg.SiteFor(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "no site for path")
		return
	}
	s.resolution(w, r, site, r.URL.Path)
}

// GET /api/sites/{site}/resolve?path=/blog/2021/hello
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	s.resolution(w, r, site, r.URL.Query().Get("path"))
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	home, err := s.model.Home(r.Context(), site.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, home)
}

// handleBlueprint returns the page tree of a site.
//
//	depth=N      stop below depth N
//	nav=1        only what a navigation menu shows
//	current=ID   the navigation branch opened on page ID
//	expanded=1,2 the management tree with pages 1 and 2 expanded
//	labels=1     populate records to include labels
func (s *Server) handleBlueprint(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	depth := blueprint.Unbounded
	if v := q.Get("depth"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid depth")
			return
		}
		depth = d
	}
	expanded, err := parseIDs(q.Get("expanded"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid expanded list")
		return
	}

	var bp *blueprint.Blueprint
	switch {
	case q.Get("current") != "":
		current, perr := strconv.ParseInt(q.Get("current"), 10, 64)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "invalid current page")
			return
		}
		bp, _, err = s.model.NavigationBranch(r.Context(), site.ID, current, depth)
	case q.Has("expanded"):
		bp, err = s.model.ManageTree(r.Context(), site.ID, expanded)
	default:
		bp, err = s.model.Blueprint(r.Context(), site.ID)
		if err == nil {
			var filter blueprint.FilterFunc
			if q.Get("nav") == "1" {
				filter = blueprint.NavigationHidden
			}
			bp = bp.Subset(0, depth, filter)
		}
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if q.Get("labels") == "1" {
		if _, err := bp.Populate(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, nodeViews(bp.Roots(), true))
}

// GET /api/sites/{site}/navigation/{id}, id 0 for the top level.
func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	nodes, err := s.model.NavigationChildren(r.Context(), site.ID, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodeViews(nodes, false))
}

// GET /api/sites/{site}/url/{id}?year=2021&slug=hello
func (s *Server) handleURL(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	vars := make(map[string]string)
	for k, v := range r.URL.Query() {
		vars[k] = v[0]
	}

	tmpl, err := s.resolver.URLPattern(r.Context(), site, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	u, err := s.resolver.URL(r.Context(), site, id, vars)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": u, "pattern": tmpl})
}

// handleSave creates (POST) or updates (PUT) a page of the site.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	var p api.Page
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	status := http.StatusCreated
	if r.Method == http.MethodPut {
		id, ok := pageID(w, r)
		if !ok {
			return
		}
		if _, ok := s.sitePage(w, r, site, id); !ok {
			return
		}
		p.ID = id
		status = http.StatusOK
	}
	p.SiteID = site.ID

	id, err := s.model.Save(r.Context(), &p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, map[string]int64{"id": id})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	if _, ok := s.sitePage(w, r, site, id); !ok {
		return
	}
	if err := s.model.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	if _, ok := s.sitePage(w, r, site, id); !ok {
		return
	}
	copyID, err := s.model.Copy(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": copyID})
}

// PUT /api/sites/{site}/pages/{id}/navigation {"excluded": true}
func (s *Server) handleNavigationToggle(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	id, ok := pageID(w, r)
	if !ok {
		return
	}
	var body struct {
		Excluded bool `json:"excluded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, ok := s.sitePage(w, r, site, id); !ok {
		return
	}
	if err := s.model.SetNavigationExcluded(r.Context(), id, body.Excluded); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUpdateTree(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	var body TreeUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	for _, id := range body.Order {
		if _, ok := s.sitePage(w, r, site, id); !ok {
			return
		}
	}
	if err := s.model.UpdateTree(r.Context(), body.Order, body.Relation); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// sitePage loads page id and checks it belongs to site.
func (s *Server) sitePage(w http.ResponseWriter, r *http.Request, site api.Site, id int64) (*api.Page, bool) {
	p, err := s.model.Find(r.Context(), id)
	if err == nil && p.SiteID != site.ID {
		err = fmt.Errorf("page %d is not in site %d: %w", id, site.ID, store.ErrNotFound)
	}
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return p, true
}
