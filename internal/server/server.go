// Package server exposes page resolution and the page model over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentic-research/pagetree/api"
	"github.com/agentic-research/pagetree/internal/config"
	"github.com/agentic-research/pagetree/internal/pages"
	"github.com/agentic-research/pagetree/internal/pattern"
	"github.com/agentic-research/pagetree/internal/resolve"
	"github.com/agentic-research/pagetree/internal/store"
)

// Server holds the HTTP handlers.
type Server struct {
	cfg      *config.Config
	model    *pages.Model
	resolver *resolve.Resolver
	log      *slog.Logger
}

func New(cfg *config.Config, model *pages.Model, resolver *resolve.Resolver, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, model: model, resolver: resolver, log: log}
}

// Routes returns the router. Paths under /api/ address a site by id;
// any other GET is resolved against the configured sites.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Route("/api/sites/{site}", func(r chi.Router) {
		r.Get("/home", s.handleHome)
		r.Get("/resolve", s.handleResolve)
		r.Get("/blueprint", s.handleBlueprint)
		r.Get("/navigation/{id}", s.handleNavigation)
		r.Get("/url/{id}", s.handleURL)
		r.Post("/pages", s.handleSave)
		r.Put("/pages/{id}", s.handleSave)
		r.Delete("/pages/{id}", s.handleDelete)
		r.Post("/pages/{id}/copy", s.handleCopy)
		r.Put("/pages/{id}/navigation", s.handleNavigationToggle)
		r.Post("/tree", s.handleUpdateTree)
	})
	r.Get("/*", s.handleDispatch)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// site returns the site named by the {site} URL parameter, writing a 404
// when it is not configured.
func (s *Server) site(w http.ResponseWriter, r *http.Request) (api.Site, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "site"), 10, 64)
	if err == nil {
		if site, ok := s.cfg.Site(id); ok {
			return site, true
		}
	}
	writeError(w, http.StatusNotFound, "unknown site")
	return api.Site{}, false
}

func pageID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid page id")
		return 0, false
	}
	return id, true
}

// fail maps domain errors to status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, resolve.ErrNoHome):
		s.log.Error("site misconfigured", "path", r.URL.Path, "error", err)
	case errors.Is(err, resolve.ErrNotFound), errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pages.ErrOwnParent),
		errors.Is(err, pages.ErrNoSite),
		errors.Is(err, pages.ErrEmptyOrder),
		errors.Is(err, pages.ErrMissingRelation),
		errors.Is(err, pattern.ErrMissingVariable):
		status = http.StatusBadRequest
	default:
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) // client gone
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseIDs reads a comma separated id list such as "1,4,7".
func parseIDs(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	var ids []int64
	for _, f := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
