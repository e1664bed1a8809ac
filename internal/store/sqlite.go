package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/pagetree/api"
)

const schema = `
CREATE TABLE IF NOT EXISTS pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	parent_id INTEGER NOT NULL DEFAULT 0,
	site_id INTEGER NOT NULL,
	slug TEXT NOT NULL DEFAULT '',
	pattern TEXT NOT NULL DEFAULT '',
	weight INTEGER NOT NULL DEFAULT 0,
	is_online INTEGER NOT NULL DEFAULT 0,
	is_navigation_excluded INTEGER NOT NULL DEFAULT 0,
	label TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pages_site_order ON pages(site_id, weight, created_at);
CREATE INDEX IF NOT EXISTS idx_pages_parent ON pages(parent_id);
`

const (
	summaryCols = "id, parent_id, site_id, slug, pattern, weight, is_online, is_navigation_excluded, created_at"
	fullCols    = summaryCols + ", label"
	ordering    = "ORDER BY weight ASC, created_at ASC, id ASC"
)

// maxVars keeps IN lists below SQLite's bound parameter limit.
const maxVars = 500

// SQLite implements Store on a SQLite database.
type SQLite struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the page database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLite) Path() string {
	return s.path
}

func (s *SQLite) SummaryRows(ctx context.Context, siteID int64) ([]api.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+summaryCols+" FROM pages WHERE site_id = ? "+ordering, siteID)
	if err != nil {
		return nil, fmt.Errorf("query summary rows: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []api.Page
	for rows.Next() {
		var p api.Page
		if err := scanPage(rows, &p, false); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summary rows: %w", err)
	}
	return out, nil
}

func (s *SQLite) FindByIDs(ctx context.Context, ids []int64) ([]*api.Page, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found := make(map[int64]*api.Page, len(ids))
	for start := 0; start < len(ids); start += maxVars {
		end := min(start+maxVars, len(ids))
		chunk := ids[start:end]

		args := make([]any, len(chunk))
		placeholders := make([]string, len(chunk))
		for i, id := range chunk {
			args[i] = id
			placeholders[i] = "?"
		}

		query := fmt.Sprintf("SELECT %s FROM pages WHERE id IN (%s)", fullCols, strings.Join(placeholders, ","))
		if err := s.collect(ctx, query, args, found); err != nil {
			return nil, err
		}
	}

	out := make([]*api.Page, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
			delete(found, id)
		}
	}
	return out, nil
}

func (s *SQLite) collect(ctx context.Context, query string, args []any, into map[int64]*api.Page) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("query pages: %w", err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	for rows.Next() {
		p := &api.Page{}
		if err := scanPage(rows, p, true); err != nil {
			return err
		}
		into[p.ID] = p
	}
	return rows.Err()
}

func (s *SQLite) Find(ctx context.Context, id int64) (*api.Page, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+fullCols+" FROM pages WHERE id = ?", id)
	p := &api.Page{}
	if err := scanPage(row, p, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLite) HomeCandidate(ctx context.Context, siteID int64) (*api.Page, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+fullCols+" FROM pages WHERE site_id = ? AND parent_id = 0 AND is_online = 1 "+ordering+" LIMIT 1",
		siteID)
	p := &api.Page{}
	if err := scanPage(row, p, true); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLite) Save(ctx context.Context, p *api.Page) (int64, error) {
	created := p.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	var id any
	if p.ID != 0 {
		id = p.ID
	}

	var newID int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pages (id, parent_id, site_id, slug, pattern, weight, is_online, is_navigation_excluded, label, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			site_id = excluded.site_id,
			slug = excluded.slug,
			pattern = excluded.pattern,
			weight = excluded.weight,
			is_online = excluded.is_online,
			is_navigation_excluded = excluded.is_navigation_excluded,
			label = excluded.label
		RETURNING id`,
		id, p.ParentID, p.SiteID, p.Slug, p.Pattern, p.Weight, p.IsOnline, p.IsNavigationExcluded, p.Label, created.UnixNano(),
	).Scan(&newID)
	if err != nil {
		return 0, fmt.Errorf("save page %d: %w", p.ID, err)
	}
	return newID, nil
}

func (s *SQLite) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete page %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLite) UpdateTree(ctx context.Context, moves []TreeMove) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update tree: %w", err)
	}
	defer func() { _ = tx.Rollback() }() // safe to ignore (no-op if committed)

	stmt, err := tx.PrepareContext(ctx, "UPDATE pages SET parent_id = ?, weight = ? WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare update tree: %w", err)
	}
	defer func() { _ = stmt.Close() }() // safe to ignore

	for _, m := range moves {
		if _, err := stmt.ExecContext(ctx, m.ParentID, m.Weight, m.ID); err != nil {
			return fmt.Errorf("move page %d: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPage(row scanner, p *api.Page, full bool) error {
	var created int64
	dest := []any{&p.ID, &p.ParentID, &p.SiteID, &p.Slug, &p.Pattern, &p.Weight,
		&p.IsOnline, &p.IsNavigationExcluded, &created}
	if full {
		dest = append(dest, &p.Label)
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scan page: %w", err)
	}
	p.CreatedAt = time.Unix(0, created)
	return nil
}

var _ Store = (*SQLite)(nil)
