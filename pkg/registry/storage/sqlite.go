package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"meridian-hq/oagw/pkg/registry"
)

// SQLite persists registry records as JSON rows. Route rows carry a
// monotonically increasing sequence so declared order survives a
// restart.
//
// The database runs in WAL mode for concurrent reads during writes.
type SQLite struct {
	db *sql.DB

	saveUpstreamStmt   *sql.Stmt
	deleteUpstreamStmt *sql.Stmt
	saveRouteStmt      *sql.Stmt
	deleteRouteStmt    *sql.Stmt
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS upstreams (
	id     TEXT PRIMARY KEY,
	record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS routes (
	id          TEXT PRIMARY KEY,
	upstream_id TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	record      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_routes_upstream ON routes(upstream_id);
`

// NewSQLite opens (or creates) the database at path and prepares the
// statement set.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	// Single writer; the registry serializes mutations anyway.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create registry schema: %w", err)
	}

	s := &SQLite{db: db}
	if err := s.prepare(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) prepare() error {
	var err error
	if s.saveUpstreamStmt, err = s.db.Prepare(
		"INSERT INTO upstreams(id, record) VALUES(?, ?) ON CONFLICT(id) DO UPDATE SET record=excluded.record",
	); err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	if s.deleteUpstreamStmt, err = s.db.Prepare("DELETE FROM upstreams WHERE id=?"); err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	if s.saveRouteStmt, err = s.db.Prepare(
		`INSERT INTO routes(id, upstream_id, seq, record)
		 VALUES(?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM routes), ?)
		 ON CONFLICT(id) DO UPDATE SET record=excluded.record`,
	); err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	if s.deleteRouteStmt, err = s.db.Prepare("DELETE FROM routes WHERE id=?"); err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	return nil
}

// SaveUpstream inserts or replaces an upstream row.
func (s *SQLite) SaveUpstream(u *registry.Upstream) error {
	record, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode upstream %q: %w", u.ID, err)
	}
	_, err = s.saveUpstreamStmt.Exec(u.ID, string(record))
	return err
}

// DeleteUpstream removes an upstream row.
func (s *SQLite) DeleteUpstream(id string) error {
	_, err := s.deleteUpstreamStmt.Exec(id)
	return err
}

// SaveRoute inserts or replaces a route row. New rows get the next
// sequence number; replaced rows keep theirs.
func (s *SQLite) SaveRoute(r *registry.Route) error {
	record, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode route %q: %w", r.ID, err)
	}
	_, err = s.saveRouteStmt.Exec(r.ID, r.UpstreamID, string(record))
	return err
}

// DeleteRoute removes a route row.
func (s *SQLite) DeleteRoute(id string) error {
	_, err := s.deleteRouteStmt.Exec(id)
	return err
}

// LoadAll reads every persisted record; routes in sequence order.
func (s *SQLite) LoadAll() ([]*registry.Upstream, []*registry.Route, error) {
	rows, err := s.db.Query("SELECT record FROM upstreams ORDER BY id")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load upstreams: %w", err)
	}
	defer rows.Close()

	var upstreams []*registry.Upstream
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, nil, err
		}
		var u registry.Upstream
		if err := json.Unmarshal([]byte(record), &u); err != nil {
			return nil, nil, fmt.Errorf("failed to decode upstream record: %w", err)
		}
		upstreams = append(upstreams, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	routeRows, err := s.db.Query("SELECT record FROM routes ORDER BY seq")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load routes: %w", err)
	}
	defer routeRows.Close()

	var routes []*registry.Route
	for routeRows.Next() {
		var record string
		if err := routeRows.Scan(&record); err != nil {
			return nil, nil, err
		}
		var r registry.Route
		if err := json.Unmarshal([]byte(record), &r); err != nil {
			return nil, nil, fmt.Errorf("failed to decode route record: %w", err)
		}
		routes = append(routes, &r)
	}
	if err := routeRows.Err(); err != nil {
		return nil, nil, err
	}

	return upstreams, routes, nil
}

// Close releases the prepared statements and the database handle.
func (s *SQLite) Close() error {
	for _, stmt := range []*sql.Stmt{s.saveUpstreamStmt, s.deleteUpstreamStmt, s.saveRouteStmt, s.deleteRouteStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
	return s.db.Close()
}

var _ registry.Backend = (*SQLite)(nil)
