package storage

import (
	"sort"
	"sync"

	"meridian-hq/oagw/pkg/registry"
)

// Memory is an in-process backend. Records are stored by reference; the
// registry already hands over private copies.
type Memory struct {
	mu        sync.Mutex
	upstreams map[string]*registry.Upstream
	routes    map[string]*routeRow
	seq       int64
}

type routeRow struct {
	route *registry.Route
	seq   int64
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{
		upstreams: make(map[string]*registry.Upstream),
		routes:    make(map[string]*routeRow),
	}
}

// SaveUpstream inserts or replaces an upstream record.
func (m *Memory) SaveUpstream(u *registry.Upstream) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upstreams[u.ID] = u
	return nil
}

// DeleteUpstream removes an upstream record.
func (m *Memory) DeleteUpstream(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.upstreams, id)
	return nil
}

// SaveRoute inserts or replaces a route record, keeping the original
// sequence position on replace.
func (m *Memory) SaveRoute(r *registry.Route) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.routes[r.ID]; ok {
		existing.route = r
		return nil
	}
	m.seq++
	m.routes[r.ID] = &routeRow{route: r, seq: m.seq}
	return nil
}

// DeleteRoute removes a route record.
func (m *Memory) DeleteRoute(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routes, id)
	return nil
}

// LoadAll returns every record; routes come back in insertion order.
func (m *Memory) LoadAll() ([]*registry.Upstream, []*registry.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	upstreams := make([]*registry.Upstream, 0, len(m.upstreams))
	for _, u := range m.upstreams {
		upstreams = append(upstreams, u)
	}
	sort.Slice(upstreams, func(i, j int) bool { return upstreams[i].ID < upstreams[j].ID })

	rows := make([]*routeRow, 0, len(m.routes))
	for _, row := range m.routes {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })

	routes := make([]*registry.Route, len(rows))
	for i, row := range rows {
		routes[i] = row.route
	}
	return upstreams, routes, nil
}

// Close is a no-op for the in-memory backend.
func (m *Memory) Close() error { return nil }

var _ registry.Backend = (*Memory)(nil)
