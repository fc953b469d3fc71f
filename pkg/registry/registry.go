package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Backend persists registry records. The registry writes through on
// every mutation; implementations live in the storage subpackage.
type Backend interface {
	SaveUpstream(u *Upstream) error
	DeleteUpstream(id string) error
	SaveRoute(r *Route) error
	DeleteRoute(id string) error

	// LoadAll returns every persisted record. Routes are returned in
	// their declared (creation) order per upstream.
	LoadAll() ([]*Upstream, []*Route, error)

	Close() error
}

// Snapshot is the immutable (upstream, routes) pair a pipeline captures
// at entry. The records are shared pointers that no write ever mutates
// in place, so the pair stays consistent for the whole request.
type Snapshot struct {
	Upstream *Upstream
	Routes   []*Route
}

// Registry owns upstream and route records.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[string]*Upstream
	byAlias   map[string]string   // alias -> upstream id
	routes    map[string][]*Route // upstream id -> declared order
	routeByID map[string]*Route
	backend   Backend // nil for a purely in-memory registry
}

// New creates an empty registry without persistence.
func New() *Registry {
	return &Registry{
		upstreams: make(map[string]*Upstream),
		byAlias:   make(map[string]string),
		routes:    make(map[string][]*Route),
		routeByID: make(map[string]*Route),
	}
}

// NewWithBackend creates a registry that writes through to backend and
// seeds itself from the persisted records. Persisted records passed
// validation when written, but are re-validated on load so a corrupted
// store cannot smuggle bad records in.
func NewWithBackend(backend Backend) (*Registry, error) {
	r := New()
	r.backend = backend

	upstreams, routes, err := backend.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load registry records: %w", err)
	}

	for _, u := range upstreams {
		if err := validateUpstream(u); err != nil {
			slog.Warn("skipping persisted upstream", "id", u.ID, "error", err)
			continue
		}
		r.upstreams[u.ID] = u
		r.byAlias[u.Alias] = u.ID
	}
	for _, route := range routes {
		if err := validateRoute(route); err != nil {
			slog.Warn("skipping persisted route", "id", route.ID, "error", err)
			continue
		}
		if _, ok := r.upstreams[route.UpstreamID]; !ok {
			slog.Warn("skipping orphaned route", "id", route.ID, "upstream_id", route.UpstreamID)
			continue
		}
		r.routes[route.UpstreamID] = append(r.routes[route.UpstreamID], route)
		r.routeByID[route.ID] = route
	}

	slog.Info("registry loaded", "upstreams", len(r.upstreams), "routes", len(r.routeByID))
	return r, nil
}

// CreateUpstream validates and stores a new upstream. A missing ID is
// minted. The stored record is a private copy; the input is returned
// unchanged with the minted id filled in.
func (r *Registry) CreateUpstream(u Upstream) (*Upstream, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if err := validateUpstream(&u); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.upstreams[u.ID]; ok {
		return nil, &AlreadyExistsError{Kind: "upstream", Key: u.ID}
	}
	if _, ok := r.byAlias[u.Alias]; ok {
		return nil, &AlreadyExistsError{Kind: "upstream alias", Key: u.Alias}
	}

	record := cloneUpstream(&u)
	if r.backend != nil {
		if err := r.backend.SaveUpstream(record); err != nil {
			return nil, fmt.Errorf("failed to persist upstream: %w", err)
		}
	}

	r.upstreams[record.ID] = record
	r.byAlias[record.Alias] = record.ID

	slog.Info("upstream created", "id", record.ID, "alias", record.Alias, "protocol", record.ProtocolTag)
	return cloneUpstream(record), nil
}

// UpdateUpstream validates and replaces an existing upstream wholesale.
// In-flight snapshots keep the record they captured.
func (r *Registry) UpdateUpstream(u Upstream) (*Upstream, error) {
	if err := validateUpstream(&u); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.upstreams[u.ID]
	if !ok {
		return nil, &NotFoundError{Kind: "upstream", Key: u.ID}
	}
	if other, taken := r.byAlias[u.Alias]; taken && other != u.ID {
		return nil, &AlreadyExistsError{Kind: "upstream alias", Key: u.Alias}
	}

	record := cloneUpstream(&u)
	if r.backend != nil {
		if err := r.backend.SaveUpstream(record); err != nil {
			return nil, fmt.Errorf("failed to persist upstream: %w", err)
		}
	}

	delete(r.byAlias, existing.Alias)
	r.upstreams[record.ID] = record
	r.byAlias[record.Alias] = record.ID

	slog.Info("upstream updated", "id", record.ID, "alias", record.Alias)
	return cloneUpstream(record), nil
}

// DeleteUpstream removes an upstream and cascades to its routes.
// In-flight requests holding a snapshot complete against it; only new
// lookups fail.
func (r *Registry) DeleteUpstream(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.upstreams[id]
	if !ok {
		return &NotFoundError{Kind: "upstream", Key: id}
	}

	if r.backend != nil {
		for _, route := range r.routes[id] {
			if err := r.backend.DeleteRoute(route.ID); err != nil {
				return fmt.Errorf("failed to delete route %q: %w", route.ID, err)
			}
		}
		if err := r.backend.DeleteUpstream(id); err != nil {
			return fmt.Errorf("failed to delete upstream: %w", err)
		}
	}

	for _, route := range r.routes[id] {
		delete(r.routeByID, route.ID)
	}
	delete(r.routes, id)
	delete(r.byAlias, u.Alias)
	delete(r.upstreams, id)

	slog.Info("upstream deleted", "id", id, "alias", u.Alias)
	return nil
}

// GetUpstream returns the upstream by id.
func (r *Registry) GetUpstream(id string) (*Upstream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.upstreams[id]
	if !ok {
		return nil, &NotFoundError{Kind: "upstream", Key: id}
	}
	return cloneUpstream(u), nil
}

// GetUpstreamByAlias returns the upstream by alias.
func (r *Registry) GetUpstreamByAlias(alias string) (*Upstream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAlias[alias]
	if !ok {
		return nil, &NotFoundError{Kind: "upstream", Key: alias}
	}
	return cloneUpstream(r.upstreams[id]), nil
}

// ListUpstreams returns every upstream sorted by alias.
func (r *Registry) ListUpstreams() []*Upstream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Upstream, 0, len(r.upstreams))
	for _, u := range r.upstreams {
		out = append(out, cloneUpstream(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Alias < out[j].Alias })
	return out
}

// CreateRoute validates and appends a route to its upstream's declared
// order. Duplicate rules within one upstream are rejected.
func (r *Registry) CreateRoute(route Route) (*Route, error) {
	if route.ID == "" {
		route.ID = uuid.NewString()
	}
	if err := validateRoute(&route); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.upstreams[route.UpstreamID]; !ok {
		return nil, &NotFoundError{Kind: "upstream", Key: route.UpstreamID}
	}
	if _, ok := r.routeByID[route.ID]; ok {
		return nil, &AlreadyExistsError{Kind: "route", Key: route.ID}
	}
	if err := r.checkDuplicateRulesLocked(&route, ""); err != nil {
		return nil, err
	}

	record := cloneRoute(&route)
	if r.backend != nil {
		if err := r.backend.SaveRoute(record); err != nil {
			return nil, fmt.Errorf("failed to persist route: %w", err)
		}
	}

	r.routes[record.UpstreamID] = append(r.routes[record.UpstreamID], record)
	r.routeByID[record.ID] = record

	slog.Info("route created", "id", record.ID, "upstream_id", record.UpstreamID, "rules", len(record.Match))
	return cloneRoute(record), nil
}

// UpdateRoute replaces an existing route in place, preserving its
// position in the declared order. Rebinding to another upstream is not
// allowed.
func (r *Registry) UpdateRoute(route Route) (*Route, error) {
	if err := validateRoute(&route); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.routeByID[route.ID]
	if !ok {
		return nil, &NotFoundError{Kind: "route", Key: route.ID}
	}
	if existing.UpstreamID != route.UpstreamID {
		return nil, &ValidationError{Field: "upstream_id", Message: "routes cannot be rebound to another upstream"}
	}
	if err := r.checkDuplicateRulesLocked(&route, route.ID); err != nil {
		return nil, err
	}

	record := cloneRoute(&route)
	if r.backend != nil {
		if err := r.backend.SaveRoute(record); err != nil {
			return nil, fmt.Errorf("failed to persist route: %w", err)
		}
	}

	list := r.routes[record.UpstreamID]
	for i, candidate := range list {
		if candidate.ID == record.ID {
			list[i] = record
			break
		}
	}
	r.routeByID[record.ID] = record

	slog.Info("route updated", "id", record.ID)
	return cloneRoute(record), nil
}

// DeleteRoute removes a route.
func (r *Registry) DeleteRoute(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	route, ok := r.routeByID[id]
	if !ok {
		return &NotFoundError{Kind: "route", Key: id}
	}

	if r.backend != nil {
		if err := r.backend.DeleteRoute(id); err != nil {
			return fmt.Errorf("failed to delete route: %w", err)
		}
	}

	list := r.routes[route.UpstreamID]
	for i, candidate := range list {
		if candidate.ID == id {
			r.routes[route.UpstreamID] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	delete(r.routeByID, id)

	slog.Info("route deleted", "id", id)
	return nil
}

// GetRoute returns a route by id.
func (r *Registry) GetRoute(id string) (*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	route, ok := r.routeByID[id]
	if !ok {
		return nil, &NotFoundError{Kind: "route", Key: id}
	}
	return cloneRoute(route), nil
}

// ListRoutes returns an upstream's routes in declared order.
func (r *Registry) ListRoutes(upstreamID string) ([]*Route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.upstreams[upstreamID]; !ok {
		return nil, &NotFoundError{Kind: "upstream", Key: upstreamID}
	}

	list := r.routes[upstreamID]
	out := make([]*Route, len(list))
	for i, route := range list {
		out[i] = cloneRoute(route)
	}
	return out, nil
}

// Resolve captures the snapshot for one proxied request: the upstream
// for alias plus its routes in declared order. The returned records are
// the shared immutable instances, not copies, so the capture is free
// and stays stable across concurrent CRUD.
func (r *Registry) Resolve(alias string) (Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byAlias[alias]
	if !ok {
		return Snapshot{}, &NotFoundError{Kind: "upstream", Key: alias}
	}

	routes := r.routes[id]
	captured := make([]*Route, len(routes))
	copy(captured, routes)

	return Snapshot{Upstream: r.upstreams[id], Routes: captured}, nil
}

// checkDuplicateRulesLocked rejects a route whose rules collide with a
// sibling's. skipID excludes the route being updated.
func (r *Registry) checkDuplicateRulesLocked(route *Route, skipID string) error {
	seen := make(map[string]struct{})
	for i := range route.Match {
		fp := ruleFingerprint(&route.Match[i])
		if _, dup := seen[fp]; dup {
			return &ValidationError{Field: fmt.Sprintf("match[%d]", i), Message: "duplicate rule within route"}
		}
		seen[fp] = struct{}{}
	}

	for _, sibling := range r.routes[route.UpstreamID] {
		if sibling.ID == skipID {
			continue
		}
		for i := range sibling.Match {
			if _, dup := seen[ruleFingerprint(&sibling.Match[i])]; dup {
				return &ValidationError{
					Field:   "match",
					Message: fmt.Sprintf("rule duplicates route %q", sibling.ID),
				}
			}
		}
	}
	return nil
}

// cloneUpstream deep-copies an upstream record.
func cloneUpstream(u *Upstream) *Upstream {
	out := *u
	out.Server = append([]Endpoint(nil), u.Server...)
	out.CredentialRefs = append([]string(nil), u.CredentialRefs...)
	if u.AuthPlugin != nil {
		ref := *u.AuthPlugin
		ref.Config = cloneConfig(u.AuthPlugin.Config)
		out.AuthPlugin = &ref
	}
	if u.DefaultRateLimit != nil {
		bucket := *u.DefaultRateLimit
		out.DefaultRateLimit = &bucket
	}
	return &out
}

// cloneRoute deep-copies a route record, preserving compiled patterns.
func cloneRoute(r *Route) *Route {
	out := *r
	out.Match = append([]MatchRule(nil), r.Match...)
	for i := range out.Match {
		out.Match[i].Methods = append([]string(nil), r.Match[i].Methods...)
		out.Match[i].Headers = append([]HeaderPredicate(nil), r.Match[i].Headers...)
	}
	out.Plugins = make([]PluginRef, len(r.Plugins))
	for i, p := range r.Plugins {
		out.Plugins[i] = PluginRef{Name: p.Name, Config: cloneConfig(p.Config)}
	}
	if r.RateLimit != nil {
		bucket := *r.RateLimit
		out.RateLimit = &bucket
	}
	return &out
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return nil
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	return out
}
