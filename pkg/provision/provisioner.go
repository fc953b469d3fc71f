package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"meridian-hq/oagw/pkg/registry"
)

// TypeProvider hands out the records to provision. The gateway only
// reads from it.
type TypeProvider interface {
	Upstreams(ctx context.Context) ([]registry.Upstream, error)
	Routes(ctx context.Context) ([]registry.Route, error)
}

// Result summarizes one provisioning run.
type Result struct {
	UpstreamsApplied int
	UpstreamsSkipped int
	RoutesApplied    int
	RoutesSkipped    int
}

// Run drains the provider into the registry. Validation failures are
// logged and counted, never fatal. Records whose id already exists are
// updated in place, which makes re-provisioning idempotent.
func Run(ctx context.Context, provider TypeProvider, reg *registry.Registry) (Result, error) {
	var result Result

	upstreams, err := provider.Upstreams(ctx)
	if err != nil {
		return result, fmt.Errorf("type provider upstreams: %w", err)
	}
	for _, u := range upstreams {
		if err := applyUpstream(reg, u); err != nil {
			slog.Warn("skipping upstream record", "id", u.ID, "alias", u.Alias, "error", err)
			result.UpstreamsSkipped++
			continue
		}
		result.UpstreamsApplied++
	}

	routes, err := provider.Routes(ctx)
	if err != nil {
		return result, fmt.Errorf("type provider routes: %w", err)
	}
	for _, r := range routes {
		if err := applyRoute(reg, r); err != nil {
			slog.Warn("skipping route record", "id", r.ID, "upstream_id", r.UpstreamID, "error", err)
			result.RoutesSkipped++
			continue
		}
		result.RoutesApplied++
	}

	slog.Info("provisioning complete",
		"upstreams_applied", result.UpstreamsApplied,
		"upstreams_skipped", result.UpstreamsSkipped,
		"routes_applied", result.RoutesApplied,
		"routes_skipped", result.RoutesSkipped,
	)
	return result, nil
}

func applyUpstream(reg *registry.Registry, u registry.Upstream) error {
	if u.ID != "" {
		if _, err := reg.GetUpstream(u.ID); err == nil {
			_, err := reg.UpdateUpstream(u)
			return err
		}
	}
	_, err := reg.CreateUpstream(u)
	var exists *registry.AlreadyExistsError
	if errors.As(err, &exists) && u.ID != "" {
		_, err = reg.UpdateUpstream(u)
	}
	return err
}

func applyRoute(reg *registry.Registry, r registry.Route) error {
	if r.ID != "" {
		if _, err := reg.GetRoute(r.ID); err == nil {
			_, err := reg.UpdateRoute(r)
			return err
		}
	}
	_, err := reg.CreateRoute(r)
	return err
}

// seedFile is the YAML shape of a provisioning seed file.
type seedFile struct {
	Upstreams []registry.Upstream `yaml:"upstreams"`
	Routes    []registry.Route    `yaml:"routes"`
}

// FileProvider is a TypeProvider backed by a YAML seed file.
type FileProvider struct {
	seed seedFile
}

// NewFileProvider parses the seed file at path.
func NewFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %q: %w", path, err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %q: %w", path, err)
	}
	return &FileProvider{seed: seed}, nil
}

// Upstreams returns the seed file's upstream records.
func (p *FileProvider) Upstreams(_ context.Context) ([]registry.Upstream, error) {
	return p.seed.Upstreams, nil
}

// Routes returns the seed file's route records.
func (p *FileProvider) Routes(_ context.Context) ([]registry.Route, error) {
	return p.seed.Routes, nil
}
