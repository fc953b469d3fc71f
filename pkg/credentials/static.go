package credentials

import (
	"context"
	"log/slog"
)

// StaticProvider seeds credentials from configuration values.
type StaticProvider struct {
	creds []Credential
}

// NewStaticProvider creates a provider over the given records.
func NewStaticProvider(creds []Credential) *StaticProvider {
	return &StaticProvider{creds: creds}
}

// Name identifies the provider in logs.
func (p *StaticProvider) Name() string { return "static" }

// Load seeds the store with the configured credentials.
func (p *StaticProvider) Load(ctx context.Context, store *Store) error {
	for _, cred := range p.creds {
		if err := store.Put(cred); err != nil {
			return err
		}
	}
	slog.Debug("static credentials loaded", "count", len(p.creds))
	return nil
}
