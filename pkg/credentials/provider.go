package credentials

import "context"

// Provider seeds credentials into a store. Providers are loaded once at
// startup; refreshable providers can re-seed on demand.
type Provider interface {
	// Name identifies the provider in logs.
	Name() string

	// Load seeds the store with every credential the provider knows.
	Load(ctx context.Context, store *Store) error
}

// RefreshableProvider re-reads its source and re-seeds the store. The
// maintenance scheduler calls Refresh periodically.
type RefreshableProvider interface {
	Provider

	// Refresh re-reads the source and re-seeds the store.
	Refresh(ctx context.Context, store *Store) error
}
