package credentials

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// EnvPrefix is the environment variable prefix for credential values.
// OAGW_CREDENTIAL_MY_KEY seeds credential id "my_key".
const EnvPrefix = "OAGW_CREDENTIAL_"

// EnvProvider seeds credentials from prefixed environment variables.
// The variable suffix is lowercased to form the credential id.
type EnvProvider struct{}

// NewEnvProvider creates an environment-backed provider.
func NewEnvProvider() *EnvProvider { return &EnvProvider{} }

// Name identifies the provider in logs.
func (p *EnvProvider) Name() string { return "env" }

// Load scans the environment and seeds every OAGW_CREDENTIAL_* value.
func (p *EnvProvider) Load(ctx context.Context, store *Store) error {
	count := 0
	for _, entry := range os.Environ() {
		name, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		if value == "" {
			continue
		}

		id := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
		if err := store.Put(Credential{ID: id, Secret: []byte(value), Kind: "env"}); err != nil {
			return err
		}
		count++
	}
	slog.Debug("environment credentials loaded", "count", count)
	return nil
}

// Refresh re-scans the environment.
func (p *EnvProvider) Refresh(ctx context.Context, store *Store) error {
	return p.Load(ctx, store)
}
