package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meridian-hq/oagw/pkg/config"
	"meridian-hq/oagw/pkg/credentials"
	"meridian-hq/oagw/pkg/gateway"
	"meridian-hq/oagw/pkg/provision"
	"meridian-hq/oagw/pkg/registry"
	"meridian-hq/oagw/pkg/registry/storage"
	"meridian-hq/oagw/pkg/server"
	"meridian-hq/oagw/pkg/telemetry/logging"
)

var runFlags struct {
	listenAddress string
	logLevel      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the gateway",
	Long: `Start the gateway with the specified configuration.

The gateway listens on the configured address, provisions upstreams and
routes from the seed file when one is configured, and proxies inbound
requests to their upstreams.

Examples:
  # Start with default config
  oagw run

  # Start with custom config
  oagw run --config /etc/oagw/config.yaml

  # Override listen address
  oagw run --listen 0.0.0.0:8080`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return err
	}
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.LogLevel = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.LogLevel = "debug"
	}

	if _, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.LogLevel,
		Format: cfg.Telemetry.LogFormat,
	}); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var backend registry.Backend
	if cfg.Registry.Backend == "sqlite" {
		backend, err = storage.NewSQLite(cfg.Registry.DBPath)
		if err != nil {
			return err
		}
		defer backend.Close()
	}

	providers, cleanup, err := buildCredentialProviders(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	gw, err := gateway.New(ctx, cfg, gateway.Options{
		Backend:   backend,
		Providers: providers,
	})
	if err != nil {
		return err
	}

	if cfg.Provision.SeedFile != "" {
		provider, err := provision.NewFileProvider(cfg.Provision.SeedFile)
		if err != nil {
			return err
		}
		if _, err := provision.Run(ctx, provider, gw.Registry()); err != nil {
			return err
		}
	}

	return server.New(&cfg.Server, gw).Start(ctx)
}

// buildCredentialProviders assembles the provider chain from config:
// static config values, the environment, and an optional watched
// directory.
func buildCredentialProviders(cfg *config.Config) ([]credentials.Provider, func(), error) {
	var providers []credentials.Provider

	if len(cfg.Credentials) > 0 {
		creds := make([]credentials.Credential, 0, len(cfg.Credentials))
		for id, c := range cfg.Credentials {
			kind := c.Kind
			if kind == "" {
				kind = "config"
			}
			creds = append(creds, credentials.Credential{ID: id, Secret: []byte(c.Secret), Kind: kind})
		}
		providers = append(providers, credentials.NewStaticProvider(creds))
	}

	providers = append(providers, credentials.NewEnvProvider())

	cleanup := func() {}
	if dir := cfg.Provision.CredentialDir; dir != "" {
		fileProvider, err := credentials.NewFileProvider(dir, true)
		if err != nil {
			return nil, nil, fmt.Errorf("credential directory: %w", err)
		}
		providers = append(providers, fileProvider)
		cleanup = func() { _ = fileProvider.Close() }
	}

	return providers, cleanup, nil
}
