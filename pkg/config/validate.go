package config

import (
	"fmt"
	"strings"
)

// ValidationError collects field-scoped validation failures.
type ValidationError struct {
	Errors []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%d validation error(s): %s", len(e.Errors), strings.Join(e.Errors, "; "))
}

// Validate checks the configuration for inconsistencies. All failures
// are collected and returned together.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.Gateway.ProxyTimeout < 0 {
		errs = append(errs, "gateway.proxy_timeout: must not be negative")
	}
	if cfg.Gateway.IdleTimeout < 0 {
		errs = append(errs, "gateway.idle_timeout: must not be negative")
	}

	if cfg.Server.ListenAddress == "" {
		errs = append(errs, "server.listen_address: must not be empty")
	}

	switch cfg.Registry.Backend {
	case "memory":
	case "sqlite":
		if cfg.Registry.DBPath == "" {
			errs = append(errs, "registry.db_path: required for sqlite backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("registry.backend: unknown backend %q (must be memory or sqlite)", cfg.Registry.Backend))
	}

	for id, cred := range cfg.Credentials {
		if cred.Secret == "" {
			errs = append(errs, fmt.Sprintf("credentials.%s.secret: must not be empty", id))
		}
	}

	switch cfg.Telemetry.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.log_level: unknown level %q", cfg.Telemetry.LogLevel))
	}
	switch cfg.Telemetry.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("telemetry.log_format: unknown format %q", cfg.Telemetry.LogFormat))
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}
