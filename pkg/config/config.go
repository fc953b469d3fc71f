package config

import "time"

// Config is the root configuration structure for the outbound gateway.
type Config struct {
	// Gateway contains the proxy pipeline settings: timeouts, header
	// forwarding, and the maintenance schedule.
	Gateway GatewayConfig `yaml:"gateway"`

	// Server contains the inbound HTTP listener settings.
	Server ServerConfig `yaml:"server"`

	// Credentials maps credential ids to their secret material. Values
	// are loaded into the credential store at startup. Secrets may also
	// arrive from the environment or a watched directory; see the
	// credentials package.
	Credentials map[string]CredentialConfig `yaml:"credentials"`

	// Registry selects the persistence backend for upstream and route
	// records.
	Registry RegistryConfig `yaml:"registry"`

	// Provision points at an optional YAML seed file drained into the
	// registries at startup.
	Provision ProvisionConfig `yaml:"provision"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// GatewayConfig contains settings for the proxy pipeline and forwarder.
type GatewayConfig struct {
	// ProxyTimeout bounds the time from pipeline entry to the first byte
	// of upstream response headers. Streaming bodies are not bounded
	// once headers are in.
	// Default: 30s
	ProxyTimeout time.Duration `yaml:"proxy_timeout"`

	// IdleTimeout bounds WebSocket inactivity (no bytes in either
	// direction). Zero disables the idle check.
	// Default: 0 (disabled)
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ForwardXFF controls whether X-Forwarded-For and X-Forwarded-Host
	// headers are added to outbound requests.
	// Default: true
	ForwardXFF *bool `yaml:"forward_xff"`

	// MaintenanceSchedule is a cron expression for the background sweep
	// that garbage-collects idle rate-limit buckets and refreshes
	// credential providers. Empty disables the sweep.
	// Default: "@every 1m"
	MaintenanceSchedule string `yaml:"maintenance_schedule"`

	// MaxHeaderBytes is parsed but not applied: the forwarder does not
	// read it and always accepts upstream response headers up to the
	// transport's default limit.
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// ServerConfig contains the inbound HTTP listener settings.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadHeaderTimeout bounds reading inbound request headers.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// ShutdownTimeout bounds graceful shutdown. In-flight requests
	// still running after this are aborted.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// AdminEnabled exposes /healthz and /metrics on the listener.
	// Default: true
	AdminEnabled *bool `yaml:"admin_enabled"`
}

// CredentialConfig describes one statically configured credential.
type CredentialConfig struct {
	// Secret is the credential material. Required.
	Secret string `yaml:"secret"`

	// Kind tags the credential (e.g. "api_key", "token"). Optional.
	Kind string `yaml:"kind"`
}

// RegistryConfig selects and configures the registry persistence backend.
type RegistryConfig struct {
	// Backend is "memory" or "sqlite".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// DBPath is the SQLite database file path. Required when the
	// backend is "sqlite".
	DBPath string `yaml:"db_path"`
}

// ProvisionConfig points at startup provisioning sources.
type ProvisionConfig struct {
	// SeedFile is a YAML file of upstream and route records loaded at
	// startup. Empty disables file provisioning.
	SeedFile string `yaml:"seed_file"`

	// CredentialDir is a directory of secret files (one file per
	// credential id) watched for changes. Empty disables it.
	CredentialDir string `yaml:"credential_dir"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	// LogLevel is "debug", "info", "warn" or "error".
	// Default: "info"
	LogLevel string `yaml:"log_level"`

	// LogFormat is "json" or "text".
	// Default: "json"
	LogFormat string `yaml:"log_format"`

	// MetricsEnabled is defaulted but not consulted: the collectors are
	// always registered, and /metrics is served whenever the admin
	// endpoints are on (ServerConfig.AdminEnabled).
	// Default: true
	MetricsEnabled *bool `yaml:"metrics_enabled"`
}
