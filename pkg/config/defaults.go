package config

import "time"

// Default values applied by ApplyDefaults.
const (
	DefaultProxyTimeout        = 30 * time.Second
	DefaultListenAddress       = "127.0.0.1:8080"
	DefaultReadHeaderTimeout   = 10 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultMaintenanceSchedule = "@every 1m"
	DefaultRegistryBackend     = "memory"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
)

// ApplyDefaults fills unset fields with their default values. Pointer
// booleans distinguish "unset" from an explicit false.
func ApplyDefaults(cfg *Config) {
	if cfg.Gateway.ProxyTimeout == 0 {
		cfg.Gateway.ProxyTimeout = DefaultProxyTimeout
	}
	if cfg.Gateway.ForwardXFF == nil {
		cfg.Gateway.ForwardXFF = boolPtr(true)
	}
	if cfg.Gateway.MaintenanceSchedule == "" {
		cfg.Gateway.MaintenanceSchedule = DefaultMaintenanceSchedule
	}

	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadHeaderTimeout == 0 {
		cfg.Server.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.AdminEnabled == nil {
		cfg.Server.AdminEnabled = boolPtr(true)
	}

	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = DefaultRegistryBackend
	}

	if cfg.Telemetry.LogLevel == "" {
		cfg.Telemetry.LogLevel = DefaultLogLevel
	}
	if cfg.Telemetry.LogFormat == "" {
		cfg.Telemetry.LogFormat = DefaultLogFormat
	}
	if cfg.Telemetry.MetricsEnabled == nil {
		cfg.Telemetry.MetricsEnabled = boolPtr(true)
	}
}

func boolPtr(b bool) *bool { return &b }
