// Package config provides configuration types for Warden.
//
// This schema intentionally excludes everything out of scope for this gateway:
//
//   - NO durable persistence for decisions or approvals (in-memory only)
//   - NO general-purpose rule language (the condition set is closed)
//   - NO multi-hop caller chain reconstruction from storage
//
// Config is assembled by viper from an optional warden.yaml plus
// environment variables, then validated with go-playground/validator
// struct tags and one cross-field check.
package config

// Config is the top-level Warden configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Policy    PolicyConfig    `yaml:"policy" mapstructure:"policy"`
	Auth      AuthConfig      `yaml:"auth" mapstructure:"auth"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// ServerConfig configures the HTTP gateway listener.
type ServerConfig struct {
	// HTTPAddr is the address to listen on, e.g. "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum slog level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`

	// ShutdownTimeout bounds how long graceful shutdown waits for
	// in-flight requests to drain, e.g. "10s".
	ShutdownTimeout string `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"omitempty"`
}

// PolicyConfig configures the policy corpus and its watcher.
type PolicyConfig struct {
	// Dir is the directory of .yaml/.yml policy files.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required"`

	// ReloadDebounce is how long the watcher waits for a quiet period
	// before triggering a reload, e.g. "100ms".
	ReloadDebounce string `yaml:"reload_debounce" mapstructure:"reload_debounce" validate:"omitempty"`
}

// AuthConfig configures admin authentication. At least one of
// AdminAPIKeyHash or AdminTokenSecret must be set; see Validate.
type AuthConfig struct {
	// AdminAPIKeyHash is the Argon2id (or sha256: prefixed) hash of
	// the shared admin API key, generated by `warden hash-key`.
	AdminAPIKeyHash string `yaml:"admin_api_key_hash" mapstructure:"admin_api_key_hash"`

	// AdminTokenSecret signs and verifies short-lived admin JWTs
	// issued by POST /admin/login.
	AdminTokenSecret string `yaml:"admin_token_secret" mapstructure:"admin_token_secret"`

	// AdminTokenTTL bounds the lifetime of an issued admin token,
	// e.g. "15m". Defaults to 15 minutes.
	AdminTokenTTL string `yaml:"admin_token_ttl" mapstructure:"admin_token_ttl" validate:"omitempty"`
}

// TelemetryConfig configures logging, tracing and metrics identity.
type TelemetryConfig struct {
	// ServiceName identifies this instance in traces and logs.
	ServiceName string `yaml:"service_name" mapstructure:"service_name" validate:"required"`

	// LogsDir is the directory slog's structured log file is written
	// to; empty means stderr only.
	LogsDir string `yaml:"logs_dir" mapstructure:"logs_dir"`

	// OTLPEndpoint is recorded on the trace resource as
	// "otlp.endpoint_configured". Spans are always written by the stdout
	// trace exporter; nothing is sent to the endpoint and no metrics are
	// exported through OpenTelemetry.
	OTLPEndpoint string `yaml:"otlp_endpoint" mapstructure:"otlp_endpoint"`
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Policy.ReloadDebounce == "" {
		c.Policy.ReloadDebounce = "100ms"
	}
	if c.Auth.AdminTokenTTL == "" {
		c.Auth.AdminTokenTTL = "15m"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "warden"
	}
}
