package config

import (
	"strings"
	"testing"
)

func minimalValidConfig() *Config {
	cfg := &Config{
		Policy:    PolicyConfig{Dir: "/etc/warden/policies"},
		Auth:      AuthConfig{AdminAPIKeyHash: "sha256:abc123"},
		Telemetry: TelemetryConfig{ServiceName: "warden"},
	}
	cfg.SetDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	if err := minimalValidConfig().Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_MissingPolicyDir(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.Policy.Dir = ""

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() error = nil, want error for missing policy dir")
	}
	if !strings.Contains(err.Error(), "Policy.Dir") {
		t.Errorf("error = %q, want it to name Policy.Dir", err)
	}
}

func TestValidate_AdminAuthRequiresAtLeastOneCredential(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.Auth.AdminAPIKeyHash = ""
	cfg.Auth.AdminTokenSecret = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error when neither admin credential is set")
	}
}

func TestValidate_AdminAuthAcceptsTokenSecretAlone(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.Auth.AdminAPIKeyHash = ""
	cfg.Auth.AdminTokenSecret = "super-secret"

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error with token secret alone: %v", err)
	}
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.Server.LogLevel = "verbose"

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for invalid log_level")
	}
}

func TestValidate_InvalidHTTPAddr(t *testing.T) {
	t.Parallel()
	cfg := minimalValidConfig()
	cfg.Server.HTTPAddr = "not a host port"

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() error = nil, want error for invalid http_addr")
	}
}

func TestSetDefaults(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.SetDefaults()

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("Server.HTTPAddr = %q, want 127.0.0.1:8080", cfg.Server.HTTPAddr)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("Server.LogLevel = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Telemetry.ServiceName != "warden" {
		t.Errorf("Telemetry.ServiceName = %q, want warden", cfg.Telemetry.ServiceName)
	}
}
