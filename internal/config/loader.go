package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and
// environment variables. If configFile is empty, it searches for
// warden.yaml/.yml in standard locations. The search requires an
// explicit YAML extension so Viper's SetConfigName never matches the
// warden binary itself.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("warden")
		viper.SetConfigType("yaml")
	}

	// WARDEN_SERVER_HTTP_ADDR overrides server.http_addr, etc.
	viper.SetEnvPrefix("WARDEN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for a warden config file
// with an explicit .yaml or .yml extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".warden"),
	}
	if runtime.GOOS == "windows" {
		if pd := os.Getenv("ProgramData"); pd != "" {
			paths = append(paths, filepath.Join(pd, "warden"))
		}
	} else {
		paths = append(paths, "/etc/warden")
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "warden"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds config keys for environment variable
// support, including names that live outside the WARDEN_ prefix
// scheme: POLICY_DIR, SERVICE_NAME, LOGS_DIR,
// OTEL_EXPORTER_OTLP_ENDPOINT.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("server.http_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("server.shutdown_timeout")

	_ = viper.BindEnv("policy.dir", "POLICY_DIR")
	_ = viper.BindEnv("policy.reload_debounce")

	_ = viper.BindEnv("auth.admin_api_key_hash", "WARDEN_ADMIN_API_KEY")
	_ = viper.BindEnv("auth.admin_token_secret", "WARDEN_ADMIN_TOKEN_SECRET")
	_ = viper.BindEnv("auth.admin_token_ttl")

	_ = viper.BindEnv("telemetry.service_name", "SERVICE_NAME")
	_ = viper.BindEnv("telemetry.logs_dir", "LOGS_DIR")
	_ = viper.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Load reads the configuration file (if any), applies environment
// overrides and defaults, validates, and returns the Config.
func Load() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or "" if none was found (environment-only mode).
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
