// Package config provides configuration loading and validation for the
// gateway daemon.
//
// Configuration is loaded with the following priority (highest to lowest):
//  1. Command-line flags (not handled here, see cmd/dockerdns/main.go)
//  2. Environment variables (original docker-dns names, e.g. FORWARD_DNS)
//  3. YAML config file (if specified with --config)
//  4. Hardcoded defaults
//
// All configuration is validated during Load() to ensure correctness early.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envKeys lists every environment variable name honored by the daemon,
// matching the original docker-dns C implementation's names exactly so
// existing deployments keep working unchanged.
var envKeys = map[string]string{
	"listen_port":    "LISTEN_PORT",
	"forward_dns":    "FORWARD_DNS",
	"gateway_name":   "GATEWAY_NAME",
	"container_name": "CONTAINER_NAME",
	"suffix_domain":  "SUFFIX_DOMAIN",
	"keep_suffix":    "KEEP_SUFFIX",
	"max_hops":       "MAX_HOPS",
	"num_workers":    "NUM_WORKERS",
	"logging.level":  "LOG_LEVEL",
}

// initConfig sets up the config loader with defaults, env binding, and config file.
func initConfig(configPath string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	// Unlike the teacher's HYDRADNS_-prefixed scheme, this daemon binds each
	// key individually to the original daemon's unprefixed env var name.
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return v, nil
}

// setDefaults configures all default values, matching the original
// docker-dns C daemon's compiled-in defaults.
func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_port", 53)
	v.SetDefault("forward_dns", "127.0.0.11")
	v.SetDefault("gateway_name", "gateway")
	v.SetDefault("container_name", "docker-dns")
	v.SetDefault("suffix_domain", ".docker")
	v.SetDefault("keep_suffix", false)
	v.SetDefault("max_hops", 3)
	v.SetDefault("num_workers", 4)

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.structured", false)
	v.SetDefault("logging.structured_format", "json")
	v.SetDefault("logging.include_pid", false)
	v.SetDefault("logging.extra_fields", map[string]string{})

	// The health/stats endpoint is ambient (spec.md has no component for
	// it); default to disabled and bound to localhost for safety.
	v.SetDefault("health.enabled", false)
	v.SetDefault("health.host", "127.0.0.1")
	v.SetDefault("health.port", 8080)
}

// loadFromSource loads configuration from file and environment.
func loadFromSource(configPath string) (*Config, error) {
	v, err := initConfig(configPath)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		ListenPort:    v.GetInt("listen_port"),
		ForwardDNS:    v.GetString("forward_dns"),
		GatewayName:   v.GetString("gateway_name"),
		ContainerName: v.GetString("container_name"),
		SuffixDomain:  v.GetString("suffix_domain"),
		KeepSuffix:    v.GetBool("keep_suffix"),
		MaxHops:       v.GetInt("max_hops"),
		NumWorkers:    v.GetInt("num_workers"),
	}
	loadLoggingConfig(v, cfg)
	loadHealthConfig(v, cfg)

	if err := normalizeConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadLoggingConfig(v *viper.Viper, cfg *Config) {
	cfg.Logging.Level = strings.ToUpper(v.GetString("logging.level"))
	cfg.Logging.Structured = v.GetBool("logging.structured")
	cfg.Logging.StructuredFormat = v.GetString("logging.structured_format")
	cfg.Logging.IncludePID = v.GetBool("logging.include_pid")
	cfg.Logging.ExtraFields = v.GetStringMapString("logging.extra_fields")
}

func loadHealthConfig(v *viper.Viper, cfg *Config) {
	cfg.Health.Enabled = v.GetBool("health.enabled")
	cfg.Health.Host = v.GetString("health.host")
	cfg.Health.Port = v.GetInt("health.port")
}

// normalizeConfig validates and normalizes the configuration.
func normalizeConfig(cfg *Config) error {
	if cfg.ListenPort <= 0 || cfg.ListenPort > 65535 {
		return errors.New("listen_port must be 1..65535")
	}

	if strings.TrimSpace(cfg.ForwardDNS) == "" {
		return errors.New("forward_dns must not be empty")
	}

	if strings.TrimSpace(cfg.GatewayName) == "" {
		return errors.New("gateway_name must not be empty")
	}

	if cfg.MaxHops < 1 || cfg.MaxHops > 10 {
		return errors.New("max_hops must be 1..10")
	}

	if cfg.NumWorkers < 1 || cfg.NumWorkers > 10 {
		return errors.New("num_workers must be 1..10")
	}

	cfg.SuffixDomain = normalizeSuffix(cfg.SuffixDomain)

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.StructuredFormat == "" {
		cfg.Logging.StructuredFormat = "json"
	}
	if cfg.Logging.ExtraFields == nil {
		cfg.Logging.ExtraFields = map[string]string{}
	}

	if cfg.Health.Host == "" {
		cfg.Health.Host = "127.0.0.1"
	}
	if cfg.Health.Enabled {
		if cfg.Health.Port <= 0 || cfg.Health.Port > 65535 {
			return errors.New("health.port must be 1..65535")
		}
	}

	return nil
}

// normalizeSuffix ensures the suffix domain carries a single leading dot,
// e.g. "docker" and ".docker" both normalize to ".docker".
func normalizeSuffix(suffix string) string {
	suffix = strings.TrimSpace(suffix)
	if suffix == "" {
		return ".docker"
	}
	if !strings.HasPrefix(suffix, ".") {
		suffix = "." + suffix
	}
	return suffix
}
