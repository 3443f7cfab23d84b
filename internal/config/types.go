// Package config provides configuration loading for the gateway daemon using
// Viper. Configuration is loaded from environment variables (and an optional
// YAML file) with defaults matching the original docker-dns C daemon.
//
// Environment variables carry no prefix and use the original daemon's exact
// names, e.g. LISTEN_PORT, FORWARD_DNS, GATEWAY_NAME, SUFFIX_DOMAIN. This
// keeps existing container deployments (env files, compose units) working
// unchanged.
package config

import (
	"os"
	"strings"
)

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// HealthConfig controls the ambient liveness/stats HTTP endpoint.
type HealthConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
	Host    string `yaml:"host"    mapstructure:"host"    json:"host"`
	Port    int    `yaml:"port"    mapstructure:"port"    json:"port"`
}

// Config is the root configuration structure for the gateway daemon.
type Config struct {
	// ListenPort is the UDP port the listener binds (LISTEN_PORT, default 53).
	ListenPort int `yaml:"listen_port" mapstructure:"listen_port" json:"listen_port"`

	// ForwardDNS is the upstream resolver address for in-suffix, non-gateway
	// queries (FORWARD_DNS, default 127.0.0.11).
	ForwardDNS string `yaml:"forward_dns" mapstructure:"forward_dns" json:"forward_dns"`

	// GatewayName is the single label answered with the synthesized gateway
	// A record (GATEWAY_NAME, default "gateway").
	GatewayName string `yaml:"gateway_name" mapstructure:"gateway_name" json:"gateway_name"`

	// ContainerName is the upstream-resolvable name used for the forwarder
	// liveness probe at startup (CONTAINER_NAME, default "docker-dns").
	ContainerName string `yaml:"container_name" mapstructure:"container_name" json:"container_name"`

	// SuffixDomain is the domain suffix this gateway is authoritative for
	// (SUFFIX_DOMAIN, default ".docker").
	SuffixDomain string `yaml:"suffix_domain" mapstructure:"suffix_domain" json:"suffix_domain"`

	// KeepSuffix, when true, forwards queries with the suffix intact instead
	// of stripping it before forwarding upstream (KEEP_SUFFIX, default false).
	KeepSuffix bool `yaml:"keep_suffix" mapstructure:"keep_suffix" json:"keep_suffix"`

	// MaxHops bounds the loop-marker hop counter; a query arriving with this
	// many hops or more gets SERVFAIL (MAX_HOPS, default 3, valid range 1..10).
	MaxHops int `yaml:"max_hops" mapstructure:"max_hops" json:"max_hops"`

	// NumWorkers is the number of worker goroutines draining the request
	// queue (NUM_WORKERS, default 4, valid range 1..10).
	NumWorkers int `yaml:"num_workers" mapstructure:"num_workers" json:"num_workers"`

	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Health  HealthConfig  `yaml:"health"  mapstructure:"health"`
}

// ResolveConfigPath determines the config file path from flag or environment.
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("DOCKERDNS_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from an optional YAML file with environment
// variable overrides. This is the main entry point for loading configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (e.g. LISTEN_PORT, FORWARD_DNS, MAX_HOPS)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
