package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveConfigPath(t *testing.T) {
	tests := []struct {
		name     string
		flag     string
		envValue string
		want     string
	}{
		{"flag takes precedence", "/path/from/flag", "/path/from/env", "/path/from/flag"},
		{"env when no flag", "", "/path/from/env", "/path/from/env"},
		{"empty when neither", "", "", ""},
		{"whitespace flag", "  ", "/path/from/env", "/path/from/env"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DOCKERDNS_CONFIG", tt.envValue)
			got := ResolveConfigPath(tt.flag)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 53, cfg.ListenPort)
	assert.Equal(t, "127.0.0.11", cfg.ForwardDNS)
	assert.Equal(t, "gateway", cfg.GatewayName)
	assert.Equal(t, "docker-dns", cfg.ContainerName)
	assert.Equal(t, ".docker", cfg.SuffixDomain)
	assert.False(t, cfg.KeepSuffix)
	assert.Equal(t, 3, cfg.MaxHops)
	assert.Equal(t, 4, cfg.NumWorkers)
	assert.False(t, cfg.Health.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.Health.Host)
}

func TestLoadFromFile(t *testing.T) {
	content := `
listen_port: 5353
forward_dns: "1.1.1.1"
gateway_name: "router"
suffix_domain: "lan"
max_hops: 5
num_workers: 2

logging:
  level: "DEBUG"
  structured: true
  structured_format: "keyvalue"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "test-config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5353, cfg.ListenPort)
	assert.Equal(t, "1.1.1.1", cfg.ForwardDNS)
	assert.Equal(t, "router", cfg.GatewayName)
	assert.Equal(t, ".lan", cfg.SuffixDomain, "bare suffix should gain a leading dot")
	assert.Equal(t, 5, cfg.MaxHops)
	assert.Equal(t, 2, cfg.NumWorkers)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Structured)
	assert.Equal(t, "keyvalue", cfg.Logging.StructuredFormat)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path/to/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen_port: [invalid"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidPort(t *testing.T) {
	content := "listen_port: 0\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeInvalidMaxHops(t *testing.T) {
	content := "max_hops: 0\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)

	content2 := "max_hops: 20\n"
	path2 := filepath.Join(dir, "test2.yaml")
	require.NoError(t, os.WriteFile(path2, []byte(content2), 0644))

	_, err2 := Load(path2)
	assert.Error(t, err2)
}

func TestNormalizeInvalidNumWorkers(t *testing.T) {
	content := "num_workers: 0\n"
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestNormalizeSuffixAddsLeadingDot(t *testing.T) {
	assert.Equal(t, ".docker", normalizeSuffix("docker"))
	assert.Equal(t, ".docker", normalizeSuffix(".docker"))
	assert.Equal(t, ".docker", normalizeSuffix(""))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LISTEN_PORT", "8053")
	t.Setenv("FORWARD_DNS", "9.9.9.9")
	t.Setenv("GATEWAY_NAME", "hostgw")
	t.Setenv("SUFFIX_DOMAIN", "internal")
	t.Setenv("KEEP_SUFFIX", "true")
	t.Setenv("MAX_HOPS", "7")
	t.Setenv("NUM_WORKERS", "6")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8053, cfg.ListenPort)
	assert.Equal(t, "9.9.9.9", cfg.ForwardDNS)
	assert.Equal(t, "hostgw", cfg.GatewayName)
	assert.Equal(t, ".internal", cfg.SuffixDomain)
	assert.True(t, cfg.KeepSuffix)
	assert.Equal(t, 7, cfg.MaxHops)
	assert.Equal(t, 6, cfg.NumWorkers)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
}
