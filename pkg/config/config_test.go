package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridforge/transformd/pkg/registry"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TRANSFORMD_REGISTRY_URL", "http://registry.local")
	t.Setenv("TRANSFORMD_CATALOG_URL", "http://catalog.local")

	cfg, err := Load(context.Background(), "")
	require.NoError(t, err)

	assert.True(t, cfg.CheckCatalog)
	assert.Equal(t, []registry.Status{
		registry.StatusActive,
		registry.StatusCompleting,
		registry.StatusFlush,
	}, cfg.TransformationStatus)
	assert.Equal(t, 5000, cfg.MaxFiles)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 1024, cfg.QueueSize)
	assert.Equal(t, Duration(2*time.Minute), cfg.PollInterval)
	assert.Equal(t, "replica-cache.json", cfg.CacheFile)
	assert.Equal(t, Duration(48*time.Hour), cfg.CacheValidity)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "transformd.yaml", `
registry_url: http://registry.local
catalog_url: http://catalog.local
transformation_types: ["Repl*", "Removal"]
max_files: 100
workers: 8
poll_interval: 30s
cache_validity: 12h
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "http://registry.local", cfg.RegistryURL)
	assert.Equal(t, []string{"Repl*", "Removal"}, cfg.TransformationTypes)
	assert.Equal(t, 100, cfg.MaxFiles)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, Duration(30*time.Second), cfg.PollInterval)
	assert.Equal(t, Duration(12*time.Hour), cfg.CacheValidity)
	assert.Equal(t, 1024, cfg.QueueSize, "unset options keep their defaults")
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "transformd.json", `{
  "registry_url": "http://registry.local",
  "check_catalog": false,
  "transformation_status": ["Active", "Flush"],
  "request_timeout": "45s"
}`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.False(t, cfg.CheckCatalog)
	assert.Equal(t, []registry.Status{registry.StatusActive, registry.StatusFlush}, cfg.TransformationStatus)
	assert.Equal(t, Duration(45*time.Second), cfg.RequestTimeout)
}

func TestLoadHCL(t *testing.T) {
	path := writeConfig(t, "transformd.hcl", `
registry_url   = "http://registry.local"
catalog_url    = "http://catalog.local"
check_catalog  = true
workers        = 2
queue_size     = 64
poll_interval  = "1m"
metrics_addr   = ":9090"
`)

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "http://registry.local", cfg.RegistryURL)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 64, cfg.QueueSize)
	assert.Equal(t, Duration(time.Minute), cfg.PollInterval)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, 5000, cfg.MaxFiles, "unset options keep their defaults")
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "transformd.yaml", `
registry_url: http://from-file.local
catalog_url: http://catalog.local
workers: 2
`)
	t.Setenv("TRANSFORMD_REGISTRY_URL", "http://from-env.local")
	t.Setenv("TRANSFORMD_WORKERS", "16")
	t.Setenv("TRANSFORMD_POLL_INTERVAL", "10s")
	t.Setenv("TRANSFORMD_TRANSFORMATION_STATUS", "Active,Flush")

	cfg, err := Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "http://from-env.local", cfg.RegistryURL)
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, Duration(10*time.Second), cfg.PollInterval)
	assert.Equal(t, []registry.Status{registry.StatusActive, registry.StatusFlush}, cfg.TransformationStatus)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "bad.yaml",
			content: `
registry_url: http://registry.local
catalog_url: http://catalog.local
max_fils: 10
`,
		},
		{
			name: "json",
			file: "bad.json",
			content: `{
  "registry_url": "http://registry.local",
  "catalog_url": "http://catalog.local",
  "max_fils": 10
}`,
		},
		{
			name:    "hcl",
			file:    "bad.hcl",
			content: "registry_url = \"http://registry.local\"\nmax_fils = 10\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.content)
			_, err := Load(context.Background(), path)
			require.Error(t, err, "misspelled options must not be silently dropped")
		})
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "missing_file",
			path:    func(*testing.T) string { return "/does/not/exist.yaml" },
			wantErr: "reading config file",
		},
		{
			name: "unsupported_extension",
			path: func(t *testing.T) string {
				return writeConfig(t, "config.toml", "registry_url = \"x\"\n")
			},
			wantErr: "unsupported config file extension",
		},
		{
			name: "malformed_yaml",
			path: func(t *testing.T) string {
				return writeConfig(t, "bad.yaml", "registry_url: [unclosed\n")
			},
			wantErr: "parsing YAML",
		},
		{
			name: "bad_duration",
			path: func(t *testing.T) string {
				return writeConfig(t, "bad.yaml", "registry_url: x\ncatalog_url: y\npoll_interval: soon\n")
			},
			wantErr: "parsing duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(context.Background(), tt.path(t))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Default()
		cfg.RegistryURL = "http://registry.local"
		cfg.CatalogURL = "http://catalog.local"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "missing_registry_url",
			mutate:  func(c *Config) { c.RegistryURL = "" },
			wantErr: "registry_url is required",
		},
		{
			name:    "missing_catalog_url",
			mutate:  func(c *Config) { c.CatalogURL = "" },
			wantErr: "catalog_url is required",
		},
		{
			name:   "catalog_url_optional_when_unchecked",
			mutate: func(c *Config) { c.CatalogURL = ""; c.CheckCatalog = false },
		},
		{
			name:    "empty_statuses",
			mutate:  func(c *Config) { c.TransformationStatus = nil },
			wantErr: "transformation_status",
		},
		{
			name:    "zero_max_files",
			mutate:  func(c *Config) { c.MaxFiles = 0 },
			wantErr: "max_files",
		},
		{
			name:    "negative_workers",
			mutate:  func(c *Config) { c.Workers = -1 },
			wantErr: "workers",
		},
		{
			name:    "zero_poll_interval",
			mutate:  func(c *Config) { c.PollInterval = 0 },
			wantErr: "poll_interval",
		},
		{
			name:    "zero_cache_validity",
			mutate:  func(c *Config) { c.CacheValidity = 0 },
			wantErr: "cache_validity",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDurationRoundTrip(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, Duration(90*time.Second), d)
	assert.Equal(t, "1m30s", d.String())

	require.Error(t, d.UnmarshalText([]byte("ninety seconds")))
}
