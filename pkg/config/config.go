// Copyright 2025 gridforge LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config is the agent's configuration surface: a YAML or HCL file,
// overlaid with TRANSFORMD_* environment variables, validated with
// defaults.
package config

import (
	"time"

	"gitlab.com/tozd/go/errors"

	"github.com/gridforge/transformd/pkg/registry"
)

// Duration is a time.Duration that unmarshals from strings like "2m" in
// YAML, JSON and environment variables.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Errorf("parsing duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(raw))
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config holds every recognized agent option.
type Config struct {
	// RegistryURL is the transformation registry service.
	RegistryURL string `yaml:"registry_url" json:"registry_url" envconfig:"REGISTRY_URL"`

	// CatalogURL is the replica catalog service.
	CatalogURL string `yaml:"catalog_url" json:"catalog_url" envconfig:"CATALOG_URL"`

	// PluginLocation is the plugin lookup namespace tried before the bare
	// plugin name. Empty means built-ins only.
	PluginLocation string `yaml:"plugin_location" json:"plugin_location" envconfig:"PLUGIN_LOCATION"`

	// CheckCatalog gates catalog lookups; when false the agent resolves
	// replicas from its cache alone.
	CheckCatalog bool `yaml:"check_catalog" json:"check_catalog" envconfig:"CHECK_CATALOG"`

	// TransformationStatus is the status set the poller fetches.
	TransformationStatus []registry.Status `yaml:"transformation_status" json:"transformation_status" envconfig:"TRANSFORMATION_STATUS"`

	// TransformationTypes narrows polling by type; doublestar patterns.
	TransformationTypes []string `yaml:"transformation_types" json:"transformation_types" envconfig:"TRANSFORMATION_TYPES"`

	// Transformation processes one named transformation instead of polling.
	Transformation string `yaml:"transformation" json:"transformation" envconfig:"TRANSFORMATION"`

	// MaxFiles bounds the per-cycle sample for replication/removal.
	MaxFiles int `yaml:"max_files" json:"max_files" envconfig:"MAX_FILES"`

	// Workers is the worker pool size.
	Workers int `yaml:"workers" json:"workers" envconfig:"WORKERS"`

	// QueueSize bounds the dispatch queue.
	QueueSize int `yaml:"queue_size" json:"queue_size" envconfig:"QUEUE_SIZE"`

	// PollInterval is the poller period.
	PollInterval Duration `yaml:"poll_interval" json:"poll_interval" envconfig:"POLL_INTERVAL"`

	// CacheFile is where the replica cache persists across restarts.
	CacheFile string `yaml:"cache_file" json:"cache_file" envconfig:"CACHE_FILE"`

	// CacheValidity is how long cached replica snapshots stay usable.
	CacheValidity Duration `yaml:"cache_validity" json:"cache_validity" envconfig:"CACHE_VALIDITY"`

	// RequestTimeout applies to every remote registry and catalog call.
	RequestTimeout Duration `yaml:"request_timeout" json:"request_timeout" envconfig:"REQUEST_TIMEOUT"`

	// MetricsAddr, when set, serves /metrics and /healthz there.
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr" envconfig:"METRICS_ADDR"`
}

// Default returns the configuration the agent runs with when nothing is
// overridden.
func Default() Config {
	return Config{
		CheckCatalog: true,
		TransformationStatus: []registry.Status{
			registry.StatusActive,
			registry.StatusCompleting,
			registry.StatusFlush,
		},
		MaxFiles:       5000,
		Workers:        4,
		QueueSize:      1024,
		PollInterval:   Duration(2 * time.Minute),
		CacheFile:      "replica-cache.json",
		CacheValidity:  Duration(48 * time.Hour),
		RequestTimeout: Duration(2 * time.Minute),
	}
}

// Validate checks the configuration for values the agent cannot run with.
func (c *Config) Validate() error {
	if c.RegistryURL == "" {
		return errors.New("registry_url is required")
	}
	if c.CheckCatalog && c.CatalogURL == "" {
		return errors.New("catalog_url is required unless check_catalog is false")
	}
	if len(c.TransformationStatus) == 0 {
		return errors.New("transformation_status must not be empty")
	}
	if c.MaxFiles <= 0 {
		return errors.New("max_files must be positive")
	}
	if c.Workers <= 0 {
		return errors.New("workers must be positive")
	}
	if c.QueueSize <= 0 {
		return errors.New("queue_size must be positive")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if c.CacheValidity <= 0 {
		return errors.New("cache_validity must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	return nil
}
