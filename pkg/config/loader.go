package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"

	"github.com/gridforge/transformd/pkg/registry"
)

// envPrefix is the prefix of every recognized environment variable.
const envPrefix = "transformd"

// Load builds the agent configuration: defaults, then the file at path (if
// any), then the TRANSFORMD_* environment overlay, then validation. The
// file format is determined by extension: .json, .yaml/.yml, or .hcl.
// An empty path means environment and defaults only.
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Errorf("reading config file: %w", err)
		}

		ext := strings.ToLower(filepath.Ext(path))
		switch ext {
		case ".json":
			err = loadJSON(data, &cfg)
		case ".yaml", ".yml":
			err = loadYAML(data, &cfg)
		case ".hcl":
			err = loadHCL(data, path, &cfg)
		default:
			return nil, errors.Errorf("unsupported config file extension %q", ext)
		}
		if err != nil {
			return nil, err
		}
		logger.Debug().Str("path", path).Msg("loaded configuration file")
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, errors.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func loadJSON(data []byte, cfg *Config) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		return errors.Errorf("parsing JSON: %w", err)
	}
	return nil
}

func loadYAML(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return errors.Errorf("parsing YAML: %w", err)
	}
	return nil
}

// hclConfig mirrors Config for gohcl decoding; durations come in as
// strings.
type hclConfig struct {
	RegistryURL          string   `hcl:"registry_url,optional"`
	CatalogURL           string   `hcl:"catalog_url,optional"`
	PluginLocation       string   `hcl:"plugin_location,optional"`
	CheckCatalog         *bool    `hcl:"check_catalog,optional"`
	TransformationStatus []string `hcl:"transformation_status,optional"`
	TransformationTypes  []string `hcl:"transformation_types,optional"`
	Transformation       string   `hcl:"transformation,optional"`
	MaxFiles             *int     `hcl:"max_files,optional"`
	Workers              *int     `hcl:"workers,optional"`
	QueueSize            *int     `hcl:"queue_size,optional"`
	PollInterval         string   `hcl:"poll_interval,optional"`
	CacheFile            string   `hcl:"cache_file,optional"`
	CacheValidity        string   `hcl:"cache_validity,optional"`
	RequestTimeout       string   `hcl:"request_timeout,optional"`
	MetricsAddr          string   `hcl:"metrics_addr,optional"`
}

func loadHCL(data []byte, filename string, cfg *Config) error {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{Variables: map[string]cty.Value{}}
	var raw hclConfig
	diags = gohcl.DecodeBody(file.Body, evalCtx, &raw)
	if diags.HasErrors() {
		return errors.Errorf("decoding HCL: %s", diags.Error())
	}

	if raw.RegistryURL != "" {
		cfg.RegistryURL = raw.RegistryURL
	}
	if raw.CatalogURL != "" {
		cfg.CatalogURL = raw.CatalogURL
	}
	if raw.PluginLocation != "" {
		cfg.PluginLocation = raw.PluginLocation
	}
	if raw.CheckCatalog != nil {
		cfg.CheckCatalog = *raw.CheckCatalog
	}
	if len(raw.TransformationStatus) > 0 {
		cfg.TransformationStatus = nil
		for _, status := range raw.TransformationStatus {
			cfg.TransformationStatus = append(cfg.TransformationStatus, registry.Status(status))
		}
	}
	if len(raw.TransformationTypes) > 0 {
		cfg.TransformationTypes = raw.TransformationTypes
	}
	if raw.Transformation != "" {
		cfg.Transformation = raw.Transformation
	}
	if raw.MaxFiles != nil {
		cfg.MaxFiles = *raw.MaxFiles
	}
	if raw.Workers != nil {
		cfg.Workers = *raw.Workers
	}
	if raw.QueueSize != nil {
		cfg.QueueSize = *raw.QueueSize
	}
	if raw.CacheFile != "" {
		cfg.CacheFile = raw.CacheFile
	}
	if raw.MetricsAddr != "" {
		cfg.MetricsAddr = raw.MetricsAddr
	}

	for _, field := range []struct {
		raw string
		dst *Duration
	}{
		{raw.PollInterval, &cfg.PollInterval},
		{raw.CacheValidity, &cfg.CacheValidity},
		{raw.RequestTimeout, &cfg.RequestTimeout},
	} {
		if field.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(field.raw)
		if err != nil {
			return errors.Errorf("parsing duration %q: %w", field.raw, err)
		}
		*field.dst = Duration(parsed)
	}

	return nil
}
