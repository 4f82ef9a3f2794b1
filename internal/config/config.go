// Package config loads and validates the engine configuration.
//
// Configuration is YAML on disk, validated against an embedded CUE
// schema before anything touches it. Geographic bounds and tolerance
// thresholds live here, not in code, so the engine deploys in other
// geographic or business contexts without a code change.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/reckon/internal/parity"
	"github.com/roach88/reckon/internal/slo"
	"github.com/roach88/reckon/internal/zerotrust"
)

//go:embed schema.cue
var schemaCUE string

// Config is the engine configuration. Zero values fall back to the
// documented defaults; see Default.
type Config struct {
	Parity struct {
		// Tolerance is the relative deviation the parity check allows.
		// Default 0.005 (0.5%).
		Tolerance float64 `yaml:"tolerance"`
	} `yaml:"parity"`

	// Geo is the bounding box for the coordinate-bounds rule. Default
	// is the NCR box.
	Geo zerotrust.GeoBounds `yaml:"geo"`

	// RequiredFields maps schema version to the payload fields that
	// version requires.
	RequiredFields map[string][]string `yaml:"required_fields"`

	// SLOs are the objectives evaluated each run.
	SLOs []slo.Definition `yaml:"slos"`

	// Workers bounds the shard worker pool. Default 4.
	Workers int `yaml:"workers"`

	Notify struct {
		// Brokers lists Kafka bootstrap addresses. Empty means alerts
		// are logged instead of published.
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"notify"`

	Serve struct {
		// Interval between scheduled runs, Go duration syntax.
		Interval string `yaml:"interval"`
		// Listen is the metrics endpoint address.
		Listen string `yaml:"listen"`
	} `yaml:"serve"`

	Inputs struct {
		Raw             string `yaml:"raw"`
		Authoritative   string `yaml:"authoritative"`
		Aggregates      string `yaml:"aggregates"`
		StoreDimensions string `yaml:"store_dimensions"`
	} `yaml:"inputs"`
}

// Default returns the configuration the engine runs with when no file
// overrides it: 0.5% parity tolerance, NCR bounds, the default required
// field sets and SLO definitions.
func Default() *Config {
	cfg := &Config{}
	cfg.Parity.Tolerance = parity.DefaultTolerance
	cfg.Geo = zerotrust.DefaultNCRBounds()
	cfg.RequiredFields = zerotrust.DefaultRequiredFields()
	cfg.SLOs = slo.DefaultDefinitions()
	cfg.Workers = 4
	cfg.Notify.Topic = "reckon-alerts"
	cfg.Serve.Interval = "15m"
	cfg.Serve.Listen = ":9090"
	return cfg
}

// Load reads, schema-validates and decodes a YAML configuration file,
// then fills unset values with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	if err := validateAgainstSchema(data); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.check(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateAgainstSchema unifies the decoded document with the embedded
// CUE schema. CUE catches shape problems (unknown metrics, bad
// comparators, out-of-range tolerances) with positions attached.
func validateAgainstSchema(data []byte) error {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	if doc == nil {
		return nil // empty file = all defaults
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	value := schema.LookupPath(cue.ParsePath("#Config")).Unify(ctx.Encode(doc))
	if err := value.Validate(); err != nil {
		return fmt.Errorf("config does not conform to schema: %s", cueerrors.Details(err, nil))
	}
	return nil
}

// check enforces constraints CUE cannot express across fields.
func (c *Config) check() error {
	if c.Geo.MinLat >= c.Geo.MaxLat {
		return fmt.Errorf("geo bounds: min_lat %.4f must be below max_lat %.4f", c.Geo.MinLat, c.Geo.MaxLat)
	}
	if c.Geo.MinLon >= c.Geo.MaxLon {
		return fmt.Errorf("geo bounds: min_lon %.4f must be below max_lon %.4f", c.Geo.MinLon, c.Geo.MaxLon)
	}
	if _, err := c.RunInterval(); err != nil {
		return err
	}
	return nil
}

// RunInterval parses the serve-mode interval.
func (c *Config) RunInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Serve.Interval)
	if err != nil {
		return 0, fmt.Errorf("serve interval %q: %w", c.Serve.Interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("serve interval %q: must be positive", c.Serve.Interval)
	}
	return d, nil
}
