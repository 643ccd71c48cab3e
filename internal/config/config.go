// Package config loads the declarative run configuration: shared defaults,
// per-image crop geometry and filter lists, and the backend sections for
// storage, sources, facts, catalog, metrics, and logging.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/daymark/mandalagen/internal/filter"
	"github.com/daymark/mandalagen/internal/logging"
)

// ErrNoImages is returned when the config declares no images.
var ErrNoImages = errors.New("no images configured")

// Config is the root configuration document.
type Config struct {
	Output  OutputConfig           `yaml:"output"`
	Source  SourceConfig           `yaml:"source"`
	Storage StorageConfig          `yaml:"storage"`
	Facts   FactsConfig            `yaml:"facts"`
	Catalog CatalogConfig          `yaml:"catalog"`
	Audit   AuditConfig            `yaml:"audit"`
	Notify  NotifyConfig           `yaml:"notify"`
	Metrics MetricsConfig          `yaml:"metrics"`
	Logging logging.Config         `yaml:"logging"`
	Lock    LockConfig             `yaml:"lock"`
	Perf    PerfConfig             `yaml:"perf"`
	Images  map[string]ImageConfig `yaml:"images"`
}

// OutputConfig holds the shared render defaults.
type OutputConfig struct {
	DefaultWidth    int  `yaml:"default_width"`    // canvas width when the image declares none
	Quality         int  `yaml:"quality"`          // JPEG quality
	PermutationStep int  `yaml:"permutation_step"` // bucket divisor, default 8
	ClassicMode     bool `yaml:"classic_mode"`     // reproduce the pre-jitter variant
}

// SourceConfig selects where source photographs are loaded from.
type SourceConfig struct {
	Backend   string `yaml:"backend"`    // "local" | "blob"
	LocalDir  string `yaml:"local_dir"`  // directory of source bitmaps
	BucketURL string `yaml:"bucket_url"` // gocloud bucket URL, e.g. "gs://photos"
	Prefix    string `yaml:"prefix"`
}

// StorageConfig selects the artifact store backend.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // "local" | "gcs" | "s3"
	LocalDir   string `yaml:"local_dir"`
	GCSBucket  string `yaml:"gcs_bucket"`
	S3Bucket   string `yaml:"s3_bucket"`
	S3Endpoint string `yaml:"s3_endpoint"`
	S3Region   string `yaml:"s3_region"`
	Prefix     string `yaml:"prefix"`
}

// FactsConfig selects the daily-facts provider.
type FactsConfig struct {
	Provider    string `yaml:"provider"` // "postgres" | "http"
	PostgresDSN string `yaml:"postgres_dsn"`
	Endpoint    string `yaml:"endpoint"`
}

// CatalogConfig configures the optional render catalog.
type CatalogConfig struct {
	PostgresDSN string `yaml:"postgres_dsn"` // empty disables the catalog
}

// AuditConfig configures the run journal.
type AuditConfig struct {
	Enabled bool   `yaml:"enabled"`
	Format  string `yaml:"format"` // "parquet" | "jsonl"
	Dir     string `yaml:"dir"`
}

// NotifyConfig configures the publish-announcement emitter.
type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`  // HTTP receiver, optional
	StateDir string `yaml:"state_dir"` // chain heads and local event copies
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // e.g. ":9090"
}

// LockConfig configures the process-singleton lock.
type LockConfig struct {
	Path string `yaml:"path"` // empty disables locking
}

// PerfConfig bounds render parallelism.
type PerfConfig struct {
	Workers int `yaml:"workers"`
}

// ImageConfig is one image's static entry: source key, crop geometry, and the
// ordered filter list. Geometry invariants are validated by the render layer
// against the decoded source bounds.
type ImageConfig struct {
	Source     string           `yaml:"source"` // key within the image source
	CropLeft   int              `yaml:"crop_left"`
	CropTop    int              `yaml:"crop_top"`
	CropWidth  int              `yaml:"crop_width"`
	CropHeight int              `yaml:"crop_height"`
	Rectangle  int              `yaml:"rectangle"`
	OutWidth   int              `yaml:"out_width"` // 0 = shared default
	Filters    []map[string]any `yaml:"filters"`
}

// FilterSpecs converts the raw YAML filter entries into typed specs. Each
// entry needs a string "type"; every other key must be numeric.
func (ic ImageConfig) FilterSpecs() ([]filter.Spec, error) {
	specs := make([]filter.Spec, 0, len(ic.Filters))
	for i, raw := range ic.Filters {
		kind, ok := raw["type"].(string)
		if !ok || kind == "" {
			return nil, fmt.Errorf("filter %d: missing or non-string type", i)
		}

		params := make(map[string]float64, len(raw)-1)
		for key, val := range raw {
			if key == "type" {
				continue
			}
			f, err := toFloat(val)
			if err != nil {
				return nil, fmt.Errorf("filter %d (%s): parameter %q: %w", i, kind, key, err)
			}
			params[key] = f
		}
		specs = append(specs, filter.Spec{Type: kind, Params: params})
	}
	return specs, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case float64:
		return n, nil
	default:
		return 0, fmt.Errorf("value %v is not numeric", v)
	}
}

// Load reads the YAML config file, applies environment overrides for the
// operational knobs, and fills defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if len(cfg.Images) == 0 {
		return Config{}, ErrNoImages
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Storage.Backend = getenvDefault("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.LocalDir = getenvDefault("STORAGE_LOCAL_DIR", c.Storage.LocalDir)
	c.Facts.PostgresDSN = getenvDefault("FACTS_DSN", c.Facts.PostgresDSN)
	c.Catalog.PostgresDSN = getenvDefault("CATALOG_DSN", c.Catalog.PostgresDSN)
	c.Logging.Level = getenvDefault("LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getenvDefault("LOG_FORMAT", c.Logging.Format)

	if v := os.Getenv("RENDER_WORKERS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			c.Perf.Workers = parsed
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Output.DefaultWidth == 0 {
		c.Output.DefaultWidth = 1024
	}
	if c.Output.Quality == 0 {
		c.Output.Quality = 92
	}
	if c.Output.PermutationStep == 0 {
		c.Output.PermutationStep = 8
	}
	if c.Source.Backend == "" {
		c.Source.Backend = "local"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./out"
	}
	if c.Storage.Prefix == "" {
		c.Storage.Prefix = "mandalas/"
	}
	if c.Facts.Provider == "" {
		c.Facts.Provider = "postgres"
	}
	if c.Audit.Format == "" {
		c.Audit.Format = "jsonl"
	}
	if c.Perf.Workers < 1 {
		c.Perf.Workers = 4
	}
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
