// Package config loads the images-to-pdf TOML configuration and merges it with
// command-line overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"

	"github.com/book-expert/images-to-pdf/internal/bundler"
)

// DefaultFileName is the config file looked up in the working directory.
const DefaultFileName = "images-to-pdf.toml"

// NATS defaults used when publishing is enabled but a field is left empty.
const (
	DefaultStreamName        = "PDF_FILES"
	DefaultSubject           = "pdf.created"
	DefaultObjectStoreBucket = "pdf_files"
	DefaultTenantID          = "local"
)

// Paths holds path settings.
type Paths struct {
	LogsDir string `toml:"logs_dir"`
}

// Settings holds the pipeline settings.
type Settings struct {
	Extensions []string `toml:"extensions"`
	Workers    int      `toml:"workers"`
	Overwrite  bool     `toml:"overwrite"`
}

// Verify holds the converted-image verification settings.
type Verify struct {
	Enabled      bool    `toml:"enabled"`
	FuzzPercent  int     `toml:"fuzz_percent"`
	MaxDiffRatio float64 `toml:"max_diff_ratio"`
}

// NATS holds the settings of the artifact publisher. Publishing is enabled
// when URL is set.
type NATS struct {
	URL               string `toml:"url"`
	StreamName        string `toml:"stream_name"`
	Subject           string `toml:"subject"`
	ObjectStoreBucket string `toml:"object_store_bucket"`
	TenantID          string `toml:"tenant_id"`
}

// Config mirrors images-to-pdf.toml.
type Config struct {
	Paths    Paths    `toml:"paths"`
	NATS     NATS     `toml:"nats"`
	Settings Settings `toml:"settings"`
	Verify   Verify   `toml:"verify"`
}

// Load reads and parses the TOML file at path.
func Load(path string) (Config, error) {
	var cfg Config

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return Config{}, fmt.Errorf("failed to read config file %s: %w", path, readErr)
	}

	decodeErr := toml.Unmarshal(data, &cfg)
	if decodeErr != nil {
		return Config{}, fmt.Errorf("failed to decode config file %s: %w", path, decodeErr)
	}

	return cfg, nil
}

// SafeLoad is Load, except that a missing file yields an empty Config.
func SafeLoad(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}

		return Config{}, err
	}

	return cfg, nil
}

// LoadFromURL fetches the configuration from a remote URL.
func LoadFromURL(url string, log *logger.Logger) (Config, error) {
	var cfg Config

	loadErr := configurator.LoadFromURL(url, &cfg, log)
	if loadErr != nil {
		return Config{}, fmt.Errorf("failed to load configuration from URL %s: %w", url, loadErr)
	}

	return cfg, nil
}

// Overrides are command-line values. Zero values leave the config untouched.
type Overrides struct {
	LogsDir    string
	NATSURL    string
	Extensions []string
	Workers    int
	Overwrite  bool
	Verify     bool
}

// Apply returns cfg with every non-zero override applied.
func (cfg Config) Apply(overrides Overrides) Config {
	if overrides.LogsDir != "" {
		cfg.Paths.LogsDir = overrides.LogsDir
	}

	if overrides.NATSURL != "" {
		cfg.NATS.URL = overrides.NATSURL
	}

	if len(overrides.Extensions) > 0 {
		cfg.Settings.Extensions = overrides.Extensions
	}

	if overrides.Workers > 0 {
		cfg.Settings.Workers = overrides.Workers
	}

	if overrides.Overwrite {
		cfg.Settings.Overwrite = true
	}

	if overrides.Verify {
		cfg.Verify.Enabled = true
	}

	return cfg
}

// BundlerOptions converts the configuration into processor options. Unset
// values are left at zero so the processor applies its own defaults.
func (cfg Config) BundlerOptions() bundler.Options {
	return bundler.Options{
		ProgressBarOutput: nil,
		AllowedExtensions: cfg.Settings.Extensions,
		Verify: bundler.VerifyOptions{
			Enabled:      cfg.Verify.Enabled,
			FuzzPercent:  cfg.Verify.FuzzPercent,
			MaxDiffRatio: cfg.Verify.MaxDiffRatio,
		},
		Workers:         cfg.Settings.Workers,
		Overwrite:       cfg.Settings.Overwrite,
		DisableProgress: false,
	}
}

// LogsDir resolves the log directory. Relative paths are taken from baseDir.
func (cfg Config) LogsDir(baseDir string) string {
	logsDir := cfg.Paths.LogsDir
	if logsDir == "" {
		return filepath.Join(baseDir, "logs", "images_to_pdf")
	}

	if !filepath.IsAbs(logsDir) {
		return filepath.Join(baseDir, logsDir)
	}

	return logsDir
}

// PublishEnabled reports whether created PDFs are sent to NATS.
func (cfg Config) PublishEnabled() bool {
	return cfg.NATS.URL != ""
}

// WithDefaults fills empty NATS names with their defaults.
func (n NATS) WithDefaults() NATS {
	n.StreamName = defaultString(n.StreamName, DefaultStreamName)
	n.Subject = defaultString(n.Subject, DefaultSubject)
	n.ObjectStoreBucket = defaultString(n.ObjectStoreBucket, DefaultObjectStoreBucket)
	n.TenantID = defaultString(n.TenantID, DefaultTenantID)

	return n
}

func defaultString(v, def string) string {
	if v == "" {
		return def
	}

	return v
}
