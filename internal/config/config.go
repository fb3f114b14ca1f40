package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"vacances/internal/model"
)

// EnvPrefix prefixes environment overrides, e.g. VACANCES_LISTEN or
// VACANCES_CAPTURE_ENABLED (underscores map to nesting).
const EnvPrefix = "VACANCES_"

// DefaultBaseURL is the records endpoint of the school calendar dataset.
const DefaultBaseURL = "https://data.education.gouv.fr/api/explore/v2.1/catalog/datasets/fr-en-calendrier-scolaire/records"

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
// Empty username or password disables authentication.
type BasicAuthConfig struct {
	Username string `yaml:"username" koanf:"username"`
	Password string `yaml:"password" koanf:"password"`
}

// CaptureConfig controls the headless Chromium screenshot taken after each
// refresh.
type CaptureConfig struct {
	Enabled    bool   `yaml:"enabled" koanf:"enabled"`
	OutputPath string `yaml:"output_path" koanf:"output_path"`
	Width      int    `yaml:"width" koanf:"width"`
	Height     int    `yaml:"height" koanf:"height"`
	// Timeout is a Go duration string ("30s").
	Timeout string `yaml:"timeout" koanf:"timeout"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the countdown page and API.
	Listen string `yaml:"listen" koanf:"listen"`

	// Timezone is the IANA timezone dates are interpreted and shown in.
	Timezone string `yaml:"timezone" koanf:"timezone"`

	// RefreshCron is a cron-style schedule string for catalog refreshes.
	RefreshCron string `yaml:"refresh" koanf:"refresh"`

	// TickInterval is how often the progress is recomputed ("1s").
	TickInterval string `yaml:"tick_interval" koanf:"tick_interval"`

	// APIBaseURL is the dataset records endpoint.
	APIBaseURL string `yaml:"api_base_url" koanf:"api_base_url"`

	// ResultLimit bounds the number of catalog records requested.
	ResultLimit int `yaml:"result_limit" koanf:"result_limit"`

	// SettingsPath is the key-value file holding the user settings blob.
	SettingsPath string `yaml:"settings_path" koanf:"settings_path"`

	// LabelStyle is "compact" ("4j") or "long" ("4 jours").
	LabelStyle string `yaml:"label_style" koanf:"label_style"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" koanf:"log_level"`

	BasicAuth BasicAuthConfig `yaml:"basic_auth" koanf:"basic_auth"`

	Capture CaptureConfig `yaml:"capture" koanf:"capture"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "Europe/Paris",
		RefreshCron:  "0 */6 * * *",
		TickInterval: "1s",
		APIBaseURL:   DefaultBaseURL,
		ResultLimit:  20,
		SettingsPath: "/var/lib/vacances/settings.json",
		LabelStyle:   string(model.LabelCompact),
		LogLevel:     "info",
		Capture: CaptureConfig{
			Enabled:    false,
			OutputPath: "/var/lib/vacances/preview.png",
			Width:      1280,
			Height:     720,
			Timeout:    "30s",
		},
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.RefreshCron == "" {
		c.RefreshCron = d.RefreshCron
	}
	if dur, err := time.ParseDuration(c.TickInterval); err != nil || dur <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = d.APIBaseURL
	}
	if c.ResultLimit <= 0 {
		c.ResultLimit = d.ResultLimit
	}
	if c.SettingsPath == "" {
		c.SettingsPath = d.SettingsPath
	}
	switch model.LabelStyle(c.LabelStyle) {
	case model.LabelCompact, model.LabelLong:
	default:
		c.LabelStyle = d.LabelStyle
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Capture.OutputPath == "" {
		c.Capture.OutputPath = d.Capture.OutputPath
	}
	if c.Capture.Width <= 0 {
		c.Capture.Width = d.Capture.Width
	}
	if c.Capture.Height <= 0 {
		c.Capture.Height = d.Capture.Height
	}
	if dur, err := time.ParseDuration(c.Capture.Timeout); err != nil || dur <= 0 {
		c.Capture.Timeout = d.Capture.Timeout
	}
}

// Tick returns the parsed tick interval.
func (c *Config) Tick() time.Duration {
	d, err := time.ParseDuration(c.TickInterval)
	if err != nil || d <= 0 {
		return time.Second
	}
	return d
}

// CaptureTimeout returns the parsed capture timeout.
func (c *Config) CaptureTimeout() time.Duration {
	d, err := time.ParseDuration(c.Capture.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local, err
	}
	return loc, nil
}

// Load builds the configuration from, in increasing precedence: defaults,
// the YAML file at path and VACANCES_* environment variables.
//
// If the file does not exist it is created with the defaults (0600) first,
// so operators get a template to edit.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	if _, err := os.Stat(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		if err := Save(path, DefaultConfig()); err != nil {
			// Keep going with defaults and env; the caller decides.
			cfg, lerr := load("", os.Environ)
			if lerr != nil {
				return nil, lerr
			}
			return cfg, err
		}
	}

	return load(path, os.Environ)
}

func load(path string, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, err
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
		EnvironFunc:   environ,
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// envKey maps VACANCES_CAPTURE_OUTPUT_PATH to capture.output_path: the
// first segment names a section when one exists, the rest is the field.
func envKey(k, v string) (string, any) {
	k = strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	for _, section := range []string{"basic_auth", "capture"} {
		if strings.HasPrefix(k, section+"_") {
			return section + "." + strings.TrimPrefix(k, section+"_"), v
		}
	}
	return k, v
}

// Save writes cfg to path as YAML.
//
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yamlv3.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".vacances-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
