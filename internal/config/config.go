// Package config loads the cellscope YAML configuration file and applies
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultFile is the config file looked up when none is given.
	DefaultFile = "cellscope.yaml"

	// EnvExternalURL overrides External.URL.
	EnvExternalURL = "CELLSCOPE_CONTAINERIZER_URL"

	// EnvExternalTimeout overrides External.Timeout. Parsed with time.ParseDuration.
	EnvExternalTimeout = "CELLSCOPE_EXTERNAL_TIMEOUT"

	// DefaultExternalTimeout bounds a single external analyzer call.
	DefaultExternalTimeout = 10 * time.Second

	// MaxFileSize caps the config file read.
	MaxFileSize = 1 << 20
)

// DefaultStatisticalKernels lists the kernel families routed to the
// external analyzer when the file does not say otherwise.
var DefaultStatisticalKernels = []string{"r"}

// Config is the parsed cellscope.yaml.
type Config struct {
	External           External          `yaml:"external"`
	StatisticalKernels []string          `yaml:"statistical_kernels"`
	Aliases            map[string]string `yaml:"aliases"`
}

// External configures the HTTP analyzer for statistical kernels.
type External struct {
	URL string `yaml:"url"`

	// Timeout is a duration string such as "10s".
	Timeout string `yaml:"timeout"`

	// RateLimit caps calls per second. Zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`

	timeout time.Duration
}

// TimeoutDuration returns the parsed timeout, or DefaultExternalTimeout.
func (e External) TimeoutDuration() time.Duration {
	if e.timeout <= 0 {
		return DefaultExternalTimeout
	}
	return e.timeout
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		External:           External{timeout: DefaultExternalTimeout},
		StatisticalKernels: append([]string(nil), DefaultStatisticalKernels...),
		Aliases:            map[string]string{},
	}
}

// Load reads path, falling back to defaults when the file does not exist,
// then applies environment overrides. An empty path loads DefaultFile.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML bytes and fills defaults. Environment overrides are
// not applied.
func Parse(data []byte) (*Config, error) {
	if len(data) > MaxFileSize {
		return nil, fmt.Errorf("config exceeds maximum size (%d > %d)", len(data), MaxFileSize)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if cfg.External.Timeout != "" {
		d, err := time.ParseDuration(cfg.External.Timeout)
		if err != nil {
			return nil, fmt.Errorf("external.timeout: %w", err)
		}
		cfg.External.timeout = d
	}
	if cfg.External.RateLimit < 0 {
		return nil, fmt.Errorf("external.rate_limit: must be non-negative, got %v", cfg.External.RateLimit)
	}
	if len(cfg.StatisticalKernels) == 0 {
		cfg.StatisticalKernels = append([]string(nil), DefaultStatisticalKernels...)
	}
	for i, k := range cfg.StatisticalKernels {
		cfg.StatisticalKernels[i] = strings.ToLower(strings.TrimSpace(k))
	}
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	cfg.External.URL = strings.TrimRight(strings.TrimSpace(cfg.External.URL), "/")
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv(EnvExternalURL); ok && strings.TrimSpace(v) != "" {
		c.External.URL = strings.TrimRight(strings.TrimSpace(v), "/")
	}
	if v := strings.TrimSpace(os.Getenv(EnvExternalTimeout)); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvExternalTimeout, err)
		}
		c.External.Timeout = v
		c.External.timeout = d
	}
	return nil
}
