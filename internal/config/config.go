// Package config loads optional YAML-backed client tuning knobs. Most
// callers never need this package — cosmopolite.New(ctx, baseURL, opts...)
// is the zero-config path — but integrators who keep all service tuning in
// one config file can load Cosmopolite's knobs the same way they load
// everything else, via cosmopolite.NewFromFile, which wraps LoadOptions.
//
// This package deliberately knows nothing about the cosmopolite package
// itself (Settings is plain data) so that the root package can import it
// without an import cycle.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

func durationMS(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }
func durationS(s int) time.Duration   { return time.Duration(s) * time.Second }

// searchPathsFunc is overridden in tests to avoid picking up real config
// files from the developer's or CI machine.
var searchPathsFunc = DefaultSearchPaths

// DefaultSearchPaths returns the config file search order: an explicit path
// always wins over these. Then: ./cosmopolite.yaml,
// ~/.config/cosmopolite/config.yaml, /etc/cosmopolite/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"cosmopolite.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "cosmopolite", "config.yaml"))
	}

	paths = append(paths, "/etc/cosmopolite/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must
// exist. Otherwise it searches searchPathsFunc() and returns the first path
// that exists.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range searchPathsFunc() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPathsFunc())
}

// fileConfig mirrors the on-disk YAML shape. Field names match the keys
// named in the client tuning surface: base_url, cycle_base_ms,
// stagger_factor, connect_timeout_s, debug.
type fileConfig struct {
	BaseURL         string `yaml:"base_url"`
	CycleBaseMS     int    `yaml:"cycle_base_ms"`
	StaggerFactor   int    `yaml:"stagger_factor"`
	ConnectTimeoutS int    `yaml:"connect_timeout_s"`
	Debug           bool   `yaml:"debug"`
}

// applyDefaults fills in zero-value fields with the same constants
// cosmopolite.New uses internally, so a partially-specified file behaves
// identically to passing no Option for the unset knobs.
func (c *fileConfig) applyDefaults() {
	if c.CycleBaseMS == 0 {
		c.CycleBaseMS = 10000
	}
	if c.StaggerFactor == 0 {
		c.StaggerFactor = 10
	}
	if c.ConnectTimeoutS == 0 {
		c.ConnectTimeoutS = 60
	}
}

// validate checks that the configuration is internally consistent. It runs
// after applyDefaults, so it can assume defaults are populated.
func (c *fileConfig) validate() error {
	if c.StaggerFactor <= 0 {
		return fmt.Errorf("stagger_factor %d must be positive", c.StaggerFactor)
	}
	if c.CycleBaseMS <= 0 {
		return fmt.Errorf("cycle_base_ms %d must be positive", c.CycleBaseMS)
	}
	if c.ConnectTimeoutS <= 0 {
		return fmt.Errorf("connect_timeout_s %d must be positive", c.ConnectTimeoutS)
	}
	return nil
}

// Settings is the plain-data result of loading a config file: the client
// tuning knobs, with defaults applied and validated, but with no dependency
// on how a caller turns them into cosmopolite.Option values.
type Settings struct {
	BaseURL        string
	CycleBase      time.Duration
	StaggerFactor  int
	ConnectTimeout time.Duration
	Debug          bool
}

// LoadOptions reads a YAML file of client tuning knobs, expands environment
// variables, applies defaults, and validates the result.
func LoadOptions(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	// Expand environment variables (e.g. ${COSMOPOLITE_BASE_URL}), a
	// convenience for container deployments.
	expanded := os.ExpandEnv(string(data))

	fc := &fileConfig{}
	if err := yaml.Unmarshal([]byte(expanded), fc); err != nil {
		return Settings{}, err
	}

	fc.applyDefaults()
	if err := fc.validate(); err != nil {
		return Settings{}, fmt.Errorf("config validation: %w", err)
	}

	return Settings{
		BaseURL:        fc.BaseURL,
		CycleBase:      durationMS(fc.CycleBaseMS),
		StaggerFactor:  fc.StaggerFactor,
		ConnectTimeout: durationS(fc.ConnectTimeoutS),
		Debug:          fc.Debug,
	}, nil
}
