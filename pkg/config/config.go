// Package config handles configuration for adaptive-selector.
package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/adaptive-selector/pkg/cache"
)

// Config represents the engine configuration (config.yaml).
type Config struct {
	Cache     cache.Config    `yaml:"cache"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Healing   HealingConfig   `yaml:"healing"`
	Pattern   PatternConfig   `yaml:"pattern"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DiscoveryConfig tunes standalone discovery searches.
type DiscoveryConfig struct {
	BudgetSeconds float64  `yaml:"budget_seconds"` // Total search allowance
	MaxDepth      int      `yaml:"max_depth"`      // Tree walk bound, <= 0 unbounded
	Excluded      []string `yaml:"excluded"`       // Strategy names skipped on every search
}

// HealingConfig tunes healing requests.
type HealingConfig struct {
	BudgetSeconds float64  `yaml:"budget_seconds"` // Per-request allowance
	Preferred     []string `yaml:"preferred"`      // Strategy names tried first, in order
}

// PatternConfig tunes pattern analysis output.
type PatternConfig struct {
	PredictSteps int `yaml:"predict_steps"` // Forecast horizon, clamped internally
}

// LoggingConfig selects the log destination and threshold.
type LoggingConfig struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"` // debug, info, warn, error
}

// Normalize fills zero fields with defaults.
func (c *Config) Normalize() {
	if c.Cache.Path == "" {
		c.Cache.Path = filepath.Join(GetCacheDir(), "selector_cache.json")
	}
	if c.Cache.BackupDir == "" {
		c.Cache.BackupDir = filepath.Join(GetCacheDir(), "backups")
	}
	c.Cache.Normalize()
	if c.Discovery.BudgetSeconds <= 0 {
		c.Discovery.BudgetSeconds = 15
	}
	if c.Healing.BudgetSeconds <= 0 {
		c.Healing.BudgetSeconds = 30
	}
	if c.Pattern.PredictSteps <= 0 {
		c.Pattern.PredictSteps = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Normalize()
	return &cfg, nil
}

// LoadFromDir looks for config.yaml or config.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	// Try config.yaml first
	configPath := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// Try config.yml
	configPath = filepath.Join(dir, "config.yml")
	if _, err := os.Stat(configPath); err == nil {
		return Load(configPath)
	}

	// No config file found, return defaults
	cfg := &Config{}
	cfg.Normalize()
	return cfg, nil
}
