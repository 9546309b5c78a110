// Package config loads the srcaudit configuration. The config file is
// optional; a missing file yields the defaults. It lives next to the
// database file so every run against the same store sees the same policy.
package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// FileName is the well-known configuration file name.
const FileName = ".srcaudit.yaml"

// Config represents the complete srcaudit configuration
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Scan    ScanConfig    `yaml:"scan" mapstructure:"scan"`
	Patch   PatchConfig   `yaml:"patch" mapstructure:"patch"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// StoreConfig contains database and transaction-retry configuration
type StoreConfig struct {
	// BusyTimeoutMs is how long a statement blocks on the file lock
	// before surfacing SQLITE_BUSY to the retry loop.
	BusyTimeoutMs int `yaml:"busyTimeoutMs" mapstructure:"busyTimeoutMs"`
	// MaxAttempts bounds whole-transaction retries under contention.
	MaxAttempts int `yaml:"maxAttempts" mapstructure:"maxAttempts"`
	// BackoffBaseMs is the first retry delay; it doubles per attempt.
	BackoffBaseMs int `yaml:"backoffBaseMs" mapstructure:"backoffBaseMs"`
}

// ScanConfig contains scanner configuration
type ScanConfig struct {
	// Exclude lists path substrings skipped during scanning.
	Exclude []string `yaml:"exclude" mapstructure:"exclude"`
}

// PatchConfig contains rewrite rules for the patch tool
type PatchConfig struct {
	// Rules maps matched call names to their replacements.
	Rules map[string]string `yaml:"rules" mapstructure:"rules"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `yaml:"format" mapstructure:"format"`
	Level  string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			BusyTimeoutMs: 5000,
			MaxAttempts:   6,
			BackoffBaseMs: 50,
		},
		Scan: ScanConfig{
			Exclude: []string{},
		},
		Patch: PatchConfig{
			Rules: map[string]string{
				"sprintf":  "formatstr",
				"vsprintf": "vformatstr",
			},
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// Load reads the configuration from dir/.srcaudit.yaml. A missing file is
// not an error; defaults apply.
func Load(dir string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("store.busyTimeoutMs", def.Store.BusyTimeoutMs)
	v.SetDefault("store.maxAttempts", def.Store.MaxAttempts)
	v.SetDefault("store.backoffBaseMs", def.Store.BackoffBaseMs)
	v.SetDefault("scan.exclude", def.Scan.Exclude)
	v.SetDefault("patch.rules", def.Patch.Rules)
	v.SetDefault("logging.format", def.Logging.Format)
	v.SetDefault("logging.level", def.Logging.Level)

	v.SetConfigFile(filepath.Join(dir, FileName))
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return def, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return def, nil
		}
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the configuration to dir/.srcaudit.yaml
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, FileName), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Store.MaxAttempts < 1 {
		return &ConfigError{Field: "store.maxAttempts", Message: "must be at least 1"}
	}
	if c.Store.BackoffBaseMs < 1 {
		return &ConfigError{Field: "store.backoffBaseMs", Message: "must be at least 1"}
	}
	if c.Store.BusyTimeoutMs < 0 {
		return &ConfigError{Field: "store.busyTimeoutMs", Message: "must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}
