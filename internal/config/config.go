// Package config loads taxo settings from taxo.yaml and TAXO_*
// environment variables, with environment taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultDBPath           = "taxo.db"
	DefaultMappingLevel     = 1
	DefaultMaxDepth         = 12
	DefaultLoadTimeout      = 10 * time.Minute
	DefaultLockTimeout      = 30 * time.Second
	DefaultRowFailurePolicy = "continue"
)

// Config is the resolved runtime configuration.
type Config struct {
	// DBPath is the SQLite database path; ":memory:" for ephemeral runs.
	DBPath string `mapstructure:"db"`
	// MappingLevel is the hierarchy level customer profession nodes live
	// at, and the level the mapping engine evaluates.
	MappingLevel int `mapstructure:"mapping-level"`
	// MaxDepth bounds hierarchy levels, placeholder chains included.
	MaxDepth int `mapstructure:"max-depth"`
	// LoadTimeout bounds one ingestion invocation end to end.
	LoadTimeout time.Duration `mapstructure:"load-timeout"`
	// LockTimeout bounds waiting for the database lockfile.
	LockTimeout time.Duration `mapstructure:"lock-timeout"`
	// RowFailurePolicy is "continue" (mark row failed, keep going) or
	// "abort" (fail the load on first row error).
	RowFailurePolicy string `mapstructure:"row-failure-policy"`
}

// Load reads taxo.yaml from the working directory or ~/.config/taxo,
// overlays TAXO_* environment variables, and validates the result. A
// missing config file is fine; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("taxo")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/taxo")

	v.SetEnvPrefix("TAXO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("db", DefaultDBPath)
	v.SetDefault("mapping-level", DefaultMappingLevel)
	v.SetDefault("max-depth", DefaultMaxDepth)
	v.SetDefault("load-timeout", DefaultLoadTimeout)
	v.SetDefault("lock-timeout", DefaultLockTimeout)
	v.SetDefault("row-failure-policy", DefaultRowFailurePolicy)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fileConfig mirrors Config with taxo.yaml's key spelling. Durations
// are written in time.Duration string form so Load parses them back.
type fileConfig struct {
	DB               string `yaml:"db"`
	MappingLevel     int    `yaml:"mapping-level"`
	MaxDepth         int    `yaml:"max-depth"`
	LoadTimeout      string `yaml:"load-timeout"`
	LockTimeout      string `yaml:"lock-timeout"`
	RowFailurePolicy string `yaml:"row-failure-policy"`
}

// YAML renders the configuration in taxo.yaml form.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(fileConfig{
		DB:               c.DBPath,
		MappingLevel:     c.MappingLevel,
		MaxDepth:         c.MaxDepth,
		LoadTimeout:      c.LoadTimeout.String(),
		LockTimeout:      c.LockTimeout.String(),
		RowFailurePolicy: c.RowFailurePolicy,
	})
}

// WriteFile writes the configuration as a config file at path. It
// refuses to overwrite an existing file.
func (c *Config) WriteFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config: %s already exists", path)
	}
	out, err := c.YAML()
	if err != nil {
		return fmt.Errorf("render config: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("config: db path is empty")
	}
	if c.MappingLevel < 1 {
		return fmt.Errorf("config: mapping-level %d must be >= 1", c.MappingLevel)
	}
	if c.MaxDepth < c.MappingLevel {
		return fmt.Errorf("config: max-depth %d below mapping-level %d", c.MaxDepth, c.MappingLevel)
	}
	switch c.RowFailurePolicy {
	case "continue", "abort":
	default:
		return fmt.Errorf("config: unknown row-failure-policy %q", c.RowFailurePolicy)
	}
	return nil
}
