// Package config loads the optional YAML configuration of the planner CLI.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/ghodss/yaml"

	"hubspoke-planner/internal/planner"
)

const (
	RealizerNone   = "none"
	RealizerScript = "script"
	RealizerNetns  = "netns"
)

// Config mirrors the YAML file. Field tags are JSON because the YAML is
// converted to JSON before decoding.
type Config struct {
	WANBase     string `json:"wanBase,omitempty"`
	LANBase     string `json:"lanBase,omitempty"`
	MaxBranches int    `json:"maxBranches,omitempty"`
	Realizer    string `json:"realizer,omitempty"`
	LogLevel    string `json:"logLevel,omitempty"`
}

func Default() Config {
	pc := planner.DefaultConfig()
	return Config{
		WANBase:     pc.WANBase,
		LANBase:     pc.LANBase,
		MaxBranches: pc.MaxBranches,
		Realizer:    RealizerScript,
		LogLevel:    "INFO",
	}
}

// Load reads path and fills the fields it leaves unset with defaults. An
// empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.WANBase == "" {
		c.WANBase = def.WANBase
	}
	if c.LANBase == "" {
		c.LANBase = def.LANBase
	}
	if c.MaxBranches == 0 {
		c.MaxBranches = def.MaxBranches
	}
	if c.Realizer == "" {
		c.Realizer = def.Realizer
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate checks the fields the planner does not check itself.
func (c Config) Validate() error {
	switch c.Realizer {
	case RealizerNone, RealizerScript, RealizerNetns:
	default:
		return fmt.Errorf("unknown realizer %q", c.Realizer)
	}
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

func (c Config) Planner() planner.Config {
	return planner.Config{
		WANBase:     c.WANBase,
		LANBase:     c.LANBase,
		MaxBranches: c.MaxBranches,
	}
}
