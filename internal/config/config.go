package config

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Config holds the saz-insights configuration.
type Config struct {
	Menu     MenuConfig     `yaml:"menu"`
	Progress ProgressConfig `yaml:"progress"`
	Report   ReportConfig   `yaml:"report"`
	Debug    bool           `yaml:"debug"`
}

// MenuConfig configures menu label inference.
type MenuConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Threshold      float64 `yaml:"threshold"`
	SaveCandidates bool    `yaml:"save_candidates"`
}

// ProgressConfig configures progress output.
type ProgressConfig struct {
	Enabled bool `yaml:"enabled"`
	Every   int  `yaml:"every"`
}

// ReportConfig configures the generated report.
type ReportConfig struct {
	MaxValues     int    `yaml:"max_values"`
	BaseURL       string `yaml:"base_url"`
	IncludeTime   bool   `yaml:"include_time"`
	SeparateByURL bool   `yaml:"separate_by_url"`
	Timezone      string `yaml:"timezone"`
	BannedFile    string `yaml:"banned_file"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Menu: MenuConfig{
			Enabled:   true,
			Threshold: 58.0,
		},
		Progress: ProgressConfig{
			Enabled: true,
			Every:   200,
		},
		Report: ReportConfig{
			MaxValues: 20,
			Timezone:  "Asia/Seoul",
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.Menu.Threshold < 0 || c.Menu.Threshold > 100 {
		return fmt.Errorf("menu.threshold must be within [0, 100], got %v", c.Menu.Threshold)
	}
	if c.Progress.Every <= 0 {
		return fmt.Errorf("progress.every must be > 0")
	}
	if c.Report.MaxValues <= 0 {
		return fmt.Errorf("report.max_values must be > 0")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}
	return nil
}

// Location returns the zone report timestamps are rendered in.
func (c *Config) Location() (*time.Location, error) {
	if c.Report.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Report.Timezone)
}
