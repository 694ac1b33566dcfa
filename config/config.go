// Package config loads the server configuration with koanf.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/warp/planning-engine/planning"
)

// EnvPrefix selects the environment overrides: PLANNING_SERVER__PORT=9090
// sets server.port.
const EnvPrefix = "PLANNING_"

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Planning PlanningConfig `json:"planning"`
	Logging  LoggingConfig  `json:"logging"`
	Reload   ReloadConfig   `json:"reload"`
}

// Load reads path (YAML or JSON) if it is non-empty, then applies
// environment overrides, defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		default:
			return nil, fmt.Errorf("unsupported config format: %s", ext)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, err
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.Planning.SetDefaults()
	c.Logging.SetDefaults()
	c.Reload.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Planning.Validate(); err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Reload.Validate(); err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	return nil
}

// =============================================================================
// SECTIONS
// =============================================================================

type ServerConfig struct {
	Port        string   `json:"port"`
	CORSOrigins []string `json:"cors_origins"`
}

func (c *ServerConfig) SetDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
}

func (c ServerConfig) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port is required")
	}
	return nil
}

type DatabaseConfig struct {
	// Path of the SQLite file; ":memory:" keeps everything in memory.
	Path string `json:"path"`
}

func (c *DatabaseConfig) SetDefaults() {
	if c.Path == "" {
		c.Path = "./data/planning.db"
	}
}

func (c DatabaseConfig) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	return nil
}

// PlanningConfig holds the default working hours used for all-day entries.
type PlanningConfig struct {
	WorkdayStart string `json:"workday_start"`
	WorkdayEnd   string `json:"workday_end"`
}

func (c *PlanningConfig) SetDefaults() {
	if c.WorkdayStart == "" {
		c.WorkdayStart = planning.DefaultWorkingHours.Start.String()
	}
	if c.WorkdayEnd == "" {
		c.WorkdayEnd = planning.DefaultWorkingHours.End.String()
	}
}

func (c PlanningConfig) Validate() error {
	_, err := c.WorkingHours()
	return err
}

// WorkingHours parses the configured workday.
func (c PlanningConfig) WorkingHours() (planning.WorkingHours, error) {
	start, err := planning.ParseClockTime(c.WorkdayStart)
	if err != nil {
		return planning.WorkingHours{}, fmt.Errorf("workday_start: %w", err)
	}
	end, err := planning.ParseClockTime(c.WorkdayEnd)
	if err != nil {
		return planning.WorkingHours{}, fmt.Errorf("workday_end: %w", err)
	}
	wh := planning.WorkingHours{Start: start, End: end}
	if err := wh.Validate(); err != nil {
		return planning.WorkingHours{}, err
	}
	return wh, nil
}

type LoggingConfig struct {
	Level string `json:"level"`
}

func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return fmt.Errorf("unknown level %q", c.Level)
	}
	return nil
}

// ReloadConfig controls the periodic dispatch reload.
type ReloadConfig struct {
	Enabled  *bool  `json:"enabled"`
	Interval string `json:"interval"`
}

func (c *ReloadConfig) SetDefaults() {
	if c.Enabled == nil {
		enabled := true
		c.Enabled = &enabled
	}
	if c.Interval == "" {
		c.Interval = "5m"
	}
}

func (c ReloadConfig) Validate() error {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return fmt.Errorf("interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	return nil
}

// IntervalDuration returns the parsed interval. Call after Validate.
func (c ReloadConfig) IntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.Interval)
	return d
}

// IsEnabled reports whether the reload scheduler should run.
func (c ReloadConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}
