// Package config handles configuration loading from files, defaults, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the application configuration.
type Config struct {
	Calendar CalendarConfig `toml:"calendar"`
	LLM      LLMConfig      `toml:"llm"`
	Schedule ScheduleConfig `toml:"schedule"`
	Storage  StorageConfig  `toml:"storage"`
}

// CalendarConfig holds calendar backend settings.
type CalendarConfig struct {
	BaseURL         string `toml:"base_url"`         // calendar bridge HTTP endpoint
	HolidayCalendar string `toml:"holiday_calendar"` // calendar title treated as holidays
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Provider string `toml:"provider"` // "ollama", "lmstudio", "copilot", "openai"
	Model    string `toml:"model"`
	BaseURL  string `toml:"base_url"` // e.g., "http://localhost:11434"
}

// ScheduleConfig holds placement settings.
type ScheduleConfig struct {
	WorkStartHour          int    `toml:"work_start_hour"` // 0-23
	WorkEndHour            int    `toml:"work_end_hour"`   // 1-24, exclusive
	MinGapMinutes          int    `toml:"min_gap_minutes"`
	MaxTasksPerDay         int    `toml:"max_tasks_per_day"` // 0 means unlimited
	DefaultDurationMinutes int    `toml:"default_duration_minutes"`
	Timezone               string `toml:"timezone"` // IANA name
}

// StorageConfig holds database settings.
type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Calendar: CalendarConfig{
			BaseURL:         "http://127.0.0.1:8765",
			HolidayCalendar: "Holidays",
		},
		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.1",
			BaseURL:  "http://localhost:11434",
		},
		Schedule: ScheduleConfig{
			WorkStartHour:          6,
			WorkEndHour:            23,
			MinGapMinutes:          0,
			MaxTasksPerDay:         0,
			DefaultDurationMinutes: 30,
			Timezone:               "America/New_York",
		},
		Storage: StorageConfig{
			DBPath: defaultDBPath(),
		},
	}
}

// defaultDBPath returns the default database path.
func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "quando.db"
	}
	return filepath.Join(home, ".local", "share", "quando", "quando.db")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.toml"
	}
	return filepath.Join(home, ".config", "quando", "config.toml")
}

// Load loads configuration from the default path, merging with defaults and env vars.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigPath())
}

// LoadFrom loads configuration from the specified path.
// It starts with defaults, overlays file config if it exists, then applies env overrides.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	cfg.Storage.DBPath = expandPath(cfg.Storage.DBPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads config from a file if it exists.
func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // File doesn't exist, use defaults
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over file config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CALBRIDGE_BASE"); v != "" {
		cfg.Calendar.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_BASE"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("TIMEZONE"); v != "" {
		cfg.Schedule.Timezone = v
	}
	if v := os.Getenv("QUANDO_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Calendar.BaseURL == "" {
		return errors.New("calendar base_url must be set")
	}
	if c.Schedule.WorkStartHour < 0 || c.Schedule.WorkStartHour > 23 {
		return fmt.Errorf("work_start_hour must be 0-23, got %d", c.Schedule.WorkStartHour)
	}
	if c.Schedule.WorkEndHour < 1 || c.Schedule.WorkEndHour > 24 {
		return fmt.Errorf("work_end_hour must be 1-24, got %d", c.Schedule.WorkEndHour)
	}
	if c.Schedule.WorkStartHour >= c.Schedule.WorkEndHour {
		return errors.New("work_start_hour must be before work_end_hour")
	}
	if c.Schedule.MinGapMinutes < 0 {
		return errors.New("min_gap_minutes must not be negative")
	}
	if c.Schedule.MaxTasksPerDay < 0 {
		return errors.New("max_tasks_per_day must not be negative")
	}
	if c.Schedule.DefaultDurationMinutes <= 0 {
		return errors.New("default_duration_minutes must be positive")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Schedule.Timezone, err)
	}
	if c.Storage.DBPath == "" {
		return errors.New("db_path must be set")
	}
	return nil
}

// Location resolves the configured timezone. Validate must have passed.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Schedule.Timezone)
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigPath())
}

// SaveTo writes the configuration to the specified path.
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
