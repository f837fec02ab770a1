// Package config loads the outreach engine configuration from a YAML file
// with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/techaura/outreach-engine/internal/domain"
)

// Config holds all configuration for the engine and its host.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	FollowUp FollowUpConfig `yaml:"followup"`
	Gates    GateConfig     `yaml:"gates"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the ops API listener settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string `yaml:"url"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds Redis connection settings for the session store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GatewayConfig holds delivery gateway settings.
type GatewayConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// DelayWindow is a per-stage [min,max] minute window for follow-up delays.
// A zero window marks the stage as not requiring follow-up.
type DelayWindow struct {
	MinMinutes int `yaml:"min_minutes"`
	MaxMinutes int `yaml:"max_minutes"`
}

// Zero reports whether the window disables follow-ups for the stage.
func (w DelayWindow) Zero() bool { return w.MinMinutes == 0 && w.MaxMinutes == 0 }

// FollowUpConfig holds scheduler settings.
type FollowUpConfig struct {
	// DelayWindows maps stage name -> delay window. Stages absent from the
	// map fall back to the default window; terminal stages get zero windows.
	DelayWindows map[string]DelayWindow `yaml:"delay_windows"`
	DefaultDelay DelayWindow            `yaml:"default_delay"`
}

// Window returns the delay window configured for a stage.
func (c FollowUpConfig) Window(stage domain.Stage) DelayWindow {
	if stage.IsTerminal() {
		return DelayWindow{}
	}
	if w, ok := c.DelayWindows[string(stage)]; ok {
		return w
	}
	return c.DefaultDelay
}

// GateConfig holds thresholds for the outbound gate chain.
type GateConfig struct {
	MaxFollowUpAttempts      int `yaml:"max_followup_attempts"`
	MinGapFollowUpMinutes    int `yaml:"min_gap_followup_minutes"`
	MinGapInteractionMinutes int `yaml:"min_gap_interaction_minutes"`
	BusinessHourStart        int `yaml:"business_hour_start"`
	BusinessHourEnd          int `yaml:"business_hour_end"`
	JitterMinMinutes         int `yaml:"jitter_min_minutes"`
	JitterMaxMinutes         int `yaml:"jitter_max_minutes"`
	MaxMessageLength         int `yaml:"max_message_length"`
}

// MinGapFollowUp returns the minimum gap since the last follow-up.
func (c GateConfig) MinGapFollowUp() time.Duration {
	return time.Duration(c.MinGapFollowUpMinutes) * time.Minute
}

// MinGapInteraction returns the minimum gap since the last user interaction.
func (c GateConfig) MinGapInteraction() time.Duration {
	return time.Duration(c.MinGapInteractionMinutes) * time.Minute
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars in deployment. A missing config
// file falls back to built-in defaults.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = Default()
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("GATEWAY_BASE_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("GATEWAY_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 30
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
	if c.Gateway.TimeoutSeconds == 0 {
		c.Gateway.TimeoutSeconds = 30
	}
	if c.Gateway.MaxRetries == 0 {
		c.Gateway.MaxRetries = 3
	}

	if c.FollowUp.DefaultDelay.Zero() {
		c.FollowUp.DefaultDelay = DelayWindow{MinMinutes: 30, MaxMinutes: 60}
	}
	if c.FollowUp.DelayWindows == nil {
		c.FollowUp.DelayWindows = map[string]DelayWindow{
			string(domain.StageAskName):        {MinMinutes: 60, MaxMinutes: 90},
			string(domain.StageAskProductType): {MinMinutes: 45, MaxMinutes: 60},
			string(domain.StageAskCapacityOK):  {MinMinutes: 30, MaxMinutes: 45},
			string(domain.StageAskGenres):      {MinMinutes: 30, MaxMinutes: 45},
			string(domain.StageAskArtists):     {MinMinutes: 30, MaxMinutes: 45},
			string(domain.StageAskVideos):      {MinMinutes: 30, MaxMinutes: 45},
			string(domain.StageAskAddress):     {MinMinutes: 20, MaxMinutes: 30},
		}
	}

	if c.Gates.MaxFollowUpAttempts == 0 {
		c.Gates.MaxFollowUpAttempts = 3
	}
	if c.Gates.MinGapFollowUpMinutes == 0 {
		c.Gates.MinGapFollowUpMinutes = 240
	}
	if c.Gates.MinGapInteractionMinutes == 0 {
		c.Gates.MinGapInteractionMinutes = 30
	}
	if c.Gates.BusinessHourStart == 0 {
		c.Gates.BusinessHourStart = 9
	}
	if c.Gates.BusinessHourEnd == 0 {
		c.Gates.BusinessHourEnd = 21
	}
	if c.Gates.JitterMinMinutes == 0 {
		c.Gates.JitterMinMinutes = 1
	}
	if c.Gates.JitterMaxMinutes == 0 {
		c.Gates.JitterMaxMinutes = 5
	}
	if c.Gates.MaxMessageLength == 0 {
		c.Gates.MaxMessageLength = 1600
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
