package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/loomworks/loom-engine/pkg/database"
	"github.com/loomworks/loom-engine/pkg/models"
)

// Config holds all configuration for loom-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables. Environment variables always override YAML values.
// Secrets (passwords) must only come from environment variables.
type Config struct {
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL" env-default:"info"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Database configuration (PostgreSQL)
	Database DatabaseConfig `yaml:"database"`

	// Mining configuration; defaults match models.DefaultMiningConfig.
	Mining MiningConfig `yaml:"mining"`

	// Discovery sweep configuration
	Discovery DiscoveryConfig `yaml:"discovery"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"loom"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"loom_engine"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"10"`
}

// PoolConfig converts to the database package's connection config.
// A localhost host is rewritten when the engine itself runs inside
// Docker but Postgres runs on the host machine.
func (c *DatabaseConfig) PoolConfig() *database.Config {
	return &database.Config{
		Host:           ResolveHostForDocker(c.Host),
		Port:           c.Port,
		User:           c.User,
		Password:       c.Password,
		Database:       c.Database,
		SSLMode:        c.SSLMode,
		MaxConnections: c.MaxConnections,
	}
}

// MiningConfig holds overridable pattern-mining parameters.
type MiningConfig struct {
	SequenceWindowMs  int64   `yaml:"sequence_window_ms" env:"MINING_SEQUENCE_WINDOW_MS" env-default:"14400000"`
	MinFrequency      int     `yaml:"min_frequency" env:"MINING_MIN_FREQUENCY" env-default:"3"`
	MinConfidence     float64 `yaml:"min_confidence" env:"MINING_MIN_CONFIDENCE" env-default:"0.3"`
	MaxEditDistance   int     `yaml:"max_edit_distance" env:"MINING_MAX_EDIT_DISTANCE" env-default:"2"`
	MaxSequenceLength int     `yaml:"max_sequence_length" env:"MINING_MAX_SEQUENCE_LENGTH" env-default:"10"`
}

// ToMiningConfig converts to the model config the miner consumes.
func (c *MiningConfig) ToMiningConfig() models.MiningConfig {
	return models.MiningConfig{
		SequenceWindowMs:  c.SequenceWindowMs,
		MinFrequency:      c.MinFrequency,
		MinConfidence:     c.MinConfidence,
		MaxEditDistance:   c.MaxEditDistance,
		MaxSequenceLength: c.MaxSequenceLength,
	}
}

// DiscoveryConfig holds the periodic discovery sweep settings.
type DiscoveryConfig struct {
	// IntervalMinutes is how often the engine re-mines every
	// workspace. 0 runs a single sweep and exits.
	IntervalMinutes int `yaml:"interval_minutes" env:"DISCOVERY_INTERVAL_MINUTES" env-default:"0"`
}

// Load reads configuration from config.yaml (if present) and the
// environment, then validates the mining section.
func Load(version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.Mining.ToMiningConfig().Validate(); err != nil {
		return nil, fmt.Errorf("invalid mining configuration: %w", err)
	}

	return cfg, nil
}
