// Package config loads settings from an optional YAML file, a .env file,
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/manash/clickgenius/internal/log"
	"github.com/manash/clickgenius/internal/project"
	"github.com/manash/clickgenius/internal/provider"
	"github.com/manash/clickgenius/pkg/models"
)

type Gemini struct {
	APIKey      string        `yaml:"api_key" env:"GEMINI_API_KEY" env-description:"Gemini API key"`
	Model       string        `yaml:"model" env:"CLICKGENIUS_MODEL" env-default:"gemini-2.5-flash-image"`
	BaseURL     string        `yaml:"base_url" env:"CLICKGENIUS_BASE_URL"`
	Temperature float32       `yaml:"temperature" env:"CLICKGENIUS_TEMPERATURE" env-default:"0.7"`
	AspectRatio string        `yaml:"aspect_ratio" env:"CLICKGENIUS_ASPECT_RATIO" env-default:"16:9"`
	Timeout     time.Duration `yaml:"timeout" env:"CLICKGENIUS_TIMEOUT" env-default:"120s"`
}

type Storage struct {
	Driver        string `yaml:"driver" env:"CLICKGENIUS_STORAGE" env-default:"sqlite"`
	SQLitePath    string `yaml:"sqlite_path" env:"CLICKGENIUS_DB_PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"CLICKGENIUS_REDIS_ADDR" env-default:"localhost:6379"`
	RedisPassword string `yaml:"redis_password" env:"CLICKGENIUS_REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"CLICKGENIUS_REDIS_DB" env-default:"0"`
}

type Export struct {
	S3Bucket string `yaml:"s3_bucket" env:"CLICKGENIUS_S3_BUCKET"`
	S3Prefix string `yaml:"s3_prefix" env:"CLICKGENIUS_S3_PREFIX" env-default:"thumbnails/"`
}

type Log struct {
	Level  string `yaml:"level" env:"CLICKGENIUS_LOG_LEVEL" env-default:"warn"`
	Format string `yaml:"format" env:"CLICKGENIUS_LOG_FORMAT" env-default:"text"`
}

type Config struct {
	Gemini  Gemini  `yaml:"gemini"`
	Storage Storage `yaml:"storage"`
	Export  Export  `yaml:"export"`
	Log     Log     `yaml:"log"`
}

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

var ErrUnknownDriver = errors.New("unknown storage driver")

// Load reads cfgPath (skipped when empty) and the environment. A .env file
// in the working directory is loaded first if present; it never overrides
// variables that are already set.
func Load(cfgPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if cfgPath != "" {
		if err := cleanenv.ReadConfig(cfgPath, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgPath, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite, DriverRedis:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, c.Storage.Driver)
	}
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != string(log.FormatJSON) && c.Log.Format != string(log.FormatText) {
		return fmt.Errorf("invalid log format %q", c.Log.Format)
	}
	return nil
}

// Provider returns the gateway configuration.
func (c *Config) Provider() provider.Config {
	cfg := provider.Config{
		APIKey:      c.Gemini.APIKey,
		BaseURL:     c.Gemini.BaseURL,
		Model:       c.Gemini.Model,
		Temperature: c.Gemini.Temperature,
		AspectRatio: c.Gemini.AspectRatio,
		Timeout:     c.Gemini.Timeout,
	}
	if cfg.Model == "" {
		cfg.Model = models.ModelFlashImage
	}
	return cfg
}

func (c *Config) SQLitePath() (string, error) {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath, nil
	}
	return project.DefaultDBPath()
}

func (c *Config) LogLevel() slog.Level {
	level, _ := log.ParseLevel(c.Log.Level)
	return level
}

// Usage describes every environment variable the config reads.
func Usage() string {
	var cfg Config
	text, err := cleanenv.GetDescription(&cfg, nil)
	if err != nil {
		return ""
	}
	return text
}
