package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/go-playground/validator.v9"
)

type Config struct {
	Port                int     `envconfig:"PORT" default:"8000" validate:"min=1,max=65535"`
	ModelDirectory      string  `envconfig:"MODEL_DIR" default:"models" validate:"required"`
	ModelCatalog        string  `envconfig:"MODEL_CATALOG"` // YAML file; embedded catalog when empty
	DatabasePath        string  `envconfig:"DB_PATH" default:"predictions.db" validate:"required"`
	StaticDirectory     string  `envconfig:"STATIC_DIR" default:"static"`
	LogDirectory        string  `envconfig:"LOG_DIR" default:"logs" validate:"required"`
	HeatmapAlpha        float64 `envconfig:"HEATMAP_ALPHA" default:"0.4" validate:"gte=0,lte=1"`
	MaxUploadSize       int64   `envconfig:"MAX_UPLOAD_SIZE" default:"10485760" validate:"gt=0"`
	MaxImagePixels      int     `envconfig:"MAX_IMAGE_PIXELS" default:"40000000" validate:"gt=0"`
	MaintenanceSchedule string  `envconfig:"MAINTENANCE_SCHEDULE" default:"@daily"`
	RetentionDays       int     `envconfig:"RETENTION_DAYS" default:"0" validate:"gte=0"`
	WatchModels         bool    `envconfig:"WATCH_MODELS" default:"true"`
	Debug               bool    `envconfig:"DEBUG" default:"false"`
}

// Load reads the optional .env files, then the process environment.
// A missing .env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	_ = godotenv.Load(envFiles...)

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Retention returns how long predictions are kept, zero meaning forever.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
