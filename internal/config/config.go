package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Config holds the application configuration.
type Config struct {
	// Server settings
	ServerPort         string   `envconfig:"PORT" default:"9000"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173,http://localhost:5174"`
	LogLevel           string   `envconfig:"LOG_LEVEL" default:"info"`

	// Auth settings
	AccessTokenSecret string `envconfig:"ACCESS_TOKEN_SECRET" default:"mydefaultsecret"`
	JWKSURL           string `envconfig:"AUTH_JWKS_URL"`

	// Storage settings
	StoreBackend  string `envconfig:"STORE_BACKEND" default:"memory"`
	MongoURI      string `envconfig:"MONGO_URI" default:"mongodb://127.0.0.1:27017"`
	MongoDatabase string `envconfig:"MONGO_DATABASE" default:"todolist"`

	// Realtime settings
	RedisURL             string `envconfig:"REDIS_URL"`
	RedisChannel         string `envconfig:"REDIS_CHANNEL" default:"todoserver:task-events"`
	RealtimeScopeByOwner bool   `envconfig:"REALTIME_SCOPE_BY_OWNER" default:"false"`

	// OpenTelemetry settings
	TelemetryEnabled bool   `envconfig:"TELEMETRY_ENABLED" default:"true"`
	OTLPEndpoint     string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT" default:"localhost:4317"`
	ServiceName      string `envconfig:"OTEL_SERVICE_NAME" default:"todoserver"`
	Environment      string `envconfig:"ENVIRONMENT" default:"development"`
}

// Load reads a .env file when one exists, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreBackend {
	case StoreMemory, StoreMongo:
	default:
		return fmt.Errorf("invalid STORE_BACKEND %q: want %s or %s", c.StoreBackend, StoreMemory, StoreMongo)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	return nil
}

// SlogLevel returns the configured log level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	if c == nil {
		return slog.LevelInfo
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
