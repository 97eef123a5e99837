package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Storage             string `envconfig:"STORAGE" default:"mongo"`
	MongoDBURI          string `envconfig:"MONGODB_URI"`
	MongoDBPassword     string `envconfig:"MONGODB_PASSWORD"`
	MongoDBDatabase     string `envconfig:"MONGODB_DATABASE" default:"homex"`
	MongoDBTransactions bool   `envconfig:"MONGODB_TRANSACTIONS" default:"false"`

	SupabaseURL     string `envconfig:"SUPABASE_URL"`
	SupabaseAnonKey string `envconfig:"SUPABASE_URL_ANON_KEY"`

	CloudinaryCloudName string `envconfig:"CLOUDINARY_CLOUD_NAME"`
	CloudinaryAPIKey    string `envconfig:"CLOUDINARY_API_KEY"`
	CloudinaryAPISecret string `envconfig:"CLOUDINARY_API_SECRET"`

	RabbitMQURL    string `envconfig:"RABBITMQ_URL"`
	EventsExchange string `envconfig:"EVENTS_EXCHANGE" default:"homex.events"`

	JWTSecret string `envconfig:"JWT_SECRET"`
	JWKSURL   string `envconfig:"JWKS_URL"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173,http://localhost:5174"`

	CommissionRate   float64 `envconfig:"COMMISSION_RATE" default:"0.2"`
	NodeID           int64   `envconfig:"NODE_ID" default:"1"`
	CatalogCacheSize int     `envconfig:"CATALOG_CACHE_SIZE" default:"256"`

	// CatalogCacheTTL bounds how long a catalog edit can go unseen.
	CatalogCacheTTL time.Duration `envconfig:"CATALOG_CACHE_TTL" default:"5m"`

	RateLimitMax    int           `envconfig:"RATE_LIMIT_MAX" default:"100"`
	RateLimitWindow time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"15m"`

	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Storage {
	case StorageMongo:
		if c.MongoDBURI == "" {
			return fmt.Errorf("MONGODB_URI is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("STORAGE must be %q or %q, got %q", StorageMongo, StorageMemory, c.Storage)
	}
	if c.JWTSecret == "" && c.JWKSURL == "" {
		return fmt.Errorf("JWT_SECRET or JWKS_URL is required")
	}
	if c.CommissionRate < 0 || c.CommissionRate > 1 {
		return fmt.Errorf("COMMISSION_RATE must be between 0 and 1")
	}
	if c.NodeID < 0 || c.NodeID > 1023 {
		return fmt.Errorf("NODE_ID must be between 0 and 1023")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) HasSupabase() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}

func (c *Config) HasCloudinary() bool {
	return c.CloudinaryCloudName != "" && c.CloudinaryAPIKey != "" && c.CloudinaryAPISecret != ""
}
