package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.opentelemetry.io/otel/attribute"
)

// Config holds all configuration for the service.
type Config struct {
	// Server
	Port     int    `envconfig:"PORT" default:"80"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// Deployment mode: sandbox credentials are used unless production.
	Production bool `envconfig:"PRODUCTION" default:"false"`

	// Stallion Express (static fallback tier; the settings record wins)
	StallionSandboxURL string        `envconfig:"STALLION_BASE_URL_SANDBOX" default:"https://sandbox.stallionexpress.ca/api/v4"`
	StallionProdURL    string        `envconfig:"STALLION_BASE_URL_PROD" default:"https://ship.stallionexpress.ca/api/v4"`
	StallionSandboxKey string        `envconfig:"STALLION_API_KEY_SANDBOX"`
	StallionProdKey    string        `envconfig:"STALLION_API_KEY_PROD"`
	StallionConfigTTL  time.Duration `envconfig:"STALLION_CONFIG_TTL" default:"5m"`
	WebhookSecret      string        `envconfig:"STALLION_WEBHOOK_SECRET"`

	// Warehouse origin address
	WarehouseName       string `envconfig:"WAREHOUSE_NAME" default:"Store Warehouse"`
	WarehouseAddress1   string `envconfig:"WAREHOUSE_ADDRESS_LINE1" default:"123 Store St"`
	WarehouseCity       string `envconfig:"WAREHOUSE_CITY" default:"Toronto"`
	WarehouseProvince   string `envconfig:"WAREHOUSE_STATE" default:"ON"`
	WarehousePostalCode string `envconfig:"WAREHOUSE_POSTAL_CODE" default:"M5V2T6"`
	WarehouseCountry    string `envconfig:"WAREHOUSE_COUNTRY" default:"CA"`
	WarehousePhone      string `envconfig:"WAREHOUSE_PHONE" default:"4161234567"`
	WarehouseEmail      string `envconfig:"WAREHOUSE_EMAIL" default:"store@example.com"`

	// Parcel defaults
	DefaultWeight      float64 `envconfig:"DEFAULT_PRODUCT_WEIGHT" default:"0.5"`
	DefaultLength      float64 `envconfig:"DEFAULT_PRODUCT_LENGTH" default:"10"`
	DefaultWidth       float64 `envconfig:"DEFAULT_PRODUCT_WIDTH" default:"10"`
	DefaultHeight      float64 `envconfig:"DEFAULT_PRODUCT_HEIGHT" default:"5"`
	DefaultPostageType string  `envconfig:"DEFAULT_POSTAGE_TYPE" default:"Canada Post Regular"`

	// Storage; empty runs with in-memory stores
	DatabaseURL string `envconfig:"DATABASE_URL"`

	// Telemetry
	OTELEnabled  bool   `envconfig:"OTEL_ENABLED" default:"false"`
	OTELEndpoint string `envconfig:"OTEL_ENDPOINT" default:"http://localhost:4318"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"cartline-shipbridge"`
	Version      string `envconfig:"SERVICE_VERSION" default:"0.0.1"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return &cfg, nil
}

// StallionStaticURL returns the fallback base URL for the deployment mode.
func (c *Config) StallionStaticURL() string {
	if c.Production {
		return c.StallionProdURL
	}
	return c.StallionSandboxURL
}

// StallionStaticKey returns the fallback API key for the deployment mode.
func (c *Config) StallionStaticKey() string {
	if c.Production {
		return c.StallionProdKey
	}
	return c.StallionSandboxKey
}

// Attributes returns OpenTelemetry attributes for this configuration.
func (c *Config) Attributes() []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("service.name", c.ServiceName),
		attribute.String("service.version", c.Version),
		attribute.Bool("production", c.Production),
	}
}
