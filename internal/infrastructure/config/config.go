// internal/infrastructure/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds all configuration for the application
type Config struct {
	// App
	AppEnv     string `envconfig:"APP_ENV" default:"production"`
	AppVersion string `envconfig:"APP_VERSION" default:"1.0.0"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// Server
	Port         string        `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`

	// Booking store
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	PostgresDSN string `envconfig:"POSTGRES_DSN"`

	// MongoDB (audit trail)
	MongoURI      string `envconfig:"MONGODB_DSN"`
	MongoDB       string `envconfig:"MONGO_DB" default:"booking"`
	MongoUser     string `envconfig:"MONGO_USER"`
	MongoPassword string `envconfig:"MONGO_PASSWORD"`

	// Redis (cross-replica sweep lock)
	RedisURL string `envconfig:"REDIS_URL"`

	// RabbitMQ
	RabbitURL       string `envconfig:"RABBIT_URL"`
	EventExchange   string `envconfig:"EVENT_EXCHANGE" default:"mobility.events"`
	PaymentExchange string `envconfig:"PAYMENT_EXCHANGE" default:"payment.exchange"`
	PaymentQueue    string `envconfig:"PAYMENT_QUEUE" default:"booking.payment.q"`

	// Collaborators
	ResourceServiceURL string `envconfig:"RESOURCE_SERVICE_URL" default:"http://localhost:8082"`
	PricingServiceURL  string `envconfig:"PRICING_SERVICE_URL"`
	PaymentGatewayURL  string `envconfig:"PAYMENT_GATEWAY_URL"`
	PaymentGatewaySlug string `envconfig:"PAYMENT_GATEWAY_SLUG" default:"sandbox"`
	PaymentCallbackURL string `envconfig:"PAYMENT_CALLBACK_URL"`

	// Service-to-service auth
	ServiceToken        string `envconfig:"SERVICE_TOKEN"`
	ServiceClientID     string `envconfig:"SERVICE_CLIENT_ID"`
	ServiceClientSecret string `envconfig:"SERVICE_CLIENT_SECRET"`
	ServiceTokenURL     string `envconfig:"SERVICE_TOKEN_URL"`

	// Side effects
	UpstreamTimeout    time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"3s"`
	UpstreamMaxRetries int           `envconfig:"UPSTREAM_MAX_RETRIES" default:"2"`
	EffectWorkers      int           `envconfig:"EFFECT_WORKERS" default:"4"`
	EffectQueueSize    int           `envconfig:"EFFECT_QUEUE_SIZE" default:"1024"`

	// Expiry reconciler
	SweepInterval  time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	SweepBatchSize int           `envconfig:"SWEEP_BATCH_SIZE" default:"500"`
	SweepLockTTL   time.Duration `envconfig:"SWEEP_LOCK_TTL" default:"5m"`

	// Pricing
	TrustClientPricing bool `envconfig:"TRUST_CLIENT_PRICING" default:"true"`

	// Tracing
	OTLPEndpoint string `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.SweepBatchSize <= 0 {
		return fmt.Errorf("SWEEP_BATCH_SIZE must be positive")
	}
	if c.EffectWorkers <= 0 {
		return fmt.Errorf("EFFECT_WORKERS must be positive")
	}
	if c.UpstreamMaxRetries < 0 {
		return fmt.Errorf("UPSTREAM_MAX_RETRIES must not be negative")
	}
	return nil
}

// IsDevelopment reports whether APP_ENV selects development logging
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev"
}
