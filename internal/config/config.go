package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	JWT            JWTConfig
	CORS           CORSConfig
	PayMongo       PayMongoConfig
	Reconciliation ReconciliationConfig
	Realtime       RealtimeConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// IsProduction reports whether the service runs with production guarantees
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	Issuer            string
	AccessTokenExpiry time.Duration
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// PayMongoConfig holds the payment gateway configuration
type PayMongoConfig struct {
	BaseURL         string
	SecretKey       string // SECRET - never expose to client
	WebhookSecret   string // SECRET - used to verify Paymongo-Signature
	Timeout         time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	PaymentMethods  []string
	DefaultCurrency string
}

// ReconciliationConfig controls the scheduled sweep of stale payments
type ReconciliationConfig struct {
	Enabled    bool
	Schedule   string // cron spec with seconds field
	StaleAfter time.Duration
	BatchSize  int
}

// RealtimeConfig controls the notification stream
type RealtimeConfig struct {
	BufferSize int
	Heartbeat  time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := FromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// FromEnv builds a Config from the current process environment without validating it
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    getEnvAsDuration("DATABASE_CONN_MAX_LIFETIME", 300, time.Second),
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			Issuer:            getEnv("JWT_ISSUER", "bh-hunter"),
			AccessTokenExpiry: getEnvAsDuration("JWT_ACCESS_TOKEN_EXPIRY", 3600, time.Second),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Request-ID"}),
		},
		PayMongo: PayMongoConfig{
			BaseURL:         getEnv("PAYMONGO_BASE_API", "https://api.paymongo.com/v1"),
			SecretKey:       getEnv("PAYMONGO_SECRET_KEY", ""),
			WebhookSecret:   getEnv("PAYMONGO_WEBHOOK_SECRET", ""),
			Timeout:         getEnvAsDuration("PAYMONGO_TIMEOUT_SECONDS", 15, time.Second),
			MaxAttempts:     getEnvAsInt("PAYMONGO_MAX_ATTEMPTS", 3),
			RetryBackoff:    getEnvAsDuration("PAYMONGO_RETRY_BACKOFF_MS", 500, time.Millisecond),
			PaymentMethods:  getEnvAsSlice("PAYMONGO_PAYMENT_METHODS", []string{"card", "gcash", "paymaya"}),
			DefaultCurrency: getEnv("DEFAULT_CURRENCY", "PHP"),
		},
		Reconciliation: ReconciliationConfig{
			Enabled:    getEnvAsBool("RECONCILE_ENABLED", false),
			Schedule:   getEnv("RECONCILE_SCHEDULE", "0 */10 * * * *"),
			StaleAfter: getEnvAsDuration("RECONCILE_STALE_AFTER_MINUTES", 30, time.Minute),
			BatchSize:  getEnvAsInt("RECONCILE_BATCH_SIZE", 50),
		},
		Realtime: RealtimeConfig{
			BufferSize: getEnvAsInt("REALTIME_BUFFER_SIZE", 16),
			Heartbeat:  getEnvAsDuration("REALTIME_HEARTBEAT_SECONDS", 25, time.Second),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.PayMongo.MaxAttempts < 1 {
		return fmt.Errorf("PAYMONGO_MAX_ATTEMPTS must be at least 1")
	}

	// Gateway credentials are optional outside production; the adapter and
	// the webhook verifier refuse to work without them.
	if c.Server.IsProduction() {
		if c.PayMongo.SecretKey == "" {
			return fmt.Errorf("PAYMONGO_SECRET_KEY is required in production")
		}
		if c.PayMongo.WebhookSecret == "" {
			return fmt.Errorf("PAYMONGO_WEBHOOK_SECRET is required in production")
		}
	}

	return nil
}

// Environment lookups. Unset or unparsable values fall back to the default.

func getEnv(key string, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func parseEnv[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	value, err := parse(raw)
	if err != nil {
		log.Printf("Invalid value %q for %s, using default: %v", raw, key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	return parseEnv(key, defaultValue, strconv.Atoi)
}

// getEnvAsDuration reads an integer count of unit
func getEnvAsDuration(key string, defaultValue int, unit time.Duration) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultValue)) * unit
}

func getEnvAsBool(key string, defaultValue bool) bool {
	return parseEnv(key, defaultValue, strconv.ParseBool)
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	items := strings.FieldsFunc(os.Getenv(key), func(r rune) bool { return r == ',' })
	result := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
