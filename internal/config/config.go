package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Engine   EngineConfig
	Webhook  WebhookConfig
	Auth     AuthConfig
	Secrets  SecretsConfig
	Logger   LoggerConfig
}

// ServerConfig holds listener configuration
type ServerConfig struct {
	Host           string
	Environment    string
	HTTPPort       int `validate:"min=1,max=65535"`
	MetricsPort    int `validate:"min=1,max=65535"`
	GRPCHealthPort int `validate:"min=1,max=65535"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL      string // DATABASE_URL wins over the discrete fields when set
	Host     string
	User     string
	Password string
	Database string
	SSLMode  string
	Port     int
	MaxConns int32 `validate:"min=1"`
	MinConns int32 `validate:"min=0"`
}

// EngineConfig tunes the dispatcher and the periodic sweepers.
type EngineConfig struct {
	DispatchInterval     time.Duration `validate:"gt=0"`
	PendingProbeInterval time.Duration `validate:"gt=0"`
	PendingProbeAge      time.Duration `validate:"gt=0"`
	RetryResetInterval   time.Duration `validate:"gt=0"`
	StuckInterval        time.Duration `validate:"gt=0"`
	WebhookRetryInterval time.Duration `validate:"gt=0"`
	ShutdownTimeout      time.Duration `validate:"gt=0"`
	Workers              int           `validate:"min=1,max=200"`
	BatchSize            int           `validate:"min=1"`
	PendingProbeLimit    int           `validate:"min=1"`
	RetryResetLimit      int           `validate:"min=1"`
	WebhookRetryLimit    int           `validate:"min=1"`
	MaxAttempts          int           `validate:"min=1,max=10"`
}

// WebhookConfig holds inbound webhook limits
type WebhookConfig struct {
	RateLimitRPS   float64 `validate:"gt=0"`
	RateLimitBurst int     `validate:"min=1"`
}

// AuthConfig holds the shared secrets guarding the control API and cron routes
type AuthConfig struct {
	JWTSecret  string `validate:"required,min=16"`
	CronSecret string `validate:"required"`
}

// SecretsConfig selects the backend resolving secret:// references
type SecretsConfig struct {
	Backend        string `validate:"oneof=local aws vault"`
	LocalBasePath  string
	AWSRegion      string
	VaultAddress   string
	VaultToken     string
	VaultMountPath string
	VaultNamespace string
}

// LoggerConfig holds logging configuration
type LoggerConfig struct {
	Level       string `validate:"oneof=debug info warn error"`
	Development bool
}

// LoadFromEnv loads configuration from environment variables, reading a .env
// file first when one is present.
func LoadFromEnv() (*Config, error) {
	_ = godotenv.Load()

	environment := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Environment:    environment,
			HTTPPort:       getEnvAsInt("HTTP_PORT", 8080),
			MetricsPort:    getEnvAsInt("METRICS_PORT", 9090),
			GRPCHealthPort: getEnvAsInt("GRPC_HEALTH_PORT", 50051),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "gateway_sync"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Engine: EngineConfig{
			DispatchInterval:     getEnvAsDuration("SYNC_DISPATCH_INTERVAL", 10*time.Second),
			PendingProbeInterval: getEnvAsDuration("SYNC_PENDING_PROBE_INTERVAL", 30*time.Second),
			PendingProbeAge:      getEnvAsDuration("SYNC_PENDING_PROBE_AGE", 5*time.Minute),
			RetryResetInterval:   getEnvAsDuration("SYNC_RETRY_RESET_INTERVAL", 60*time.Second),
			StuckInterval:        getEnvAsDuration("SYNC_STUCK_INTERVAL", 60*time.Second),
			WebhookRetryInterval: getEnvAsDuration("WEBHOOK_RETRY_INTERVAL", 60*time.Second),
			ShutdownTimeout:      getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			Workers:              getEnvAsInt("SYNC_WORKERS", 10),
			BatchSize:            getEnvAsInt("SYNC_BATCH_SIZE", 10),
			PendingProbeLimit:    getEnvAsInt("SYNC_PENDING_PROBE_LIMIT", 50),
			RetryResetLimit:      getEnvAsInt("SYNC_RETRY_RESET_LIMIT", 20),
			WebhookRetryLimit:    getEnvAsInt("WEBHOOK_RETRY_LIMIT", 50),
			MaxAttempts:          getEnvAsInt("SYNC_MAX_ATTEMPTS", 3),
		},
		Webhook: WebhookConfig{
			RateLimitRPS:   getEnvAsFloat("WEBHOOK_RATE_LIMIT_RPS", 50),
			RateLimitBurst: getEnvAsInt("WEBHOOK_RATE_LIMIT_BURST", 100),
		},
		Auth: AuthConfig{
			JWTSecret:  getEnv("JWT_SECRET", ""),
			CronSecret: getEnv("CRON_SECRET", ""),
		},
		Secrets: SecretsConfig{
			Backend:        getEnv("SECRET_MANAGER", "local"),
			LocalBasePath:  getEnv("LOCAL_SECRETS_PATH", "./secrets"),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			VaultAddress:   getEnv("VAULT_ADDR", "http://localhost:8200"),
			VaultToken:     getEnv("VAULT_TOKEN", ""),
			VaultMountPath: getEnv("VAULT_MOUNT_PATH", "secret"),
			VaultNamespace: getEnv("VAULT_NAMESPACE", ""),
		},
		Logger: LoggerConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", environment != "production"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field ranges and required values.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Database.URL == "" && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD or DATABASE_URL is required")
	}
	if c.Secrets.Backend == "vault" && c.Secrets.VaultToken == "" {
		return fmt.Errorf("VAULT_TOKEN is required when SECRET_MANAGER=vault")
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT=production.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// ConnectionString returns PostgreSQL connection string
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("30s") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
