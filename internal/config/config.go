package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig
	Server      ServerConfig
	App         AppConfig
	Gateway     GatewayConfig
	Redis       RedisConfig
	Competition CompetitionConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port string
}

// AppConfig holds application-specific settings
type AppConfig struct {
	JWTSecret       string
	MaintenanceMode bool
	DevMode         bool
}

// GatewayConfig holds payment gateway settings
type GatewayConfig struct {
	Provider              string
	SecretKey             string
	WebhookSecret         string
	BaseURL               string
	SuccessURL            string
	CancelURL             string
	CaptureTimeout        time.Duration
	RefundRestoresPledged bool
}

// RedisConfig holds leaderboard cache settings. Empty Addr disables caching.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// CompetitionConfig holds challenge competition tunables
type CompetitionConfig struct {
	RoomCapacity         int
	EligibilityThreshold int
	WinnersCount         int
	FinalizerInterval    time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "clauth"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		App: AppConfig{
			JWTSecret:       getEnv("JWT_SECRET", ""),
			MaintenanceMode: getEnvBool("MAINTENANCE_MODE", false),
			DevMode:         getEnvBool("DEV_MODE", false),
		},
		Gateway: GatewayConfig{
			Provider:              getEnv("PAYMENT_PROVIDER", "stub"),
			SecretKey:             getEnv("PAYMENT_SECRET_KEY", ""),
			WebhookSecret:         getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			BaseURL:               getEnv("PAYMENT_API_URL", "https://api.payment.example.com/v1"),
			SuccessURL:            getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:3000/checkout/success"),
			CancelURL:             getEnv("CHECKOUT_CANCEL_URL", "http://localhost:3000/checkout/cancel"),
			CaptureTimeout:        getEnvDuration("PAYMENT_CAPTURE_TIMEOUT", 15*time.Second),
			RefundRestoresPledged: getEnvBool("REFUND_RESTORES_PLEDGED", false),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Competition: CompetitionConfig{
			RoomCapacity:         getEnvInt("COMPETITION_ROOM_CAPACITY", 50),
			EligibilityThreshold: getEnvInt("COMPETITION_ELIGIBILITY_UPVOTES", 3),
			WinnersCount:         getEnvInt("COMPETITION_WINNERS_COUNT", 3),
			FinalizerInterval:    getEnvDuration("CHALLENGE_FINALIZER_INTERVAL", 5*time.Minute),
		},
	}

	// Validate required fields
	if config.App.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if config.Gateway.Provider != "stub" {
		if config.Gateway.SecretKey == "" {
			return nil, fmt.Errorf("PAYMENT_SECRET_KEY is required for provider %q", config.Gateway.Provider)
		}
		// Without a webhook secret the webhook endpoint would accept
		// unsigned deliveries from anyone
		if config.Gateway.WebhookSecret == "" {
			return nil, fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required for provider %q", config.Gateway.Provider)
		}
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
