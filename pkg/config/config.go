package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends selectable with STORE_BACKEND.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	LogLevel string
	HTTP     struct {
		Port            int
		ShutdownTimeout time.Duration
	}
	Store struct {
		Backend string
	}
	DB struct {
		Host     string
		Port     int
		User     string
		Password string
		Database string
	}
	Mongo struct {
		URI        string
		Database   string
		Collection string
	}
	RabbitMQ struct {
		Host     string
		Port     int
		User     string
		Password string
	}
	JWT struct {
		Secret   string
		TokenTTL time.Duration
	}
	Pricing struct {
		EstimatorURL string
		DefaultPrice float64
		Timeout      time.Duration
	}
	Booking struct {
		MaxAttempts   int
		NotifyTimeout time.Duration
	}
}

// LoadConfig reads filename as a KEY=VALUE env file (a missing file is not an
// error) and builds the config from the process environment.
func LoadConfig(filename string) (*Config, error) {
	if filename != "" {
		if err := loadEnvFile(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}
	cfg.LogLevel = getEnv("LOG_LEVEL", "INFO")
	cfg.HTTP.Port = getEnvAsInt("HTTP_PORT", 3000)
	cfg.HTTP.ShutdownTimeout = getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 5*time.Second)
	cfg.Store.Backend = strings.ToLower(getEnv("STORE_BACKEND", StorePostgres))
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnvAsInt("DB_PORT", 5432)
	cfg.DB.User = getEnv("DB_USER", "rideshare_user")
	cfg.DB.Password = getEnv("DB_PASS", "rideshare_pass")
	cfg.DB.Database = getEnv("DB_NAME", "rideshare_db")
	cfg.Mongo.URI = getEnv("MONGO_URI", "mongodb://localhost:27017")
	cfg.Mongo.Database = getEnv("MONGO_DB", "covoiturage_trajets")
	cfg.Mongo.Collection = getEnv("MONGO_COLLECTION", "rides")
	cfg.RabbitMQ.Host = getEnv("RABBITMQ_HOST", "localhost")
	cfg.RabbitMQ.Port = getEnvAsInt("RABBITMQ_PORT", 5672)
	cfg.RabbitMQ.User = getEnv("RABBITMQ_USER", "guest")
	cfg.RabbitMQ.Password = getEnv("RABBITMQ_PASS", "guest")
	cfg.JWT.Secret = getEnv("JWT_SECRET", "")
	cfg.JWT.TokenTTL = getEnvAsDuration("JWT_TOKEN_TTL", 24*time.Hour)
	cfg.Pricing.EstimatorURL = getEnv("PRICE_ESTIMATOR_URL", "")
	cfg.Pricing.DefaultPrice = getEnvAsFloat("DEFAULT_PRICE", 15.00)
	cfg.Pricing.Timeout = getEnvAsDuration("PRICE_ESTIMATOR_TIMEOUT", 3*time.Second)
	cfg.Booking.MaxAttempts = getEnvAsInt("BOOKING_MAX_ATTEMPTS", 5)
	cfg.Booking.NotifyTimeout = getEnvAsDuration("NOTIFY_TIMEOUT", 2*time.Second)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Backend {
	case StoreMemory, StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Pricing.DefaultPrice <= 0 {
		return fmt.Errorf("DEFAULT_PRICE must be positive, got %v", c.Pricing.DefaultPrice)
	}
	if c.Booking.MaxAttempts < 1 {
		return fmt.Errorf("BOOKING_MAX_ATTEMPTS must be at least 1, got %d", c.Booking.MaxAttempts)
	}
	return nil
}

// PostgresDSN builds the pgx connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DB.User,
		c.DB.Password,
		c.DB.Host,
		c.DB.Port,
		c.DB.Database,
	)
}

// RabbitMQURL builds the AMQP connection string.
func (c *Config) RabbitMQURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/",
		c.RabbitMQ.User,
		c.RabbitMQ.Password,
		c.RabbitMQ.Host,
		c.RabbitMQ.Port,
	)
}

// loadEnvFile sets variables from filename that are not already present in
// the environment.
func loadEnvFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("could not open env file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)

		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("could not set env var %s: %w", key, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading env file: %w", err)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}

func getEnvAsFloat(key string, fallback float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return fallback
}
