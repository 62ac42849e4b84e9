package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerPort int
	APIPort    int
	OCPPPath   string

	// Database configuration
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// OCPP configuration
	HeartbeatInterval int

	// Rating configuration
	RatingTimeZone  string
	RatingWorkers   int
	DefaultTariffID string
	CDRCountryCode  string
	CDRPartyID      string

	// Logging
	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	serverPort, err := getEnvInt("SERVER_PORT", 8887)
	if err != nil {
		return nil, err
	}

	apiPort, err := getEnvInt("API_PORT", 8888)
	if err != nil {
		return nil, err
	}

	dbPort, err := getEnvInt("DB_PORT", 5432)
	if err != nil {
		return nil, err
	}

	heartbeatInterval, err := getEnvInt("HEARTBEAT_INTERVAL", 600)
	if err != nil {
		return nil, err
	}

	ratingWorkers, err := getEnvInt("RATING_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	if ratingWorkers < 1 {
		return nil, fmt.Errorf("invalid RATING_WORKERS: must be at least 1, got %d", ratingWorkers)
	}

	timeZone := getEnv("RATING_TIME_ZONE", "UTC")
	if _, err := time.LoadLocation(timeZone); err != nil {
		return nil, fmt.Errorf("invalid RATING_TIME_ZONE: %w", err)
	}

	return &Config{
		// Server configuration
		ServerPort: serverPort,
		APIPort:    apiPort,
		OCPPPath:   getEnv("OCPP_PATH", "/ocpp"),

		// Database configuration
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "cdr_rating"),
		DBSSLMode:  getEnv("DB_SSL_MODE", "disable"),

		// OCPP configuration
		HeartbeatInterval: heartbeatInterval,

		// Rating configuration
		RatingTimeZone:  timeZone,
		RatingWorkers:   ratingWorkers,
		DefaultTariffID: getEnv("DEFAULT_TARIFF_ID", ""),
		CDRCountryCode:  getEnv("CDR_COUNTRY_CODE", "DK"),
		CDRPartyID:      getEnv("CDR_PARTY_ID", "CPO"),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

// SetupLogger configures the global logger
func (c *Config) SetupLogger() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
}

// Helper function to get environment variables with fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", key, err)
	}
	return n, nil
}
