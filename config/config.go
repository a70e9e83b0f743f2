package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration for the lending ledger and its CLI.
type Config struct {
	ServiceName string
	DBPath      string
	LogLevel    string

	// Loan period bounds in days, inclusive.
	MinDueDays     int
	MaxDueDays     int
	DefaultDueDays int

	AllowDuplicateLoans  bool
	AllowRemoveWithLoans bool
	AMQPURL              string
	MetricsAddr          string
}

// Load loads configuration from environment variables.
func Load() *Config {
	return &Config{
		ServiceName:          getEnv("LENDING_SERVICE_NAME", "lending"),
		DBPath:               getEnv("LENDING_DB_PATH", "library.db"),
		LogLevel:             getEnv("LENDING_LOG_LEVEL", "info"),
		MinDueDays:           getEnvInt("LENDING_MIN_DUE_DAYS", 1),
		MaxDueDays:           getEnvInt("LENDING_MAX_DUE_DAYS", 30),
		DefaultDueDays:       getEnvInt("LENDING_DEFAULT_DUE_DAYS", 14),
		AllowDuplicateLoans:  getEnvBool("LENDING_ALLOW_DUPLICATE_LOANS", false),
		AllowRemoveWithLoans: getEnvBool("LENDING_ALLOW_REMOVE_WITH_LOANS", false),
		AMQPURL:              getEnv("LENDING_AMQP_URL", ""),
		MetricsAddr:          getEnv("LENDING_METRICS_ADDR", ":9108"),
	}
}

// Validate reports configuration that would make every issue request fail.
func (c *Config) Validate() error {
	if c.MinDueDays < 1 {
		return fmt.Errorf("min due days must be at least 1, got %d", c.MinDueDays)
	}
	if c.MaxDueDays < c.MinDueDays {
		return fmt.Errorf("max due days %d is below min due days %d", c.MaxDueDays, c.MinDueDays)
	}
	if c.DefaultDueDays < c.MinDueDays || c.DefaultDueDays > c.MaxDueDays {
		return fmt.Errorf("default due days %d outside [%d, %d]", c.DefaultDueDays, c.MinDueDays, c.MaxDueDays)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
