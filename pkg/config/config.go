// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// Config holds application configuration
type Config struct {
	Port                string
	DBDriver            string // sqlite3 or postgres
	DBDSN               string
	LogLevel            string
	OverdueScanSchedule string // cron spec, empty disables the scan
	HistoryLimit        int
	ChartMonths         int
}

// Load reads configuration from a .env file, if present, and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	historyLimit, err := getEnvAsInt("HISTORY_LIMIT", 50)
	if err != nil {
		return nil, err
	}
	chartMonths, err := getEnvAsInt("CHART_MONTHS", 12)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		DBDriver:            getEnv("DB_DRIVER", "sqlite3"),
		DBDSN:               getEnv("DB_DSN", "loanbook.db"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		OverdueScanSchedule: getEnv("OVERDUE_SCAN_SCHEDULE", "0 8 * * *"),
		HistoryLimit:        historyLimit,
		ChartMonths:         chartMonths,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values that would otherwise only fail at startup.
func (c *Config) Validate() error {
	if c.DBDriver != "sqlite3" && c.DBDriver != "postgres" {
		return fmt.Errorf("DB_DRIVER must be sqlite3 or postgres, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive")
	}
	if c.ChartMonths <= 0 {
		return fmt.Errorf("CHART_MONTHS must be positive")
	}
	if c.OverdueScanSchedule != "" {
		if _, err := cron.ParseStandard(c.OverdueScanSchedule); err != nil {
			return fmt.Errorf("OVERDUE_SCAN_SCHEDULE: %w", err)
		}
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) (int, error) {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}
