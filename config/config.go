// Package config loads process configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port         string
	DBPath       string
	Environment  string
	TenantHeader string
	ScanWakeHour int
}

// Load reads the .env file if present, then the environment. Missing
// values fall back to development defaults.
func Load() (*Config, error) {
	// Absence of .env is fine; real deployments set the environment.
	_ = godotenv.Load(".env")

	cfg := &Config{
		Port:         getenv("PORT", "8080"),
		DBPath:       getenv("DB_PATH", "attendance.db"),
		Environment:  getenv("ENV", "development"),
		TenantHeader: getenv("TENANT_HEADER", ""),
		ScanWakeHour: 2,
	}

	if raw := os.Getenv("SCAN_WAKE_HOUR"); raw != "" {
		hour, err := strconv.Atoi(raw)
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("SCAN_WAKE_HOUR must be an hour 0-23, got %q", raw)
		}
		cfg.ScanWakeHour = hour
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
