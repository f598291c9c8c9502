package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/daimoniac/dtrack-upload/internal/errors"
)

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intValue int
		if _, err := fmt.Sscanf(value, "%d", &intValue); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseBool follows the task host: only "true" (any case) is true. The
// second result reports whether a value was given at all.
func parseBool(name, raw string) (bool, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false, nil
	}
	switch strings.ToLower(raw) {
	case "true", "yes", "1":
		return true, true, nil
	case "false", "no", "0":
		return false, true, nil
	default:
		return false, true, errors.NewConfigurationf("input %s must be true or false, got %q", name, raw)
	}
}

// parseDuration parses a Go duration, falling back when raw is empty
func parseDuration(name, raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.NewConfigurationf("%s must be a duration like 2s or 5m, got %q", name, raw)
	}
	return d, nil
}
