// Package util provides environment parsing helpers for process bootstrap.
package util

import (
	"log/slog"
	"os"
	"strings"
	"time"
)

// EnvOrDefault returns the value of key, or fallback when the variable is
// unset or blank.
func EnvOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// ParseBoolEnv reads a boolean environment variable. Accepted values are
// true/1/yes/on and false/0/no/off, case-insensitive; anything else falls
// back to the default with a warning.
func ParseBoolEnv(key string, defaultValue bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	slog.Warn("ParseBoolEnv: invalid boolean value, using default", "key", key, "value", v, "default", defaultValue)
	return defaultValue
}

// ParseDurationEnv reads a Go duration (for example "30s" or "2m") from the
// environment; unset or unparseable values fall back to the default.
func ParseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("ParseDurationEnv: invalid duration, using default", "key", key, "value", v, "default", defaultValue)
		return defaultValue
	}
	return d
}
