// Package config reads the SYNC_* environment surface shared by the CLI
// and the store factory.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func Getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func GetenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func GetenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func GetenvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

// Remote is the connection config for the assistant API.
type Remote struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// RemoteFromEnv builds the remote config from SYNC_API_BASE_URL,
// SYNC_API_KEY, and SYNC_HTTP_TIMEOUT.
func RemoteFromEnv() (Remote, error) {
	baseURL := Getenv("SYNC_API_BASE_URL", "")
	if baseURL == "" {
		return Remote{}, fmt.Errorf("SYNC_API_BASE_URL is required")
	}
	return Remote{
		BaseURL: baseURL,
		APIKey:  Getenv("SYNC_API_KEY", ""),
		Timeout: GetenvDuration("SYNC_HTTP_TIMEOUT", 60*time.Second),
	}, nil
}
