// Package config centralizes environment-backed configuration for the client
// binaries and the local dev server. A .env file is honored when present.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultBaseURL = "https://aranya-backend.onrender.com/api"
	defaultTimeout = 15

	defaultDevAddr          = ":8750"
	defaultDevDatabase      = "./data/aranya-dev.db"
	defaultDevSecret        = "dev-secret-change-me"
	defaultAccessTTLMinutes = 15
	defaultRefreshTTLDays   = 7
)

// Config carries all configuration for the binaries in this repository.
type Config struct {
	Client    Client
	DevServer DevServer
}

// Client configures the API client.
type Client struct {
	// BaseURL is the backend root, including any path prefix.
	BaseURL string
	// Timeout bounds each HTTP round trip.
	Timeout time.Duration
	// CredentialsFile is where the session is persisted between runs.
	CredentialsFile string
	// LogLevel is a zerolog level name ("debug", "info", ...).
	LogLevel string
}

// DevServer configures the local stand-in backend.
type DevServer struct {
	Addr           string
	DatabasePath   string
	JWTSecret      string
	AccessTokenTTL time.Duration
	RefreshTTL     time.Duration
	AllowedOrigins []string
}

// Load reads configuration from the environment, loading .env first when it
// exists.
func Load() (*Config, error) {
	// Missing .env is fine; explicit env vars win either way.
	_ = godotenv.Load()

	credentialsFile := GetEnv("ARANYA_CREDENTIALS_FILE", "")
	if credentialsFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("[config.Load] resolve home directory: %w", err)
		}
		credentialsFile = filepath.Join(home, ".aranya", "credentials.json")
	}

	timeoutSeconds, err := getEnvInt("ARANYA_TIMEOUT_SECONDS", defaultTimeout)
	if err != nil {
		return nil, err
	}
	accessMinutes, err := getEnvInt("ARANYA_DEV_ACCESS_TTL_MINUTES", defaultAccessTTLMinutes)
	if err != nil {
		return nil, err
	}
	refreshDays, err := getEnvInt("ARANYA_DEV_REFRESH_TTL_DAYS", defaultRefreshTTLDays)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Client: Client{
			BaseURL:         GetEnv("ARANYA_BASE_URL", defaultBaseURL),
			Timeout:         time.Duration(timeoutSeconds) * time.Second,
			CredentialsFile: credentialsFile,
			LogLevel:        GetEnv("ARANYA_LOG_LEVEL", "info"),
		},
		DevServer: DevServer{
			Addr:           GetEnv("ARANYA_DEV_ADDR", defaultDevAddr),
			DatabasePath:   GetEnv("ARANYA_DEV_DATABASE", defaultDevDatabase),
			JWTSecret:      GetEnv("ARANYA_DEV_JWT_SECRET", defaultDevSecret),
			AccessTokenTTL: time.Duration(accessMinutes) * time.Minute,
			RefreshTTL:     time.Duration(refreshDays) * 24 * time.Hour,
			AllowedOrigins: []string{GetEnv("ARANYA_DEV_ALLOWED_ORIGIN", "http://localhost:3000")},
		},
	}
	return cfg, nil
}

// GetEnv returns the variable's value or defaultValue when unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(envVar string, defaultValue int) (int, error) {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("[config.Load] %s must be an integer: %w", envVar, err)
	}
	return parsed, nil
}
