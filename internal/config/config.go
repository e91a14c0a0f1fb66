// Package config handles application configuration loading and validation
// from environment variables, providing a type-safe configuration structure.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// OpenAccessKey is the placeholder master key. When API_MASTER_KEY is left at
// this value the front end accepts every request without a bearer token.
const OpenAccessKey = "1"

// History backends understood by HISTORY_BACKEND.
const (
	HistoryBackendFile   = "file"
	HistoryBackendRedis  = "redis"
	HistoryBackendSQLite = "sqlite"
)

// Config holds all application configuration values loaded from environment variables.
// It is built once at start-up and passed explicitly to every component; nothing
// in the codebase mutates it after New returns.
type Config struct {
	// Server configuration
	ListenAddr     string        // Address to listen on (e.g., ":8080")
	RequestTimeout time.Duration // Timeout for upstream API requests

	// Environment
	APIEnv string // API environment: 'production', 'development', 'test'

	// Authentication
	MasterKey string // Bearer key required on protected routes; OpenAccessKey disables the check

	// Upstream image backend
	Upstream UpstreamConfig

	// Optional model/style catalog override (.yaml, .yml or .toml)
	CatalogFile string

	// History storage
	History HistoryConfig

	// Logging
	LogLevel  string // Log level (debug, info, warn, error)
	LogFormat string // Log format (json, console)
	LogFile   string // Path to log file (empty for stdout)

	// CORS settings
	CORSAllowedOrigins []string // Allowed origins for CORS
	CORSAllowedMethods []string // Allowed methods for CORS
	CORSAllowedHeaders []string // Allowed headers for CORS
}

// UpstreamConfig describes the image generation backend.
type UpstreamConfig struct {
	BaseURL      string // e.g. "https://images.example.com"
	APIKey       string // Operator credential, sent as a bearer token
	GeneratePath string // Path of the multipart generate endpoint
	Provider     string // Provider tag sent with each generate call
}

// HistoryConfig selects and configures the history backend.
type HistoryConfig struct {
	Backend     string        // file, redis or sqlite
	Path        string        // JSON file path for the file backend
	Capacity    int           // Maximum records kept by the file backend
	TTL         time.Duration // Record expiry for the redis backend
	SQLitePath  string        // Database path for the sqlite backend
	RedisAddr   string        // Redis server address (e.g., "localhost:6379")
	RedisDB     int           // Redis database number
	RedisPrefix string        // Key prefix for history records
}

// OpenAccess reports whether bearer authentication is disabled.
func (c *Config) OpenAccess() bool {
	return c.MasterKey == OpenAccessKey
}

// New creates a new configuration with values from environment variables.
// It applies default values where environment variables are not set,
// and validates required configuration settings.
func New() (*Config, error) {
	config := DefaultConfig()

	config.ListenAddr = getEnvString("LISTEN_ADDR", config.ListenAddr)
	config.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", config.RequestTimeout)
	config.APIEnv = getEnvString("API_ENV", config.APIEnv)
	config.MasterKey = getEnvString("API_MASTER_KEY", config.MasterKey)

	config.Upstream = UpstreamConfig{
		BaseURL:      strings.TrimRight(getEnvString("UPSTREAM_URL", ""), "/"),
		APIKey:       getEnvString("UPSTREAM_API_KEY", ""),
		GeneratePath: getEnvString("UPSTREAM_GENERATE_PATH", config.Upstream.GeneratePath),
		Provider:     getEnvString("UPSTREAM_PROVIDER", config.Upstream.Provider),
	}
	config.CatalogFile = getEnvString("CATALOG_FILE", "")

	config.History = HistoryFromEnv()

	config.LogLevel = getEnvString("LOG_LEVEL", config.LogLevel)
	config.LogFormat = getEnvString("LOG_FORMAT", config.LogFormat)
	config.LogFile = getEnvString("LOG_FILE", config.LogFile)

	config.CORSAllowedOrigins = getEnvStringSlice("CORS_ALLOWED_ORIGINS", config.CORSAllowedOrigins)
	config.CORSAllowedMethods = getEnvStringSlice("CORS_ALLOWED_METHODS", config.CORSAllowedMethods)
	config.CORSAllowedHeaders = getEnvStringSlice("CORS_ALLOWED_HEADERS", config.CORSAllowedHeaders)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings New cannot default.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return fmt.Errorf("UPSTREAM_URL environment variable is required")
	}
	if c.Upstream.APIKey == "" {
		return fmt.Errorf("UPSTREAM_API_KEY environment variable is required")
	}
	return c.History.Validate()
}

// HistoryFromEnv reads the history settings alone. The history subcommands use
// it so they work without upstream credentials.
func HistoryFromEnv() HistoryConfig {
	def := DefaultConfig().History
	return HistoryConfig{
		Backend:     strings.ToLower(getEnvString("HISTORY_BACKEND", def.Backend)),
		Path:        getEnvString("HISTORY_PATH", def.Path),
		Capacity:    getEnvInt("HISTORY_CAPACITY", def.Capacity),
		TTL:         getEnvDuration("HISTORY_TTL", def.TTL),
		SQLitePath:  getEnvString("HISTORY_SQLITE_PATH", def.SQLitePath),
		RedisAddr:   getEnvString("REDIS_ADDR", def.RedisAddr),
		RedisDB:     getEnvInt("REDIS_DB", def.RedisDB),
		RedisPrefix: getEnvString("HISTORY_REDIS_PREFIX", def.RedisPrefix),
	}
}

// Validate checks the backend name and capacity.
func (h HistoryConfig) Validate() error {
	switch h.Backend {
	case HistoryBackendFile, HistoryBackendRedis, HistoryBackendSQLite:
	default:
		return fmt.Errorf("unsupported HISTORY_BACKEND %q (want file, redis or sqlite)", h.Backend)
	}
	if h.Capacity <= 0 {
		return fmt.Errorf("HISTORY_CAPACITY must be positive, got %d", h.Capacity)
	}
	return nil
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:     ":8080",
		RequestTimeout: 120 * time.Second,

		APIEnv: "development",

		MasterKey: OpenAccessKey,

		Upstream: UpstreamConfig{
			GeneratePath: "/api/gen-image",
			Provider:     "replicate",
		},

		History: HistoryConfig{
			Backend:     HistoryBackendFile,
			Path:        "./data/history.json",
			Capacity:    1000,
			TTL:         30 * 24 * time.Hour,
			SQLitePath:  "./data/history.db",
			RedisAddr:   "localhost:6379",
			RedisDB:     0,
			RedisPrefix: "imagegen:history:",
		},

		LogLevel:  "info",
		LogFormat: "json",
		LogFile:   "",

		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Authorization", "Content-Type"},
	}
}

// getEnvString retrieves a string value from an environment variable,
// falling back to the provided default value if the variable is not set.
func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as an integer.
func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := strconv.Atoi(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration value from an environment variable,
// falling back to the provided default value if the variable is not set
// or cannot be parsed as a duration.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		parsedValue, err := time.ParseDuration(value)
		if err == nil {
			return parsedValue
		}
	}
	return defaultValue
}

// getEnvStringSlice retrieves a comma-separated string value from an environment variable
// and splits it into a slice of strings, falling back to the provided default value
// if the variable is not set or is empty.
func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}
