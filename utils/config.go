package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const (
	DriverRemote   = "remote"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig
	Store    StoreConfig
	Database DatabaseConfig
	Postgres PostgresConfig
	Server   ServerConfig
	Feed     FeedConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name    string
	Version string
}

// StoreConfig selects the post store and holds the hosted store settings
type StoreConfig struct {
	Driver               string
	URL                  string
	APIKey               string
	TimeoutSeconds       int
	MaxRequestsPerMinute int
}

// DatabaseConfig holds the SQLite configuration
type DatabaseConfig struct {
	Path string
}

type PostgresConfig struct {
	DSN      string
	MaxConns int
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port int
}

// FeedConfig holds the feed session settings
type FeedConfig struct {
	RefreshInterval  int // seconds, 0 disables polling
	UserID           string
	CommentsPageSize int
	NoticeTTLSeconds int
	RefreshAfterLike bool
}

// LoadConfig loads configuration from .env file
func LoadConfig(envPath string, log *logrus.Logger) (*Config, error) {
	if envPath == "" {
		envPath = ".env"
	}

	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	config := &Config{
		App: AppConfig{
			Name:    getEnv("APP_NAME", "Forum Feed"),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		Store: StoreConfig{
			Driver:               strings.ToLower(strings.TrimSpace(getEnv("STORE_DRIVER", DriverRemote))),
			URL:                  getEnv("STORE_URL", ""),
			APIKey:               getEnv("STORE_API_KEY", ""),
			TimeoutSeconds:       getEnvAsInt("STORE_TIMEOUT_SECONDS", 10),
			MaxRequestsPerMinute: getEnvAsInt("STORE_MAX_REQUESTS_PER_MINUTE", 120),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./forum.db"),
		},
		Postgres: PostgresConfig{
			DSN:      getEnv("POSTGRES_DSN", ""),
			MaxConns: getEnvAsInt("POSTGRES_MAX_CONNS", 10),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Feed: FeedConfig{
			RefreshInterval:  getEnvAsInt("FEED_REFRESH_INTERVAL", 60),
			UserID:           getEnv("FORUM_USER_ID", ""),
			CommentsPageSize: getEnvAsInt("COMMENTS_PAGE_SIZE", 20),
			NoticeTTLSeconds: getEnvAsInt("NOTICE_TTL_SECONDS", 8),
			RefreshAfterLike: getEnvAsBool("FEED_REFRESH_AFTER_LIKE", false),
		},
	}

	// validation
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	log.WithField("file", envPath).Info("Config loaded successfully")
	return config, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAsInt gets an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	switch config.Store.Driver {
	case DriverRemote:
		if config.Store.URL == "" {
			return fmt.Errorf("STORE_URL environment variable is required for the remote store")
		}
		if config.Store.APIKey == "" {
			return fmt.Errorf("STORE_API_KEY environment variable is required for the remote store")
		}
		if config.Store.TimeoutSeconds < 1 {
			return fmt.Errorf("STORE_TIMEOUT_SECONDS must be positive")
		}
	case DriverPostgres:
		if config.Postgres.DSN == "" {
			return fmt.Errorf("POSTGRES_DSN environment variable is required for the postgres store")
		}
	case DriverSQLite:
		// if we are storing the db in a nested directory, create the directory
		dbDir := filepath.Dir(config.Database.Path)
		if dbDir != "." && dbDir != "" {
			if err := os.MkdirAll(dbDir, 0755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	default:
		return fmt.Errorf("STORE_DRIVER must be one of %s, %s, %s; got %q",
			DriverRemote, DriverSQLite, DriverPostgres, config.Store.Driver)
	}

	if config.Feed.RefreshInterval < 0 {
		return fmt.Errorf("FEED_REFRESH_INTERVAL must not be negative")
	}
	if config.Feed.CommentsPageSize < 1 || config.Feed.CommentsPageSize > 100 {
		return fmt.Errorf("COMMENTS_PAGE_SIZE must be between 1 and 100")
	}
	if config.Feed.NoticeTTLSeconds < 0 {
		return fmt.Errorf("NOTICE_TTL_SECONDS must not be negative")
	}

	return nil
}
