package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	YelpAPIKey     string
	YelpAPIBase    string
	YelpLocation   string
	YelpCategories string

	MaxPages       int
	MaxConcurrency int
	RateLimitMs    int
	MaxRetries     int
	FetchMode      string
	ChromeBin      string

	FeatureRules string

	OutputDir string

	DBDriver         string
	SQLitePath       string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	LogLevel string
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		YelpAPIKey:     getEnv("YELP_API_KEY", ""),
		YelpAPIBase:    getEnv("YELP_API_BASE", "https://api.yelp.com"),
		YelpLocation:   getEnv("YELP_LOCATION", "Pittsburgh"),
		YelpCategories: getEnv("YELP_CATEGORIES", "restaurants, All"),

		MaxPages:       getEnvInt("MAX_PAGES", 0),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 1),
		RateLimitMs:    getEnvInt("RATE_LIMIT_MS", 500),
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		FetchMode:      strings.ToLower(getEnv("FETCH_MODE", "http")),
		ChromeBin:      getEnv("CHROME_BIN", ""),

		FeatureRules: strings.ToLower(getEnv("FEATURE_RULES", "corrected")),

		OutputDir: getEnv("OUTPUT_DIR", "./output"),

		DBDriver:         strings.ToLower(getEnv("DB_DRIVER", "none")),
		SQLitePath:       getEnv("SQLITE_PATH", "./output/dataset.db"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "restaurant_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// DataSource returns the driver name and data source for the configured
// database, or empty strings when persistence to a database is disabled.
func (c *Config) DataSource() (driver, source string) {
	switch c.DBDriver {
	case "postgres":
		return "postgres", c.DSN()
	case "sqlite":
		return "sqlite", c.SQLitePath
	default:
		return "", ""
	}
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}
