package config

import (
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string

	// Resale datastore API
	ResaleAPIBaseURL   string
	ResaleDatasetID    string
	ResaleFetchLimit   int
	ResaleFetchTimeout time.Duration
	FetchConcurrency   int

	// Memory backend
	FixturesDir string

	// Logging
	LogLevel  string
	LogFormat string

	MetricsEnabled bool
}

func Load() *Config {
	cfg := &Config{
		Port:        getEnv("PORT", "8081"),
		DataBackend: getEnv("DATA_BACKEND", "datagov"),

		ResaleAPIBaseURL:   getEnv("RESALE_API_BASE_URL", "https://data.gov.sg/api/action/datastore_search"),
		ResaleDatasetID:    getEnv("RESALE_DATASET_ID", "d_8b84c4ee58e3cfc0ece0d773c8ca6abc"),
		ResaleFetchLimit:   getEnvInt("RESALE_FETCH_LIMIT", 10000),
		ResaleFetchTimeout: getEnvDuration("RESALE_FETCH_TIMEOUT", 30*time.Second),
		FetchConcurrency:   getEnvInt("FETCH_CONCURRENCY", 4),

		FixturesDir: getEnv("FIXTURES_DIR", "data"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"datagov", "memory"}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "datagov" {
		if c.ResaleAPIBaseURL == "" {
			errors = append(errors, "resale API base URL cannot be empty when using datagov backend")
		} else if u, err := url.Parse(c.ResaleAPIBaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid resale API base URL '%s': %v", c.ResaleAPIBaseURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid resale API base URL scheme '%s': must be 'http' or 'https'", u.Scheme))
		}
		if c.ResaleDatasetID == "" {
			errors = append(errors, "resale dataset ID cannot be empty when using datagov backend")
		}
	}

	if c.DataBackend == "memory" {
		if info, err := os.Stat(c.FixturesDir); err != nil {
			errors = append(errors, fmt.Sprintf("fixtures directory '%s' is not readable: %v", c.FixturesDir, err))
		} else if !info.IsDir() {
			errors = append(errors, fmt.Sprintf("fixtures path '%s' is not a directory", c.FixturesDir))
		}
	}

	if c.ResaleFetchLimit < 1 {
		errors = append(errors, fmt.Sprintf("invalid fetch limit %d: must be at least 1", c.ResaleFetchLimit))
	}

	if c.ResaleFetchTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at least 1 second", c.ResaleFetchTimeout))
	} else if c.ResaleFetchTimeout > 5*time.Minute {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be at most 5 minutes", c.ResaleFetchTimeout))
	}

	if c.FetchConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid fetch concurrency %d: must be at least 1", c.FetchConcurrency))
	} else if c.FetchConcurrency > 16 {
		errors = append(errors, fmt.Sprintf("invalid fetch concurrency %d: must be at most 16", c.FetchConcurrency))
	}

	validLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !slices.Contains(validLevels, strings.ToLower(c.LogLevel)) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels[:4]))
	}

	validFormats := []string{"text", "json"}
	if !slices.Contains(validFormats, strings.ToLower(c.LogFormat)) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validFormats))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
