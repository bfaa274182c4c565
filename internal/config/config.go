package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"inkwell/internal/models"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	loadFromEnvironment(config)

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment loads configuration from environment variables
func loadFromEnvironment(config *models.Config) {
	// Server configuration
	if port := os.Getenv("INKWELL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if host := os.Getenv("INKWELL_HOST"); host != "" {
		config.Server.Host = host
	}

	setDuration("INKWELL_READ_TIMEOUT", &config.Server.ReadTimeout)
	setDuration("INKWELL_WRITE_TIMEOUT", &config.Server.WriteTimeout)
	setDuration("INKWELL_IDLE_TIMEOUT", &config.Server.IdleTimeout)
	setDuration("INKWELL_SHUTDOWN_TIMEOUT", &config.Server.ShutdownTimeout)

	// Rate limit configuration. DISABLE_RATE_LIMIT is the switch test
	// harnesses already set; the prefixed variable wins when both are present.
	if disabled := os.Getenv("DISABLE_RATE_LIMIT"); disabled != "" {
		config.RateLimit.Disabled = strings.ToLower(disabled) == "true"
	}

	if disabled := os.Getenv("INKWELL_RATE_LIMIT_DISABLED"); disabled != "" {
		config.RateLimit.Disabled = strings.ToLower(disabled) == "true"
	}

	setDuration("INKWELL_RATE_LIMIT_SWEEP_INTERVAL", &config.RateLimit.SweepInterval)
	setInt("INKWELL_RATE_LIMIT_SHARDS", &config.RateLimit.Shards)

	if byPath := os.Getenv("INKWELL_RATE_LIMIT_API_KEY_BY_PATH"); byPath != "" {
		config.RateLimit.APIKeyByPath = strings.ToLower(byPath) == "true"
	}

	setDuration("INKWELL_RATE_LIMIT_AUTH_WINDOW", &config.RateLimit.Auth.Window)
	setInt("INKWELL_RATE_LIMIT_AUTH_MAX_REQUESTS", &config.RateLimit.Auth.MaxRequests)
	setDuration("INKWELL_RATE_LIMIT_SIGNUP_WINDOW", &config.RateLimit.Signup.Window)
	setInt("INKWELL_RATE_LIMIT_SIGNUP_MAX_REQUESTS", &config.RateLimit.Signup.MaxRequests)
	setDuration("INKWELL_RATE_LIMIT_API_WINDOW", &config.RateLimit.API.Window)
	setInt("INKWELL_RATE_LIMIT_API_MAX_REQUESTS", &config.RateLimit.API.MaxRequests)

	// Logging configuration
	if level := os.Getenv("INKWELL_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if format := os.Getenv("INKWELL_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}

	if output := os.Getenv("INKWELL_LOG_OUTPUT"); output != "" {
		config.Logging.Output = output
	}

	if filePath := os.Getenv("INKWELL_LOG_FILE_PATH"); filePath != "" {
		config.Logging.FilePath = filePath
	}

	// Metrics configuration
	if metrics := os.Getenv("INKWELL_METRICS_ENABLED"); metrics != "" {
		config.Metrics.Enabled = strings.ToLower(metrics) == "true"
	}

	if path := os.Getenv("INKWELL_METRICS_PATH"); path != "" {
		config.Metrics.Path = path
	}

	setInt("INKWELL_METRICS_PORT", &config.Metrics.Port)

	// Observability configuration
	if name := os.Getenv("INKWELL_SERVICE_NAME"); name != "" {
		config.Observability.ServiceName = name
	}

	if tracing := os.Getenv("INKWELL_TRACING_ENABLED"); tracing != "" {
		config.Observability.Tracing.Enabled = strings.ToLower(tracing) == "true"
	}

	if exporter := os.Getenv("INKWELL_TRACING_EXPORTER"); exporter != "" {
		config.Observability.Tracing.Exporter = exporter
	}

	if endpoint := os.Getenv("INKWELL_OTLP_ENDPOINT"); endpoint != "" {
		config.Observability.Tracing.OTLPEndpoint = endpoint
	}

	if rate := os.Getenv("INKWELL_TRACING_SAMPLE_RATE"); rate != "" {
		if r, err := strconv.ParseFloat(rate, 64); err == nil {
			config.Observability.Tracing.SampleRate = r
		}
	}
}

// setDuration overwrites dst when the variable holds a valid duration.
func setDuration(name string, dst *time.Duration) {
	if v := os.Getenv(name); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// setInt overwrites dst when the variable holds a valid integer.
func setInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	// Example per-route API quotas
	config.RateLimit.APIKeyByPath = true

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
