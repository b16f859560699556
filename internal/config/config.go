// Package config provides application configuration management with support for environment variables, command-line flags, and .env files.
package config

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds the application configuration.
type Config struct {
	App      AppConfig
	Logger   LoggerConfig
	Data     DataConfig
	Identity IdentityConfig
	Remote   RemoteConfig
	Sync     SyncConfig
	Network  NetworkConfig
	Server   ServerConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string
}

// DataConfig holds local durable-store configuration.
type DataConfig struct {
	// Path is the directory holding the badger database.
	Path string
}

// IdentityConfig carries the signed-in identity handed to us by the
// external identity provider. The core never performs authentication
// itself; it only needs a stable user id plus profile fields for the
// remote user document.
type IdentityConfig struct {
	UserID   string
	Email    string
	FullName string
}

// RemoteConfig holds remote document-store configuration.
type RemoteConfig struct {
	BaseURL string
	Token   string
	// CallTimeout bounds each individual remote call during a sync pass.
	CallTimeout time.Duration
	// RequestsPerSecond throttles the remote client (0 = unlimited).
	RequestsPerSecond float64
}

// SyncConfig holds sync scheduling configuration.
type SyncConfig struct {
	// Interval between scheduled sync passes (default: 168h / 7 days).
	Interval time.Duration
}

// NetworkConfig holds connectivity-monitor configuration.
type NetworkConfig struct {
	// ProbeAddr is the TCP address dialed to check reachability.
	ProbeAddr string
	// ProbeInterval is how often the monitor refreshes its signal.
	ProbeInterval time.Duration
	// ProbeTimeout bounds a single probe dial.
	ProbeTimeout time.Duration
}

// ServerConfig holds the local control API configuration.
type ServerConfig struct {
	Port string
}

// LoadConfig loads configuration from multiple sources with precedence:
// 1. Command-line flags (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig() (*Config, error) {
	// Define command-line flags.
	env := flag.String("env", "", "Environment (development, staging, production)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	dataPath := flag.String("data-path", "", "Directory for the local database")
	userID := flag.String("user-id", "", "Stable user id from the identity provider")
	userEmail := flag.String("user-email", "", "Signed-in user's email")
	userFullName := flag.String("user-name", "", "Signed-in user's full name")
	remoteURL := flag.String("remote-url", "", "Base URL of the remote document store")
	remoteToken := flag.String("remote-token", "", "Bearer token for the remote document store")
	remoteTimeout := flag.String("remote-timeout", "", "Per-call remote timeout (default: 15s)")
	syncInterval := flag.String("sync-interval", "", "Scheduled sync interval (default: 168h)")
	probeAddr := flag.String("probe-addr", "", "Connectivity probe address (default: 1.1.1.1:443)")
	probeInterval := flag.String("probe-interval", "", "Connectivity probe interval (default: 30s)")
	serverPort := flag.String("port", "", "Control API port (default: 8090)")
	envFile := flag.String("env-file", ".env", "Path to .env file")

	flag.Parse()

	// Load .env file if it exists (silently ignore if not found).
	_ = loadEnvFile(*envFile)

	// Build config with proper precedence.
	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Data: DataConfig{
			Path: getConfigValue(*dataPath, "DATA_PATH", ""),
		},
		Identity: IdentityConfig{
			UserID:   getConfigValue(*userID, "USER_ID", ""),
			Email:    getConfigValue(*userEmail, "USER_EMAIL", ""),
			FullName: getConfigValue(*userFullName, "USER_FULL_NAME", ""),
		},
		Remote: RemoteConfig{
			BaseURL:           getConfigValue(*remoteURL, "REMOTE_URL", ""),
			Token:             getConfigValue(*remoteToken, "REMOTE_TOKEN", ""),
			RequestsPerSecond: getFloatConfigValue("", "REMOTE_RPS", 10),
		},
		Network: NetworkConfig{
			ProbeAddr: getConfigValue(*probeAddr, "PROBE_ADDR", "1.1.1.1:443"),
		},
		Server: ServerConfig{
			Port: getConfigValue(*serverPort, "SERVER_PORT", "8090"),
		},
	}

	// Parse durations.
	var err error
	cfg.Remote.CallTimeout, err = parseDurationValue(*remoteTimeout, "REMOTE_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}

	cfg.Sync.Interval, err = parseDurationValue(*syncInterval, "SYNC_INTERVAL", "168h")
	if err != nil {
		return nil, err
	}

	cfg.Network.ProbeInterval, err = parseDurationValue(*probeInterval, "PROBE_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}

	cfg.Network.ProbeTimeout, err = parseDurationValue("", "PROBE_TIMEOUT", "3s")
	if err != nil {
		return nil, err
	}

	// Expand and validate the data path.
	if err := cfg.expandDataPath(); err != nil {
		return nil, fmt.Errorf("invalid data path: %w", err)
	}

	// Validate configuration.
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required config values are present and valid.
func (c *Config) Validate() error {
	if c.App.Environment == "" {
		return errors.New("ENV is required")
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.App.Environment] {
		return fmt.Errorf("invalid environment: %s (must be development, staging, or production)", c.App.Environment)
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[strings.ToLower(c.Logger.Level)] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Data.Path == "" {
		return errors.New("data path cannot be empty after expansion")
	}

	if c.Identity.UserID == "" {
		return errors.New("USER_ID is required (provided by the identity provider)")
	}

	if c.Remote.BaseURL == "" {
		return errors.New("REMOTE_URL is required")
	}

	if c.Sync.Interval <= 0 {
		return errors.New("sync interval must be positive")
	}

	return nil
}

// expandPath expands ~ and makes the path absolute.
// If path is empty and defaultPath is provided, uses the default.
func expandPath(path, defaultPath string) (string, error) {
	if path == "" {
		return defaultPath, nil
	}

	// Expand tilde.
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	// Make absolute if needed.
	if !filepath.IsAbs(path) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		path = absPath
	}

	return filepath.Clean(path), nil
}

// expandDataPath expands ~ and makes the path absolute.
// Defaults to ~/ReadingPal/data when unset.
func (c *Config) expandDataPath() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}
	defaultPath := filepath.Join(homeDir, "ReadingPal", "data")

	expanded, err := expandPath(c.Data.Path, defaultPath)
	if err != nil {
		return err
	}
	c.Data.Path = expanded
	return nil
}

// parseDurationValue resolves a duration from flag, env var, or default.
func parseDurationValue(flagValue, envKey, defaultValue string) (time.Duration, error) {
	str := getConfigValue(flagValue, envKey, defaultValue)
	d, err := time.ParseDuration(str)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", envKey, str, err)
	}
	return d, nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	// Priority 1: Command-line flag.
	if flagValue != "" {
		return flagValue
	}

	// Priority 2: Environment variable.
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}

	// Priority 3: Default value.
	return defaultValue
}

// getFloatConfigValue returns a float from flag, env var, or default.
func getFloatConfigValue(flagValue, envKey string, defaultValue float64) float64 {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue
	}
	var result float64
	if _, err := fmt.Sscanf(strValue, "%g", &result); err != nil {
		return defaultValue
	}
	return result
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments).
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments.
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=value.
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present.
		value = strings.Trim(value, `"'`)

		// Only set if not already set (env vars take precedence over .env file).
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("failed to set env var %s: %w", key, err)
			}
		}
	}

	return scanner.Err()
}
