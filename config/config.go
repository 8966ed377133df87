package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	ErrConfigFileNotFound = errors.New("config file not found")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Config represents the daemon configuration
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Security  SecurityConfig  `json:"security"`
	Settings  SettingsConfig  `json:"settings"`
	Auth      AuthConfig      `json:"auth"`
	Companion CompanionConfig `json:"companion"`
	Telegram  TelegramConfig  `json:"telegram"`
	DevMode   bool            `json:"dev_mode"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `json:"path"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	APIKey string `json:"api_key"`
}

// SettingsConfig locates the hot-reloaded user preferences file
type SettingsConfig struct {
	Path string `json:"path"`
}

// AuthConfig configures the external biometric verifier
type AuthConfig struct {
	Command string   `json:"command"` // e.g. "fprintd-verify"
	Args    []string `json:"args"`
}

// CompanionConfig configures the BLE proximity detector
type CompanionConfig struct {
	Enabled    bool   `json:"enabled"`
	NameFilter string `json:"name_filter"` // substring match for auto-pairing
}

// TelegramConfig configures the optional notification sink
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: invalid server port", ErrInvalidConfig)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}

	if c.Security.APIKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	if c.Settings.Path == "" {
		return fmt.Errorf("%w: settings path is required", ErrInvalidConfig)
	}

	if c.Telegram.Token != "" && c.Telegram.ChatID == 0 {
		return fmt.Errorf("%w: telegram chat_id is required when token is set", ErrInvalidConfig)
	}

	return nil
}

// Load loads configuration from a JSON file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigFileNotFound
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// LoadFromEnv loads configuration from environment variables
// This is useful for containerized deployments
func LoadFromEnv() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host: getEnv("APPGUARD_HOST", "127.0.0.1"),
			Port: getEnvInt("APPGUARD_PORT", 8080),
		},
		Database: DatabaseConfig{
			Path: getEnv("APPGUARD_DB_PATH", "./appguard.db"),
		},
		Security: SecurityConfig{
			APIKey: getEnv("APPGUARD_API_KEY", ""),
		},
		Settings: SettingsConfig{
			Path: getEnv("APPGUARD_SETTINGS_PATH", "./settings.json"),
		},
		Auth: AuthConfig{
			Command: getEnv("APPGUARD_AUTH_COMMAND", ""),
		},
		Companion: CompanionConfig{
			Enabled:    getEnvBool("APPGUARD_COMPANION_ENABLED", false),
			NameFilter: getEnv("APPGUARD_COMPANION_NAME_FILTER", ""),
		},
		Telegram: TelegramConfig{
			Token:  getEnv("APPGUARD_TELEGRAM_TOKEN", ""),
			ChatID: int64(getEnvInt("APPGUARD_TELEGRAM_CHAT_ID", 0)),
		},
		DevMode: getEnvBool("APPGUARD_DEV_MODE", false),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var intVal int
		fmt.Sscanf(value, "%d", &intVal)
		return intVal
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1"
	}
	return defaultValue
}
