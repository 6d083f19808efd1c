package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Load loads the configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Look for config in standard locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Check current directory first
		v.AddConfigPath(".")

		// Check home directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".signalerr"))
		}

		// Check /etc
		v.AddConfigPath("/etc/signalerr/")
	}

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil, fmt.Errorf("config file not found: %w", err)
		}
		return nil, fmt.Errorf("error reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Signal defaults
	v.SetDefault("signal.rpc_addr", "127.0.0.1:7583")

	// Overseerr defaults
	v.SetDefault("overseerr.url", "http://localhost:5055")

	// Database defaults
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "signalerr.db")

	// Admin HTTP surface defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":8080")

	// Bot defaults
	v.SetDefault("bot.check_delay_minutes", 2)
	v.SetDefault("bot.daily_limit", 10)
	v.SetDefault("bot.season_threshold", 4)
	v.SetDefault("bot.default_verbosity", "simple")
	v.SetDefault("bot.auto_notify", true)
	v.SetDefault("bot.group_chats", true)
	v.SetDefault("bot.max_rechecks", 0)
	v.SetDefault("bot.timezone", "Local")
	v.SetDefault("bot.log_retention_days", 30)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.color", true)
}

// validate checks if the configuration is valid
func validate(cfg *Config) error {
	if cfg.Signal.Account == "" {
		return fmt.Errorf("signal.account is required")
	}

	if cfg.Overseerr.URL == "" {
		return fmt.Errorf("overseerr.url is required")
	}

	if cfg.Overseerr.APIKey == "" || cfg.Overseerr.APIKey == "your-api-key-here" {
		return fmt.Errorf("overseerr.api_key must be set to a valid API key")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database.driver: %s (must be 'sqlite' or 'postgres')", cfg.Database.Driver)
	}

	if cfg.Radarr.Enabled && (cfg.Radarr.URL == "" || cfg.Radarr.APIKey == "") {
		return fmt.Errorf("radarr.url and radarr.api_key are required when radarr.enabled is true")
	}
	if cfg.Sonarr.Enabled && (cfg.Sonarr.URL == "" || cfg.Sonarr.APIKey == "") {
		return fmt.Errorf("sonarr.url and sonarr.api_key are required when sonarr.enabled is true")
	}

	validVerbosity := map[string]bool{
		"casual":  true,
		"simple":  true,
		"verbose": true,
	}
	if !validVerbosity[cfg.Bot.DefaultVerbosity] {
		return fmt.Errorf("invalid bot.default_verbosity: %s (must be 'casual', 'simple' or 'verbose')", cfg.Bot.DefaultVerbosity)
	}

	if cfg.Bot.CheckDelayMinutes < 1 {
		return fmt.Errorf("bot.check_delay_minutes must be at least 1")
	}
	if cfg.Bot.SeasonThreshold < 1 {
		return fmt.Errorf("bot.season_threshold must be at least 1")
	}

	// Validate logging level
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[cfg.Logging.Level] {
		return fmt.Errorf("invalid logging level: %s", cfg.Logging.Level)
	}

	// Validate logging format
	validFormats := map[string]bool{
		"console": true,
		"json":    true,
	}
	if !validFormats[cfg.Logging.Format] {
		return fmt.Errorf("invalid logging format: %s", cfg.Logging.Format)
	}

	return nil
}
