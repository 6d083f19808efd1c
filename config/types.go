package config

// Config represents the complete configuration structure
type Config struct {
	Signal    SignalConfig    `mapstructure:"signal"`
	Overseerr OverseerrConfig `mapstructure:"overseerr"`
	Radarr    ArrConfig       `mapstructure:"radarr"`
	Sonarr    ArrConfig       `mapstructure:"sonarr"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Bot       BotConfig       `mapstructure:"bot"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// SignalConfig holds the signal-cli daemon connection details.
type SignalConfig struct {
	Account string `mapstructure:"account"`
	RPCAddr string `mapstructure:"rpc_addr"`
}

// OverseerrConfig holds Overseerr API connection details
type OverseerrConfig struct {
	URL    string `mapstructure:"url"`
	APIKey string `mapstructure:"api_key"`
}

// ArrConfig holds optional Radarr/Sonarr connection details used for
// download ETA lookups.
type ArrConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	URL    string `mapstructure:"url"`
}

// ServerConfig configures the admin HTTP surface.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// BotConfig holds the file-level defaults for runtime settings. Rows in the
// settings table override these while the daemon is running.
type BotConfig struct {
	CheckDelayMinutes int      `mapstructure:"check_delay_minutes"`
	DailyLimit        int      `mapstructure:"daily_limit"`
	SeasonThreshold   int      `mapstructure:"season_threshold"`
	DefaultVerbosity  string   `mapstructure:"default_verbosity"`
	AutoNotify        bool     `mapstructure:"auto_notify"`
	GroupChats        bool     `mapstructure:"group_chats"`
	MaxRechecks       int      `mapstructure:"max_rechecks"`
	Timezone          string   `mapstructure:"timezone"`
	Admins            []string `mapstructure:"admins"`
	PolicyRules       []string `mapstructure:"policy_rules"`
	LogRetentionDays  int      `mapstructure:"log_retention_days"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}
