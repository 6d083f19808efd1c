package config

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Setting keys recognized in the settings table. Values there are written by
// the admin console and override the file-level bot defaults.
const (
	KeyCheckDelayMinutes = "request_timeout_minutes"
	KeyDailyLimit        = "max_requests_per_user_per_day"
	KeySeasonThreshold   = "season_threshold"
	KeyDefaultVerbosity  = "default_verbosity"
	KeyAutoNotify        = "enable_auto_notifications"
	KeyGroupChats        = "enable_group_chats"
	KeyMaintenanceMode   = "maintenance_mode"
	KeyMaxRechecks       = "max_rechecks"
	KeyAdminNumbers      = "admin_phone_numbers"
	KeyLogRetentionDays  = "log_retention_days"
)

// Settings is one immutable snapshot of the runtime configuration. The
// lifecycle manager reads a fresh snapshot at each decision point and never
// mutates one in place.
type Settings struct {
	CheckDelay       time.Duration
	RetryBackoff     time.Duration
	ConfirmTTL       time.Duration
	DailyLimit       int
	SeasonThreshold  int
	DefaultVerbosity string
	AutoNotify       bool
	GroupChats       bool
	MaintenanceMode  bool
	MaxRechecks      int
	Admins           []string
	LogRetention     time.Duration

	// Location fixes the calendar-day boundary for the daily rate limit.
	Location *time.Location
}

// SettingsFromConfig builds the baseline snapshot from the config file.
func SettingsFromConfig(cfg *Config) (*Settings, error) {
	loc := time.Local
	if tz := cfg.Bot.Timezone; tz != "" && tz != "Local" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid bot.timezone: %w", err)
		}
	}

	delay := time.Duration(cfg.Bot.CheckDelayMinutes) * time.Minute
	s := &Settings{
		CheckDelay:       delay,
		RetryBackoff:     delay / 4,
		ConfirmTTL:       delay,
		DailyLimit:       cfg.Bot.DailyLimit,
		SeasonThreshold:  cfg.Bot.SeasonThreshold,
		DefaultVerbosity: cfg.Bot.DefaultVerbosity,
		AutoNotify:       cfg.Bot.AutoNotify,
		GroupChats:       cfg.Bot.GroupChats,
		MaxRechecks:      cfg.Bot.MaxRechecks,
		Admins:           append([]string(nil), cfg.Bot.Admins...),
		LogRetention:     time.Duration(cfg.Bot.LogRetentionDays) * 24 * time.Hour,
		Location:         loc,
	}
	return s, nil
}

// Merge returns a copy of s with any recognized overrides from the settings
// table applied. Unknown keys and unparsable values are ignored.
func (s *Settings) Merge(rows map[string]string) *Settings {
	out := *s
	out.Admins = append([]string(nil), s.Admins...)

	if v, ok := parseInt(rows[KeyCheckDelayMinutes]); ok && v >= 1 {
		out.CheckDelay = time.Duration(v) * time.Minute
		out.RetryBackoff = out.CheckDelay / 4
		out.ConfirmTTL = out.CheckDelay
	}
	if v, ok := parseInt(rows[KeyDailyLimit]); ok && v >= 1 {
		out.DailyLimit = v
	}
	if v, ok := parseInt(rows[KeySeasonThreshold]); ok && v >= 1 {
		out.SeasonThreshold = v
	}
	if v := rows[KeyDefaultVerbosity]; v == "casual" || v == "simple" || v == "verbose" {
		out.DefaultVerbosity = v
	}
	if v, ok := parseBool(rows[KeyAutoNotify]); ok {
		out.AutoNotify = v
	}
	if v, ok := parseBool(rows[KeyGroupChats]); ok {
		out.GroupChats = v
	}
	if v, ok := parseBool(rows[KeyMaintenanceMode]); ok {
		out.MaintenanceMode = v
	}
	if v, ok := parseInt(rows[KeyMaxRechecks]); ok && v >= 0 {
		out.MaxRechecks = v
	}
	if raw, ok := rows[KeyAdminNumbers]; ok {
		var admins []string
		for _, n := range strings.Split(raw, ",") {
			if n = strings.TrimSpace(n); n != "" {
				admins = append(admins, n)
			}
		}
		if len(admins) > 0 {
			out.Admins = admins
		}
	}
	if v, ok := parseInt(rows[KeyLogRetentionDays]); ok && v >= 1 {
		out.LogRetention = time.Duration(v) * 24 * time.Hour
	}

	return &out
}

// IsAdmin reports whether number is in the configured admin identity list.
func (s *Settings) IsAdmin(number string) bool {
	for _, a := range s.Admins {
		if a == number {
			return true
		}
	}
	return false
}

// Runtime holds the current settings snapshot and swaps it atomically on
// reload. Readers always see a complete snapshot.
type Runtime struct {
	current atomic.Pointer[Settings]
}

// NewRuntime seeds the runtime with an initial snapshot.
func NewRuntime(s *Settings) *Runtime {
	r := &Runtime{}
	r.current.Store(s)
	return r
}

// Current returns the live snapshot.
func (r *Runtime) Current() *Settings {
	return r.current.Load()
}

// Swap publishes a new snapshot.
func (r *Runtime) Swap(s *Settings) {
	r.current.Store(s)
}

func parseInt(raw string) (int, bool) {
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseBool(raw string) (bool, bool) {
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return false, false
	}
	return v, true
}
