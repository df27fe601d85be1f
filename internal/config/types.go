// Package config manages application configuration from config files,
// environment variables, and default values.
package config

import (
	"errors"
	"time"
)

// ErrConfiguration wraps every error returned while loading or validating
// configuration.
var ErrConfiguration = errors.New("configuration error")

// Config defines the application configuration. Values can be set through
// config.yaml or environment variables prefixed with RELAY_
// (e.g. RELAY_LOGGER_LEVEL).
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Sessions  []SessionConfig `mapstructure:"sessions" validate:"required,min=1,dive"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoggerConfig controls log verbosity and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// TelegramConfig holds platform-wide settings shared by all sessions.
type TelegramConfig struct {
	AdminUserID int64 `mapstructure:"admin_user_id" validate:"required,gt=0"`
}

// SessionConfig declares one forwarding session: a unique owner name and the
// bot token that session authenticates with.
type SessionConfig struct {
	Owner string `mapstructure:"owner" validate:"required"`
	Token string `mapstructure:"token" validate:"required"`
}

// EngineConfig holds the pacing and retry parameters applied to every
// session's delivery pipeline.
type EngineConfig struct {
	RateCapacity   int           `mapstructure:"rate_capacity"   validate:"required,gt=0"`
	RateInterval   time.Duration `mapstructure:"rate_interval"   validate:"required,min=1s"`
	MinSendDelay   time.Duration `mapstructure:"min_send_delay"  validate:"min=0"`
	MaxSendDelay   time.Duration `mapstructure:"max_send_delay"  validate:"min=0"`
	RecipientDelay time.Duration `mapstructure:"recipient_delay" validate:"min=0"`
	GroupWindow    time.Duration `mapstructure:"group_window"    validate:"required,min=100ms"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"  validate:"required,gte=1,lte=10"`
	RetryBase      time.Duration `mapstructure:"retry_base"      validate:"required,min=100ms"`
	RetryCeiling   time.Duration `mapstructure:"retry_ceiling"   validate:"required,min=1s"`
}

// TaskConfig enables one scheduled task and sets its cron schedule. Schedules
// use the six-field form with a leading seconds field.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig configures the background task scheduler.
type SchedulerConfig struct {
	Tasks         map[string]TaskConfig `mapstructure:"tasks"`
	RetentionDays int                   `mapstructure:"retention_days" validate:"gte=0"`
}

// MessagesConfig holds the static user-facing texts sent by command handlers.
type MessagesConfig struct {
	Welcome       string `mapstructure:"welcome"        validate:"required"`
	Help          string `mapstructure:"help"           validate:"required"`
	NotAuthorized string `mapstructure:"not_authorized" validate:"required"`
	GeneralError  string `mapstructure:"general_error"  validate:"required"`
}
