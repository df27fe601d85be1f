package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values for optional configuration parameters.
const (
	DefaultLogLevel = "info"
	DefaultLogJSON  = true

	DefaultDBPath = "chanrelay.db"

	// Engine pacing defaults, sized for Telegram's broadcast limits of
	// roughly 20 messages per minute to the same group.
	DefaultRateCapacity   = 20
	DefaultRateInterval   = time.Minute
	DefaultMinSendDelay   = 500 * time.Millisecond
	DefaultMaxSendDelay   = 2 * time.Second
	DefaultRecipientDelay = 3 * time.Second
	DefaultGroupWindow    = time.Second
	DefaultRetryAttempts  = 3
	DefaultRetryBase      = time.Second
	DefaultRetryCeiling   = time.Minute

	// DefaultRetentionDays is how long deleted forward records are kept
	// before the cleanup task prunes them.
	DefaultRetentionDays = 30

	DefaultResumeSweepSchedule = "*/30 * * * * *"
	DefaultCleanupSchedule     = "0 0 4 * * *"
)

// DefaultMessages are the stock user-facing texts.
var DefaultMessages = MessagesConfig{
	Welcome:       "👋 Welcome! I relay posts from your channels to their configured destinations. Use /help to see the available commands.",
	Help:          "Commands:\n/relay_status - session and throttle state\n/relay_pause - pause forwarding\n/relay_resume - resume forwarding\n/relay_watch <chat_id> [title] - watch a channel\n/relay_unwatch <chat_id> - stop watching a channel\n/relay_targets <chat_id> - list a channel's recipients\n/relay_target_add <chat_id> <recipient_id> - add a recipient\n/relay_target_del <chat_id> <recipient_id> - remove a recipient\n/relay_purge <chat_id> <message_id...> - delete forwarded copies",
	NotAuthorized: "🚫 Access denied. Please contact the administrator.",
	GeneralError:  "❌ An error occurred. Please try again later.",
}

// setDefaults registers default values for all optional keys on the given
// viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", DefaultLogLevel)
	v.SetDefault("logger.json", DefaultLogJSON)

	v.SetDefault("database.path", DefaultDBPath)

	v.SetDefault("engine.rate_capacity", DefaultRateCapacity)
	v.SetDefault("engine.rate_interval", DefaultRateInterval)
	v.SetDefault("engine.min_send_delay", DefaultMinSendDelay)
	v.SetDefault("engine.max_send_delay", DefaultMaxSendDelay)
	v.SetDefault("engine.recipient_delay", DefaultRecipientDelay)
	v.SetDefault("engine.group_window", DefaultGroupWindow)
	v.SetDefault("engine.retry_attempts", DefaultRetryAttempts)
	v.SetDefault("engine.retry_base", DefaultRetryBase)
	v.SetDefault("engine.retry_ceiling", DefaultRetryCeiling)

	v.SetDefault("scheduler.retention_days", DefaultRetentionDays)
	v.SetDefault("scheduler.tasks.resume_sweep.enabled", true)
	v.SetDefault("scheduler.tasks.resume_sweep.schedule", DefaultResumeSweepSchedule)
	v.SetDefault("scheduler.tasks.record_cleanup.enabled", true)
	v.SetDefault("scheduler.tasks.record_cleanup.schedule", DefaultCleanupSchedule)

	v.SetDefault("messages.welcome", DefaultMessages.Welcome)
	v.SetDefault("messages.help", DefaultMessages.Help)
	v.SetDefault("messages.not_authorized", DefaultMessages.NotAuthorized)
	v.SetDefault("messages.general_error", DefaultMessages.GeneralError)
}
