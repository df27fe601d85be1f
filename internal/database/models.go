package database

import (
	"database/sql"
	"time"
)

// Record status values for forward_records. A record moves from pending to
// sent, failed, or skipped during delivery, and from sent to deleted when the
// source message is removed. Deleted is terminal.
const (
	RecordStatusPending = "pending"
	RecordStatusSent    = "sent"
	RecordStatusFailed  = "failed"
	RecordStatusSkipped = "skipped"
	RecordStatusDeleted = "deleted"
)

// Session status values stored in the sessions table.
const (
	SessionStatusActive = "active"
	SessionStatusPaused = "paused"
	SessionStatusError  = "error"
)

// Session persists the availability state of one forwarding session so a
// restart picks up where the previous process left off. OwnerID is the
// operator-assigned identifier from the configuration file.
type Session struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	OwnerID        string         `db:"owner_id"`
	Status         string         `db:"status"`
	AutoPaused     bool           `db:"auto_paused"`
	PauseReason    sql.NullString `db:"pause_reason"`
	FloodWaitUntil sql.NullTime   `db:"flood_wait_until"`
	LastError      sql.NullString `db:"last_error"`
	LastActive     time.Time      `db:"last_active"`
}

// Channel is a source channel watched by a session. ChatID is the platform
// chat identifier of the channel; OwnerID names the session that relays it.
type Channel struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	ChatID  int64  `db:"chat_id"`
	OwnerID string `db:"owner_id"`
	Title   string `db:"title"`
	Enabled bool   `db:"enabled"`
}

// Recipient is a destination chat that receives copies of messages posted to
// a watched channel, keyed by the channel's chat id.
type Recipient struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`

	ChannelChatID int64 `db:"channel_chat_id"`
	ChatID        int64 `db:"chat_id"`
	Enabled       bool  `db:"enabled"`
}

// ForwardRecord tracks one delivery of one source message to one recipient.
// ForwardedMessageID is set only when Status is sent; GroupedID links the
// records of an album delivered as a single unit.
type ForwardRecord struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	SourceChannelID    int64          `db:"source_channel_id"`
	SourceMessageID    int64          `db:"source_message_id"`
	RecipientID        int64          `db:"recipient_id"`
	ForwardedMessageID sql.NullInt64  `db:"forwarded_message_id"`
	GroupedID          sql.NullInt64  `db:"grouped_id"`
	Status             string         `db:"status"`
	RetryCount         int            `db:"retry_count"`
	ErrorMessage       sql.NullString `db:"error_message"`
}
