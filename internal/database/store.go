package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods should accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveForwardRecord inserts a delivery record, or updates the live record
	// for the same (source channel, source message, recipient) key when one
	// exists, bumping its retry count.
	SaveForwardRecord(ctx context.Context, record *ForwardRecord) error

	// FindActiveByChannelAndMessageIDs retrieves the sent, not yet deleted
	// records for the given source messages. Records without a forwarded
	// message id have nothing to delete and are not returned.
	FindActiveByChannelAndMessageIDs(ctx context.Context, channelID int64, messageIDs []int64) ([]ForwardRecord, error)

	// MarkRecordsDeleted transitions the given records to the deleted status.
	MarkRecordsDeleted(ctx context.Context, recordIDs []int64) error

	// PruneDeletedRecords removes deleted records older than 'before' and
	// returns how many rows were removed.
	PruneDeletedRecords(ctx context.Context, before time.Time) (int64, error)

	// SaveSession inserts or updates the persisted state of a session,
	// keyed by owner id.
	SaveSession(ctx context.Context, session *Session) error

	// GetSession retrieves a session by owner id. Returns nil, nil if not found.
	GetSession(ctx context.Context, ownerID string) (*Session, error)

	// FindSessionsReadyToResume retrieves auto-paused sessions whose flood
	// wait deadline has passed at 'now'.
	FindSessionsReadyToResume(ctx context.Context, now time.Time) ([]Session, error)

	// SaveChannel inserts or updates a watched channel, keyed by chat id.
	SaveChannel(ctx context.Context, channel *Channel) error

	// DeleteChannel removes a watched channel and its recipients. Returns
	// false if no channel with that chat id existed.
	DeleteChannel(ctx context.Context, chatID int64) (bool, error)

	// GetChannelByChatID retrieves a channel by chat id. Returns nil, nil if not found.
	GetChannelByChatID(ctx context.Context, chatID int64) (*Channel, error)

	// ListChannelsByOwner retrieves the channels watched by one session.
	ListChannelsByOwner(ctx context.Context, ownerID string) ([]Channel, error)

	// AddRecipient registers a destination chat for a channel. Returns false
	// if the recipient was already registered.
	AddRecipient(ctx context.Context, channelChatID, chatID int64) (bool, error)

	// RemoveRecipient unregisters a destination chat. Returns false if it
	// was not registered.
	RemoveRecipient(ctx context.Context, channelChatID, chatID int64) (bool, error)

	// ListRecipients retrieves the enabled recipients of a channel, ordered
	// by chat id.
	ListRecipients(ctx context.Context, channelChatID int64) ([]Recipient, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveForwardRecord inserts a delivery record. The live-record unique index
// on (source_channel_id, source_message_id, recipient_id) turns a repeated
// delivery attempt into an update of the existing row, so at most one
// non-deleted record exists per key.
func (s *sqlxStore) SaveForwardRecord(ctx context.Context, record *ForwardRecord) error {
	if record == nil {
		return fmt.Errorf("cannot save nil forward record")
	}
	if record.SourceChannelID == 0 {
		return fmt.Errorf("forward record must have a non-zero source_channel_id")
	}
	if record.SourceMessageID == 0 {
		return fmt.Errorf("forward record must have a non-zero source_message_id")
	}
	if record.RecipientID == 0 {
		return fmt.Errorf("forward record must have a non-zero recipient_id")
	}

	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving forward record",
			"source_channel_id", record.SourceChannelID, "source_message_id", record.SourceMessageID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	query := `
        INSERT INTO forward_records (
            source_channel_id, source_message_id, recipient_id,
            forwarded_message_id, grouped_id, status, retry_count,
            error_message, created_at, updated_at
        ) VALUES (
            :source_channel_id, :source_message_id, :recipient_id,
            :forwarded_message_id, :grouped_id, :status, :retry_count,
            :error_message, :created_at, :updated_at
        )
        ON CONFLICT (source_channel_id, source_message_id, recipient_id) WHERE status != 'deleted'
        DO UPDATE SET
            forwarded_message_id = excluded.forwarded_message_id,
            grouped_id = excluded.grouped_id,
            status = excluded.status,
            retry_count = forward_records.retry_count + 1,
            error_message = excluded.error_message,
            updated_at = excluded.updated_at;
    `

	result, err := tx.NamedExecContext(ctx, query, record)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving forward record",
			"source_channel_id", record.SourceChannelID, "source_message_id", record.SourceMessageID,
			"recipient_id", record.RecipientID, "error", err)
		return fmt.Errorf("failed to save forward record (channel %d, message %d, recipient %d): %w",
			record.SourceChannelID, record.SourceMessageID, record.RecipientID, err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		record.ID = id
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving forward record",
			"source_channel_id", record.SourceChannelID, "source_message_id", record.SourceMessageID, "error", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction",
			"source_channel_id", record.SourceChannelID, "source_message_id", record.SourceMessageID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	// Successfully committed, set tx to nil to avoid rollback
	tx = nil

	s.logger.DebugContext(ctx, "Forward record saved successfully",
		"source_channel_id", record.SourceChannelID, "source_message_id", record.SourceMessageID,
		"recipient_id", record.RecipientID, "status", record.Status)
	return nil
}

// FindActiveByChannelAndMessageIDs retrieves the sent records for the given
// source messages. Repeated calls after MarkRecordsDeleted return nothing,
// which makes the deletion cascade idempotent.
func (s *sqlxStore) FindActiveByChannelAndMessageIDs(ctx context.Context, channelID int64, messageIDs []int64) ([]ForwardRecord, error) {
	if channelID == 0 {
		return nil, fmt.Errorf("channel_id cannot be zero")
	}
	if len(messageIDs) == 0 {
		return nil, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	query, args, err := sqlx.In(`
        SELECT id, created_at, updated_at, source_channel_id, source_message_id, recipient_id,
               forwarded_message_id, grouped_id, status, retry_count, error_message
        FROM forward_records
        WHERE source_channel_id = ? AND source_message_id IN (?) AND status = ?
        ORDER BY recipient_id ASC, source_message_id ASC;
    `, channelID, messageIDs, RecordStatusSent)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error building query for active records", "error", err)
		return nil, fmt.Errorf("failed to build query for active records: %w", err)
	}

	var records []ForwardRecord
	query = s.db.Rebind(query)
	err = s.db.SelectContext(ctx, &records, query, args...)

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching active records",
			"source_channel_id", channelID, "error", err)
		return nil, err
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting active forward records",
			"source_channel_id", channelID, "message_count", len(messageIDs), "error", err)
		return nil, fmt.Errorf("failed to get active records for channel %d: %w", channelID, err)
	}

	s.logger.DebugContext(ctx, "Fetched active forward records",
		"source_channel_id", channelID, "count", len(records))
	return records, nil
}

// MarkRecordsDeleted transitions the given records to the deleted status.
// Uses a transaction to ensure atomicity when updating multiple records.
func (s *sqlxStore) MarkRecordsDeleted(ctx context.Context, recordIDs []int64) error {
	if len(recordIDs) == 0 {
		return nil // Nothing to mark
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for marking records deleted", "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	now := time.Now().UTC()
	query, args, err := sqlx.In(`UPDATE forward_records SET status = ?, updated_at = ? WHERE id IN (?)`,
		RecordStatusDeleted, now, recordIDs)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error building query for marking records deleted", "error", err)
		return fmt.Errorf("failed to build query for marking records deleted: %w", err)
	}

	query = tx.Rebind(query)
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error marking records deleted", "error", err)
		return fmt.Errorf("failed to mark records deleted: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count", "error", err)
	} else if int(affected) != len(recordIDs) {
		s.logger.WarnContext(ctx, "Not all records were marked deleted",
			"requested", len(recordIDs),
			"affected", affected)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	// Successfully committed, set tx to nil to avoid rollback
	tx = nil

	s.logger.DebugContext(ctx, "Marked records deleted successfully",
		"count", len(recordIDs),
		"affected", affected)
	return nil
}

// PruneDeletedRecords removes deleted records whose last update is older than
// 'before'. Used by the scheduled cleanup task.
func (s *sqlxStore) PruneDeletedRecords(ctx context.Context, before time.Time) (int64, error) {
	if before.IsZero() {
		return 0, fmt.Errorf("prune cutoff cannot be zero")
	}

	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	query := `DELETE FROM forward_records WHERE status = ? AND updated_at < ?`
	result, err := s.db.ExecContext(ctx, query, RecordStatusDeleted, before.UTC())
	if err != nil {
		s.logger.ErrorContext(ctx, "Error pruning deleted records", "error", err)
		return 0, fmt.Errorf("failed to prune deleted records: %w", err)
	}

	count, _ := result.RowsAffected()
	s.logger.InfoContext(ctx, "Pruned deleted forward records", "count", count, "before", before)
	return count, nil
}

// SaveSession inserts or updates a session based on OwnerID.
// Uses a transaction to ensure atomicity.
func (s *sqlxStore) SaveSession(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("cannot save nil session")
	}
	if session.OwnerID == "" {
		return fmt.Errorf("session must have a non-empty owner_id")
	}

	now := time.Now().UTC()
	session.UpdatedAt = now
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.LastActive.IsZero() {
		session.LastActive = now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving session",
			"owner_id", session.OwnerID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		`SELECT 1 FROM sessions WHERE owner_id = ? LIMIT 1`, session.OwnerID)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.ErrorContext(ctx, "Error checking if session exists",
			"owner_id", session.OwnerID, "error", err)
		return fmt.Errorf("failed to check if session exists for owner %q: %w", session.OwnerID, err)
	}

	var result sql.Result

	if exists {
		query := `
            UPDATE sessions SET
                status = :status,
                auto_paused = :auto_paused,
                pause_reason = :pause_reason,
                flood_wait_until = :flood_wait_until,
                last_error = :last_error,
                last_active = :last_active,
                updated_at = :updated_at
            WHERE owner_id = :owner_id
        `
		result, err = tx.NamedExecContext(ctx, query, session)
	} else {
		query := `
            INSERT INTO sessions (
                owner_id, status, auto_paused, pause_reason,
                flood_wait_until, last_error, last_active, created_at, updated_at
            ) VALUES (
                :owner_id, :status, :auto_paused, :pause_reason,
                :flood_wait_until, :last_error, :last_active, :created_at, :updated_at
            )
        `
		result, err = tx.NamedExecContext(ctx, query, session)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving session",
			"owner_id", session.OwnerID, "error", err)
		return fmt.Errorf("failed to save session for owner %q: %w", session.OwnerID, err)
	}

	if !exists {
		id, err := result.LastInsertId()
		if err == nil {
			session.ID = id
		} else {
			s.logger.WarnContext(ctx, "Could not get last insert ID for session",
				"owner_id", session.OwnerID, "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction",
			"owner_id", session.OwnerID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	// Successfully committed, set tx to nil to avoid rollback
	tx = nil

	operation := "updated"
	if !exists {
		operation = "created"
	}
	s.logger.DebugContext(ctx, "Session saved successfully",
		"operation", operation, "owner_id", session.OwnerID, "status", session.Status)

	return nil
}

// GetSession retrieves a session by owner id. Returns nil, nil if not found.
func (s *sqlxStore) GetSession(ctx context.Context, ownerID string) (*Session, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id cannot be empty")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var session Session
	query := `SELECT id, created_at, updated_at, owner_id, status, auto_paused,
	                 pause_reason, flood_wait_until, last_error, last_active
	          FROM sessions WHERE owner_id = ?`

	err := s.db.GetContext(ctx, &session, query, ownerID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No session found", "owner_id", ownerID)
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching session",
			"owner_id", ownerID, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting session by owner", "owner_id", ownerID, "error", err)
		return nil, fmt.Errorf("failed to get session for owner %q: %w", ownerID, err)
	}

	return &session, nil
}

// FindSessionsReadyToResume retrieves auto-paused sessions whose flood wait
// deadline has passed at 'now'. Used by the scheduled resume sweep.
func (s *sqlxStore) FindSessionsReadyToResume(ctx context.Context, now time.Time) ([]Session, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var sessions []Session
	query := `SELECT id, created_at, updated_at, owner_id, status, auto_paused,
	                 pause_reason, flood_wait_until, last_error, last_active
	          FROM sessions
	          WHERE status = ? AND auto_paused = 1
	            AND flood_wait_until IS NOT NULL AND flood_wait_until <= ?
	          ORDER BY owner_id ASC`

	err := s.db.SelectContext(ctx, &sessions, query, SessionStatusPaused, now.UTC())

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching resumable sessions", "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting resumable sessions", "error", err)
		return nil, fmt.Errorf("failed to get resumable sessions: %w", err)
	}

	s.logger.DebugContext(ctx, "Fetched resumable sessions", "count", len(sessions))
	return sessions, nil
}

// SaveChannel inserts or updates a watched channel based on ChatID.
func (s *sqlxStore) SaveChannel(ctx context.Context, channel *Channel) error {
	if channel == nil {
		return fmt.Errorf("cannot save nil channel")
	}
	if channel.ChatID == 0 {
		return fmt.Errorf("channel must have a non-zero chat_id")
	}
	if channel.OwnerID == "" {
		return fmt.Errorf("channel must have a non-empty owner_id")
	}

	now := time.Now().UTC()
	channel.UpdatedAt = now
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = now
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for saving channel",
			"chat_id", channel.ChatID, "error", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	var exists bool
	err = tx.GetContext(ctx, &exists,
		`SELECT 1 FROM channels WHERE chat_id = ? LIMIT 1`, channel.ChatID)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.ErrorContext(ctx, "Error checking if channel exists",
			"chat_id", channel.ChatID, "error", err)
		return fmt.Errorf("failed to check if channel exists for chat %d: %w", channel.ChatID, err)
	}

	if exists {
		query := `
            UPDATE channels SET
                owner_id = :owner_id,
                title = :title,
                enabled = :enabled,
                updated_at = :updated_at
            WHERE chat_id = :chat_id
        `
		_, err = tx.NamedExecContext(ctx, query, channel)
	} else {
		query := `
            INSERT INTO channels (chat_id, owner_id, title, enabled, created_at, updated_at)
            VALUES (:chat_id, :owner_id, :title, :enabled, :created_at, :updated_at)
        `
		_, err = tx.NamedExecContext(ctx, query, channel)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving channel", "chat_id", channel.ChatID, "error", err)
		return fmt.Errorf("failed to save channel for chat %d: %w", channel.ChatID, err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "chat_id", channel.ChatID, "error", err)
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	// Successfully committed, set tx to nil to avoid rollback
	tx = nil

	s.logger.DebugContext(ctx, "Channel saved successfully",
		"chat_id", channel.ChatID, "owner_id", channel.OwnerID)
	return nil
}

// DeleteChannel removes a watched channel and its recipients in a single
// transaction. Returns false if no channel with that chat id existed.
func (s *sqlxStore) DeleteChannel(ctx context.Context, chatID int64) (bool, error) {
	if chatID == 0 {
		return false, fmt.Errorf("chat_id cannot be zero")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin transaction for deleting channel",
			"chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if tx != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				if !errors.Is(rollbackErr, sql.ErrTxDone) {
					s.logger.WarnContext(ctx, "Error rolling back transaction", "error", rollbackErr)
				}
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients WHERE channel_chat_id = ?`, chatID); err != nil {
		s.logger.ErrorContext(ctx, "Error deleting channel recipients", "chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to delete recipients for channel %d: %w", chatID, err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE chat_id = ?`, chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deleting channel", "chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to delete channel %d: %w", chatID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count", "chat_id", chatID, "error", err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.ErrorContext(ctx, "Failed to commit transaction", "chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	// Successfully committed, set tx to nil to avoid rollback
	tx = nil

	s.logger.DebugContext(ctx, "Channel deleted", "chat_id", chatID, "existed", affected > 0)
	return affected > 0, nil
}

// GetChannelByChatID retrieves a channel by chat id. Returns nil, nil if not found.
func (s *sqlxStore) GetChannelByChatID(ctx context.Context, chatID int64) (*Channel, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var channel Channel
	query := `SELECT id, created_at, updated_at, chat_id, owner_id, title, enabled
	          FROM channels WHERE chat_id = ?`

	err := s.db.GetContext(ctx, &channel, query, chatID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No channel found", "chat_id", chatID)
		return nil, nil

	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching channel",
			"chat_id", chatID, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting channel by chat ID", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get channel for chat %d: %w", chatID, err)
	}

	return &channel, nil
}

// ListChannelsByOwner retrieves the channels watched by one session.
func (s *sqlxStore) ListChannelsByOwner(ctx context.Context, ownerID string) ([]Channel, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner_id cannot be empty")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var channels []Channel
	query := `SELECT id, created_at, updated_at, chat_id, owner_id, title, enabled
	          FROM channels WHERE owner_id = ? ORDER BY chat_id ASC`

	err := s.db.SelectContext(ctx, &channels, query, ownerID)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while listing channels",
			"owner_id", ownerID, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error listing channels", "owner_id", ownerID, "error", err)
		return nil, fmt.Errorf("failed to list channels for owner %q: %w", ownerID, err)
	}

	s.logger.DebugContext(ctx, "Listed channels", "owner_id", ownerID, "count", len(channels))
	return channels, nil
}

// AddRecipient registers a destination chat for a channel. Returns false if
// the recipient was already registered.
func (s *sqlxStore) AddRecipient(ctx context.Context, channelChatID, chatID int64) (bool, error) {
	if channelChatID == 0 {
		return false, fmt.Errorf("channel_chat_id cannot be zero")
	}
	if chatID == 0 {
		return false, fmt.Errorf("chat_id cannot be zero")
	}

	now := time.Now().UTC()
	query := `
        INSERT INTO recipients (channel_chat_id, chat_id, enabled, created_at)
        VALUES (?, ?, 1, ?)
        ON CONFLICT (channel_chat_id, chat_id) DO NOTHING;
    `

	result, err := s.db.ExecContext(ctx, query, channelChatID, chatID, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error adding recipient",
			"channel_chat_id", channelChatID, "chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to add recipient %d to channel %d: %w", chatID, channelChatID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count", "error", err)
	}

	s.logger.DebugContext(ctx, "Recipient added",
		"channel_chat_id", channelChatID, "chat_id", chatID, "created", affected > 0)
	return affected > 0, nil
}

// RemoveRecipient unregisters a destination chat. Returns false if it was
// not registered.
func (s *sqlxStore) RemoveRecipient(ctx context.Context, channelChatID, chatID int64) (bool, error) {
	if channelChatID == 0 {
		return false, fmt.Errorf("channel_chat_id cannot be zero")
	}
	if chatID == 0 {
		return false, fmt.Errorf("chat_id cannot be zero")
	}

	query := `DELETE FROM recipients WHERE channel_chat_id = ? AND chat_id = ?`
	result, err := s.db.ExecContext(ctx, query, channelChatID, chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error removing recipient",
			"channel_chat_id", channelChatID, "chat_id", chatID, "error", err)
		return false, fmt.Errorf("failed to remove recipient %d from channel %d: %w", chatID, channelChatID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		s.logger.WarnContext(ctx, "Could not get affected row count", "error", err)
	}

	s.logger.DebugContext(ctx, "Recipient removed",
		"channel_chat_id", channelChatID, "chat_id", chatID, "existed", affected > 0)
	return affected > 0, nil
}

// ListRecipients retrieves the enabled recipients of a channel, ordered by
// chat id so delivery order is stable.
func (s *sqlxStore) ListRecipients(ctx context.Context, channelChatID int64) ([]Recipient, error) {
	if channelChatID == 0 {
		return nil, fmt.Errorf("channel_chat_id cannot be zero")
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var recipients []Recipient
	query := `SELECT id, created_at, channel_chat_id, chat_id, enabled
	          FROM recipients
	          WHERE channel_chat_id = ? AND enabled = 1
	          ORDER BY chat_id ASC`

	err := s.db.SelectContext(ctx, &recipients, query, channelChatID)

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "Context timeout or cancellation while listing recipients",
			"channel_chat_id", channelChatID, "error", err)
		return nil, err

	case err != nil:
		s.logger.ErrorContext(ctx, "Error listing recipients", "channel_chat_id", channelChatID, "error", err)
		return nil, fmt.Errorf("failed to list recipients for channel %d: %w", channelChatID, err)
	}

	s.logger.DebugContext(ctx, "Listed recipients", "channel_chat_id", channelChatID, "count", len(recipients))
	return recipients, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite.
	_, err := s.db.ExecContext(ctx, "VACUUM;")

	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)

	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)

	default:
		s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	}

	return nil
}
