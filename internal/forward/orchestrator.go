package forward

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/chanrelay/chanrelay/internal/database"
	"github.com/chanrelay/chanrelay/internal/session"
	"github.com/chanrelay/chanrelay/internal/throttle"
)

// RecordStore is the persistence surface the orchestrator needs. The full
// database.Store satisfies it.
type RecordStore interface {
	SaveForwardRecord(ctx context.Context, record *database.ForwardRecord) error
	FindActiveByChannelAndMessageIDs(ctx context.Context, channelID int64, messageIDs []int64) ([]database.ForwardRecord, error)
	MarkRecordsDeleted(ctx context.Context, recordIDs []int64) error
}

// Orchestrator fans a forwarding unit out to recipients one at a time,
// consulting the throttle gates before every platform call, recording the
// outcome of each delivery, and pausing the session when the platform
// reports a rate limit.
type Orchestrator struct {
	throttle *throttle.Coordinator
	session  *session.State
	store    RecordStore
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator bound to one session.
func NewOrchestrator(coordinator *throttle.Coordinator, state *session.State, store RecordStore, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{
		throttle: coordinator,
		session:  state,
		store:    store,
		logger:   logger.With("component", "orchestrator", "session", state.OwnerID()),
	}
}

// ForwardToRecipients delivers one unit to every recipient in order.
// Recipients that cannot be admitted without blocking are skipped. A
// platform rate limit pauses the session, skips all remaining recipients,
// and halts the batch; any other failure only affects its own recipient.
// The returned result always accounts for every recipient.
func (o *Orchestrator) ForwardToRecipients(ctx context.Context, unit Unit, recipients []int64, send SendFunc) (*BatchResult, error) {
	if len(unit.Messages) == 0 {
		return nil, fmt.Errorf("cannot forward an empty unit")
	}
	if send == nil {
		return nil, fmt.Errorf("send callback is required")
	}

	result := &BatchResult{
		BatchID:   uuid.NewString(),
		ChannelID: unit.Messages[0].ChannelID,
		Total:     len(recipients),
	}

	log := o.logger.With("batch_id", result.BatchID, "channel_id", result.ChannelID)
	log.DebugContext(ctx, "starting delivery batch",
		"messages", len(unit.Messages), "grouped_id", unit.GroupedID, "recipients", len(recipients))

	for i, recipientID := range recipients {
		// Skip instead of block when the bucket is drained, so one busy
		// window doesn't back the whole pipeline up.
		if !o.throttle.CanAdmitNow() {
			o.recordOutcome(ctx, result, unit, recipientID, database.RecordStatusSkipped, nil, "rate capacity exhausted")
			continue
		}

		if err := o.throttle.Admit(ctx, recipientID); err != nil {
			return result, err
		}

		sendResult, err := send(ctx, recipientID, unit)
		if err == nil {
			o.recordOutcome(ctx, result, unit, recipientID, database.RecordStatusSent, sendResult.ForwardedIDs, "")
			o.session.RecordActivity()
			continue
		}

		o.recordOutcome(ctx, result, unit, recipientID, database.RecordStatusFailed, nil, err.Error())

		if wait, ok := FloodWait(err); ok {
			until := o.session.PauseForFloodWait(wait)
			result.FloodWait = wait
			log.WarnContext(ctx, "platform rate limit hit, pausing session and halting batch",
				"recipient_id", recipientID, "retry_after", wait, "resume_at", until,
				"remaining_recipients", len(recipients)-i-1)
			for _, remaining := range recipients[i+1:] {
				o.recordOutcome(ctx, result, unit, remaining, database.RecordStatusSkipped, nil, "session paused by flood wait")
			}
			break
		}

		if IsFatal(err) {
			o.session.MarkError(err.Error())
			log.ErrorContext(ctx, "session credentials rejected during delivery",
				"recipient_id", recipientID, "error", err)
			continue
		}

		log.WarnContext(ctx, "delivery to recipient failed",
			"recipient_id", recipientID, "kind", Classify(err).String(), "error", err)
	}

	log.InfoContext(ctx, "delivery batch finished",
		"total", result.Total, "sent", result.Sent, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

// recordOutcome updates the batch counters and persists one record per
// source message in the unit. forwardedIDs is parallel to unit.Messages and
// only set for successful sends.
func (o *Orchestrator) recordOutcome(ctx context.Context, result *BatchResult, unit Unit, recipientID int64, status string, forwardedIDs []int64, errMsg string) {
	switch status {
	case database.RecordStatusSent:
		result.Sent++
	case database.RecordStatusFailed:
		result.Failed++
	case database.RecordStatusSkipped:
		result.Skipped++
	}
	result.Outcomes = append(result.Outcomes, Outcome{
		RecipientID: recipientID,
		Status:      status,
		Error:       errMsg,
	})

	if status == database.RecordStatusSent && len(forwardedIDs) != len(unit.Messages) {
		o.logger.WarnContext(ctx, "forwarded id count does not match unit size",
			"expected", len(unit.Messages), "got", len(forwardedIDs))
	}

	for i, msg := range unit.Messages {
		record := &database.ForwardRecord{
			SourceChannelID: msg.ChannelID,
			SourceMessageID: msg.ID,
			RecipientID:     recipientID,
			Status:          status,
		}
		if unit.GroupedID != 0 {
			record.GroupedID = sql.NullInt64{Int64: unit.GroupedID, Valid: true}
		}
		if status == database.RecordStatusSent && i < len(forwardedIDs) {
			record.ForwardedMessageID = sql.NullInt64{Int64: forwardedIDs[i], Valid: true}
		}
		if errMsg != "" {
			record.ErrorMessage = sql.NullString{String: errMsg, Valid: true}
		}

		if err := o.store.SaveForwardRecord(ctx, record); err != nil {
			o.logger.ErrorContext(ctx, "failed to persist forward record",
				"source_message_id", msg.ID, "recipient_id", recipientID, "error", err)
		}
	}
}

// DeleteForwarded removes the forwarded copies of the given source messages
// from every recipient that got one. Records are grouped per recipient so
// each recipient costs a single throttled platform call. Already deleted
// records are not found again, which makes repeated calls no-ops.
func (o *Orchestrator) DeleteForwarded(ctx context.Context, channelID int64, messageIDs []int64, del DeleteFunc) (*DeletionResult, error) {
	if del == nil {
		return nil, fmt.Errorf("delete callback is required")
	}

	records, err := o.store.FindActiveByChannelAndMessageIDs(ctx, channelID, messageIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up forwarded copies: %w", err)
	}

	result := &DeletionResult{Total: len(records)}
	if len(records) == 0 {
		o.logger.DebugContext(ctx, "no forwarded copies to delete",
			"channel_id", channelID, "messages", len(messageIDs))
		return result, nil
	}

	// The lookup orders by recipient, so grouping preserves a stable
	// per-recipient order.
	perRecipient := make(map[int64][]database.ForwardRecord)
	order := make([]int64, 0)
	for _, record := range records {
		if _, seen := perRecipient[record.RecipientID]; !seen {
			order = append(order, record.RecipientID)
		}
		perRecipient[record.RecipientID] = append(perRecipient[record.RecipientID], record)
	}

	log := o.logger.With("channel_id", channelID)

	for _, recipientID := range order {
		group := perRecipient[recipientID]

		if err := o.throttle.Admit(ctx, recipientID); err != nil {
			return result, err
		}

		recordIDs := make([]int64, 0, len(group))
		forwardedIDs := make([]int64, 0, len(group))
		for _, record := range group {
			recordIDs = append(recordIDs, record.ID)
			if record.ForwardedMessageID.Valid {
				forwardedIDs = append(forwardedIDs, record.ForwardedMessageID.Int64)
			}
		}

		if err := del(ctx, recipientID, forwardedIDs); err != nil {
			result.Failed += len(group)
			log.WarnContext(ctx, "failed to delete forwarded copies, records stay live",
				"recipient_id", recipientID, "count", len(group), "error", err)
			continue
		}

		if err := o.store.MarkRecordsDeleted(ctx, recordIDs); err != nil {
			result.Failed += len(group)
			log.ErrorContext(ctx, "copies deleted but records could not be updated",
				"recipient_id", recipientID, "count", len(group), "error", err)
			continue
		}

		result.Deleted += len(group)
	}

	log.InfoContext(ctx, "deletion cascade finished",
		"total", result.Total, "deleted", result.Deleted, "failed", result.Failed)
	return result, nil
}
