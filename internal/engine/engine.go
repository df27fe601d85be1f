// Package engine assembles the per-session forwarding pipeline: throttle
// gates, media group buffer, and delivery orchestrator, bound to one
// session's platform sender. Engines are created per configured session and
// never shared.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/chanrelay/chanrelay/internal/database"
	"github.com/chanrelay/chanrelay/internal/forward"
	"github.com/chanrelay/chanrelay/internal/session"
	"github.com/chanrelay/chanrelay/internal/throttle"
)

// Sender performs the platform calls for one session.
type Sender interface {
	Send(ctx context.Context, recipientID int64, unit forward.Unit) (forward.SendResult, error)
	Delete(ctx context.Context, recipientID int64, forwardedIDs []int64) error
}

// Options holds the pacing and retry knobs of one engine.
type Options struct {
	RateCapacity   int
	RateInterval   time.Duration
	MinSendDelay   time.Duration
	MaxSendDelay   time.Duration
	RecipientDelay time.Duration
	GroupWindow    time.Duration
	RetryAttempts  uint
	RetryBase      time.Duration
	RetryCeiling   time.Duration
}

// StatusReport is a point-in-time view of one engine for status commands.
type StatusReport struct {
	Session       session.Snapshot
	Available     int
	Capacity      int
	PendingGroups int
}

// Engine drives deliveries for one session end to end. Units are processed
// one at a time; media groups are buffered until complete and then delivered
// as a single unit.
type Engine struct {
	runCtx      context.Context
	logger      *slog.Logger
	store       database.Store
	sender      Sender
	state       *session.State
	coordinator *throttle.Coordinator
	orch        *forward.Orchestrator
	buffer      *forward.GroupBuffer
	opts        Options

	// deliverMu serializes unit delivery so the update handler and the
	// group flush timer never interleave batches.
	deliverMu chan struct{}
}

// New creates an engine for one session. runCtx bounds background work
// started by the engine itself, such as media group flushes.
func New(runCtx context.Context, state *session.State, store database.Store, sender Sender, opts Options, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = logger.With("component", "engine", "session", state.OwnerID())

	coordinator := throttle.NewCoordinator(
		throttle.NewLimiter(opts.RateCapacity, opts.RateInterval, opts.MinSendDelay, opts.MaxSendDelay),
		throttle.NewRecipientThrottle(opts.RecipientDelay),
	)

	e := &Engine{
		runCtx:      runCtx,
		logger:      logger,
		store:       store,
		sender:      sender,
		state:       state,
		coordinator: coordinator,
		opts:        opts,
		deliverMu:   make(chan struct{}, 1),
	}
	e.orch = forward.NewOrchestrator(coordinator, state, store, logger)
	e.buffer = forward.NewGroupBuffer(opts.GroupWindow, e.flushGroup)
	return e
}

// OwnerID returns the session identifier this engine serves.
func (e *Engine) OwnerID() string {
	return e.state.OwnerID()
}

// Status reports the session state and throttle headroom.
func (e *Engine) Status() StatusReport {
	return StatusReport{
		Session:       e.state.Snapshot(),
		Available:     e.coordinator.Available(),
		Capacity:      e.opts.RateCapacity,
		PendingGroups: e.buffer.Pending(),
	}
}

// HandleChannelPost routes one message from a watched channel. Standalone
// messages are delivered immediately; media group members are buffered until
// the group is complete. Messages are dropped while the session is not
// active.
func (e *Engine) HandleChannelPost(ctx context.Context, msg forward.Message) error {
	if !e.state.IsActive() {
		e.logger.DebugContext(ctx, "session not active, dropping message",
			"status", e.state.Status(), "channel_id", msg.ChannelID, "message_id", msg.ID)
		return nil
	}

	if msg.GroupedID != 0 {
		e.buffer.Add(msg)
		return nil
	}

	return e.deliver(ctx, forward.SingleUnit(msg))
}

// flushGroup runs on the buffer's timer goroutine once a media group is
// complete.
func (e *Engine) flushGroup(channelID, groupedID int64, messages []forward.Message) {
	if !e.state.IsActive() {
		e.logger.Debug("session not active, dropping media group",
			"channel_id", channelID, "grouped_id", groupedID, "members", len(messages))
		return
	}

	if err := e.deliver(e.runCtx, forward.GroupUnit(groupedID, messages)); err != nil {
		e.logger.Error("failed to deliver media group",
			"channel_id", channelID, "grouped_id", groupedID, "error", err)
	}
}

func (e *Engine) deliver(ctx context.Context, unit forward.Unit) error {
	select {
	case e.deliverMu <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.deliverMu }()

	channelID := unit.Messages[0].ChannelID

	recipients, err := e.store.ListRecipients(ctx, channelID)
	if err != nil {
		return fmt.Errorf("failed to list recipients for channel %d: %w", channelID, err)
	}
	if len(recipients) == 0 {
		e.logger.DebugContext(ctx, "channel has no recipients", "channel_id", channelID)
		return nil
	}

	targets := make([]int64, 0, len(recipients))
	for _, recipient := range recipients {
		targets = append(targets, recipient.ChatID)
	}

	statusBefore := e.state.Status()
	_, err = e.orch.ForwardToRecipients(ctx, unit, targets, e.send)
	if e.state.Status() != statusBefore {
		e.persistState(ctx)
	}
	return err
}

// send wraps the platform sender with in-place retries for transient
// failures. Rate limits, unavailable recipients, and fatal errors surface
// immediately for the orchestrator to dispatch on.
func (e *Engine) send(ctx context.Context, recipientID int64, unit forward.Unit) (forward.SendResult, error) {
	var result forward.SendResult

	err := e.coordinator.Retry(ctx, func(ctx context.Context) error {
		sent, err := e.sender.Send(ctx, recipientID, unit)
		if err != nil {
			return err
		}
		result = sent
		return nil
	}, forward.IsTransient, e.opts.RetryAttempts, e.opts.RetryBase, e.opts.RetryCeiling)

	return result, err
}

// DeleteForwarded removes the forwarded copies of the given source messages
// from all recipients.
func (e *Engine) DeleteForwarded(ctx context.Context, channelID int64, messageIDs []int64) (*forward.DeletionResult, error) {
	return e.orch.DeleteForwarded(ctx, channelID, messageIDs, e.sender.Delete)
}

// Pause suspends forwarding at an operator's request and persists the state.
func (e *Engine) Pause(ctx context.Context, reason string) session.Snapshot {
	e.state.PauseManually(reason)
	e.persistState(ctx)
	return e.state.Snapshot()
}

// TryResume attempts to reactivate the session. On success the throttle
// state is reset so the session starts from full capacity, and the new state
// is persisted. When refused because of a pending flood wait, the remaining
// wait is returned.
func (e *Engine) TryResume(ctx context.Context) (bool, time.Duration) {
	resumed, remaining := e.state.TryResume()
	if resumed {
		e.coordinator.Reset()
		e.persistState(ctx)
		e.logger.InfoContext(ctx, "session resumed")
	}
	return resumed, remaining
}

// persistState writes the current session snapshot through to the store.
func (e *Engine) persistState(ctx context.Context) {
	record := SnapshotToRecord(e.state.Snapshot())
	if err := e.store.SaveSession(ctx, record); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist session state", "error", err)
	}
}

// Close stops the group buffer, dropping incomplete groups.
func (e *Engine) Close() {
	e.buffer.Stop()
}

// SnapshotToRecord converts in-memory session state to its database row.
func SnapshotToRecord(snap session.Snapshot) *database.Session {
	record := &database.Session{
		OwnerID:    snap.OwnerID,
		Status:     string(snap.Status),
		AutoPaused: snap.AutoPaused,
		LastActive: snap.LastActive,
	}
	if snap.PauseReason != "" {
		record.PauseReason = sql.NullString{String: snap.PauseReason, Valid: true}
	}
	if !snap.FloodWaitUntil.IsZero() {
		record.FloodWaitUntil = sql.NullTime{Time: snap.FloodWaitUntil.UTC(), Valid: true}
	}
	if snap.LastError != "" {
		record.LastError = sql.NullString{String: snap.LastError, Valid: true}
	}
	return record
}

// RecordToSnapshot converts a persisted session row back to session state.
func RecordToSnapshot(record *database.Session) session.Snapshot {
	snap := session.Snapshot{
		OwnerID:    record.OwnerID,
		Status:     session.Status(record.Status),
		AutoPaused: record.AutoPaused,
		LastActive: record.LastActive,
	}
	if record.PauseReason.Valid {
		snap.PauseReason = record.PauseReason.String
	}
	if record.FloodWaitUntil.Valid {
		snap.FloodWaitUntil = record.FloodWaitUntil.Time
	}
	if record.LastError.Valid {
		snap.LastError = record.LastError.String
	}
	return snap
}
