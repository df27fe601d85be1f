package handlers

import (
	"context"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chanrelay/chanrelay/internal/session"
)

// NewPauseHandler returns a handler for the /relay_pause command.
func NewPauseHandler(deps HandlerDeps) bot.HandlerFunc {
	return pauseHandler{deps}.Handle
}

type pauseHandler struct {
	deps HandlerDeps
}

func (h pauseHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "pause")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Pause handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	eng, ok := h.deps.engine()
	if !ok {
		log.ErrorContext(ctx, "No engine registered for session", "session", h.deps.Owner)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	reason := strings.Join(commandArgs(update.Message.Text), " ")
	if reason == "" {
		reason = "operator request"
	}

	snap := eng.Pause(ctx, reason)
	if snap.Status == session.StatusError {
		reply(ctx, b, log, chatID, "Session is in the error state and cannot be paused. Check /relay_status.")
		return
	}

	log.InfoContext(ctx, "Session paused by operator", "session", h.deps.Owner, "reason", reason)
	reply(ctx, b, log, chatID, "⏸ Forwarding paused. Buffered media groups will be dropped while paused.")
}
