package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chanrelay/chanrelay/internal/session"
)

// NewResumeHandler returns a handler for the /relay_resume command.
func NewResumeHandler(deps HandlerDeps) bot.HandlerFunc {
	return resumeHandler{deps}.Handle
}

type resumeHandler struct {
	deps HandlerDeps
}

func (h resumeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "resume")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Resume handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	eng, ok := h.deps.engine()
	if !ok {
		log.ErrorContext(ctx, "No engine registered for session", "session", h.deps.Owner)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	resumed, remaining := eng.TryResume(ctx)
	if resumed {
		log.InfoContext(ctx, "Session resumed by operator", "session", h.deps.Owner)
		reply(ctx, b, log, chatID, "▶️ Forwarding resumed.")
		return
	}

	if remaining > 0 {
		reply(ctx, b, log, chatID,
			fmt.Sprintf("⏳ Flood wait still in effect, %s remaining. The session resumes automatically once it elapses.",
				remaining.Round(time.Second)))
		return
	}

	switch eng.Status().Session.Status {
	case session.StatusActive:
		reply(ctx, b, log, chatID, "Session is already active.")
	case session.StatusError:
		reply(ctx, b, log, chatID, "Session is in the error state and must be restarted. Check /relay_status for the last error.")
	default:
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
	}
}
