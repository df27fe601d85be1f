package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chanrelay/chanrelay/internal/session"
)

// NewStatusHandler returns a handler for the /relay_status command.
func NewStatusHandler(deps HandlerDeps) bot.HandlerFunc {
	return statusHandler{deps}.Handle
}

type statusHandler struct {
	deps HandlerDeps
}

func (h statusHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "status")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Status handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	eng, ok := h.deps.engine()
	if !ok {
		log.ErrorContext(ctx, "No engine registered for session", "session", h.deps.Owner)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	report := eng.Status()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Session %s: %s\n", report.Session.OwnerID, report.Session.Status)

	switch {
	case report.Session.Status == session.StatusPaused && !report.Session.FloodWaitUntil.IsZero():
		remaining := time.Until(report.Session.FloodWaitUntil).Round(time.Second)
		if remaining > 0 {
			fmt.Fprintf(&sb, "Flood wait: %s remaining\n", remaining)
		} else {
			sb.WriteString("Flood wait elapsed, awaiting automatic resume\n")
		}
	case report.Session.Status == session.StatusPaused && report.Session.PauseReason != "":
		fmt.Fprintf(&sb, "Pause reason: %s\n", report.Session.PauseReason)
	case report.Session.Status == session.StatusError && report.Session.LastError != "":
		fmt.Fprintf(&sb, "Last error: %s\n", report.Session.LastError)
	}

	fmt.Fprintf(&sb, "Throttle: %d/%d sends available\n", report.Available, report.Capacity)
	if report.PendingGroups > 0 {
		fmt.Fprintf(&sb, "Buffered media groups: %d\n", report.PendingGroups)
	}
	fmt.Fprintf(&sb, "Last activity: %s\n", report.Session.LastActive.Format(time.RFC3339))

	channels, err := h.deps.Store.ListChannelsByOwner(ctx, h.deps.Owner)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list channels", "error", err, "session", h.deps.Owner)
	} else if len(channels) == 0 {
		sb.WriteString("No channels watched. Use /relay_watch to add one.")
	} else {
		fmt.Fprintf(&sb, "Watched channels (%d):\n", len(channels))
		for _, channel := range channels {
			recipients, err := h.deps.Store.ListRecipients(ctx, channel.ChatID)
			if err != nil {
				log.ErrorContext(ctx, "Failed to list recipients", "error", err, "channel_id", channel.ChatID)
				continue
			}
			title := channel.Title
			if title == "" {
				title = "untitled"
			}
			fmt.Fprintf(&sb, "  %d (%s): %d recipients\n", channel.ChatID, title, len(recipients))
		}
	}

	reply(ctx, b, log, chatID, sb.String())
}
