package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewUnwatchHandler returns a handler for the /relay_unwatch command, which
// stops watching a channel and removes its recipients.
func NewUnwatchHandler(deps HandlerDeps) bot.HandlerFunc {
	return unwatchHandler{deps}.Handle
}

type unwatchHandler struct {
	deps HandlerDeps
}

func (h unwatchHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "unwatch")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Unwatch handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, b, log, chatID, "Usage: /relay_unwatch <channel_chat_id>")
		return
	}

	channelChatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		reply(ctx, b, log, chatID, fmt.Sprintf("Invalid channel chat id %q.", args[0]))
		return
	}

	channel, err := h.deps.Store.GetChannelByChatID(ctx, channelChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up channel", "error", err, "channel_id", channelChatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if channel != nil && channel.OwnerID != h.deps.Owner {
		reply(ctx, b, log, chatID,
			fmt.Sprintf("Channel %d belongs to session %s, use that session's bot.", channelChatID, channel.OwnerID))
		return
	}

	removed, err := h.deps.Store.DeleteChannel(ctx, channelChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to delete channel", "error", err, "channel_id", channelChatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if !removed {
		reply(ctx, b, log, chatID, fmt.Sprintf("Channel %d is not watched.", channelChatID))
		return
	}

	log.InfoContext(ctx, "Channel removed from forwarding", "channel_id", channelChatID, "session", h.deps.Owner)
	reply(ctx, b, log, chatID, fmt.Sprintf("Stopped watching channel %d. Its recipient list was removed.", channelChatID))
}
