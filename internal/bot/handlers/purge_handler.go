package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewPurgeHandler returns a handler for the /relay_purge command, which
// deletes the forwarded copies of source messages from every recipient.
func NewPurgeHandler(deps HandlerDeps) bot.HandlerFunc {
	return purgeHandler{deps}.Handle
}

type purgeHandler struct {
	deps HandlerDeps
}

func (h purgeHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "purge")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Purge handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) < 2 {
		reply(ctx, b, log, chatID, "Usage: /relay_purge <channel_chat_id> <message_id> [message_id...]")
		return
	}

	channelChatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		reply(ctx, b, log, chatID, fmt.Sprintf("Invalid channel chat id %q.", args[0]))
		return
	}

	messageIDs := make([]int64, 0, len(args)-1)
	for _, arg := range args[1:] {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || id <= 0 {
			reply(ctx, b, log, chatID, fmt.Sprintf("Invalid message id %q.", arg))
			return
		}
		messageIDs = append(messageIDs, id)
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

	eng, ok := h.deps.engine()
	if !ok {
		log.ErrorContext(ctx, "No engine registered for session", "session", h.deps.Owner)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	result, err := eng.DeleteForwarded(ctx, channelChatID, messageIDs)
	if err != nil {
		log.ErrorContext(ctx, "Deletion cascade failed", "error", err, "channel_id", channelChatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	if result.Total == 0 {
		reply(ctx, b, log, chatID, "No live forwarded copies found for those messages.")
		return
	}

	log.InfoContext(ctx, "Deletion cascade finished",
		"channel_id", channelChatID, "total", result.Total, "deleted", result.Deleted, "failed", result.Failed)

	text := fmt.Sprintf("🗑 Deleted %d of %d forwarded copies.", result.Deleted, result.Total)
	if result.Failed > 0 {
		text += fmt.Sprintf(" %d failed and stay tracked; run the command again to retry.", result.Failed)
	}
	reply(ctx, b, log, chatID, text)
}
