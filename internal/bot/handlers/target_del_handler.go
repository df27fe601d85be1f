package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewTargetDelHandler returns a handler for the /relay_target_del command,
// which removes a recipient chat from a watched channel.
func NewTargetDelHandler(deps HandlerDeps) bot.HandlerFunc {
	return targetDelHandler{deps}.Handle
}

type targetDelHandler struct {
	deps HandlerDeps
}

func (h targetDelHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "target_del")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Target del handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 2 {
		reply(ctx, b, log, chatID, "Usage: /relay_target_del <channel_chat_id> <recipient_id>")
		return
	}

	channelChatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		reply(ctx, b, log, chatID, fmt.Sprintf("Invalid channel chat id %q.", args[0]))
		return
	}
	recipientID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		reply(ctx, b, log, chatID, fmt.Sprintf("Invalid recipient id %q.", args[1]))
		return
	}

	removed, err := h.deps.Store.RemoveRecipient(ctx, channelChatID, recipientID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to remove recipient", "error", err, "channel_id", channelChatID, "recipient_id", recipientID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if !removed {
		reply(ctx, b, log, chatID, fmt.Sprintf("Recipient %d does not receive channel %d.", recipientID, channelChatID))
		return
	}

	log.InfoContext(ctx, "Recipient removed", "channel_id", channelChatID, "recipient_id", recipientID)
	reply(ctx, b, log, chatID, fmt.Sprintf("➖ Recipient %d no longer receives channel %d.", recipientID, channelChatID))
}
