package handlers

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewTargetAddHandler returns a handler for the /relay_target_add command,
// which adds a recipient chat to a watched channel.
func NewTargetAddHandler(deps HandlerDeps) bot.HandlerFunc {
	return targetAddHandler{deps}.Handle
}

type targetAddHandler struct {
	deps HandlerDeps
}

func (h targetAddHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "target_add")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Target add handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 2 {
		reply(ctx, b, log, chatID, "Usage: /relay_target_add <channel_chat_id> <recipient_id>")
		return
	}

	channelChatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		reply(ctx, b, log, chatID, fmt.Sprintf("Invalid channel chat id %q.", args[0]))
		return
	}
	recipientID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || recipientID == 0 {
		reply(ctx, b, log, chatID, fmt.Sprintf("Invalid recipient id %q.", args[1]))
		return
	}
	if recipientID == channelChatID {
		reply(ctx, b, log, chatID, "A channel cannot be its own recipient.")
		return
	}

	channel, err := h.deps.Store.GetChannelByChatID(ctx, channelChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up channel", "error", err, "channel_id", channelChatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if channel == nil {
		reply(ctx, b, log, chatID,
			fmt.Sprintf("Channel %d is not watched. Register it first with /relay_watch %d.", channelChatID, channelChatID))
		return
	}
	if channel.OwnerID != h.deps.Owner {
		reply(ctx, b, log, chatID,
			fmt.Sprintf("Channel %d belongs to session %s, use that session's bot.", channelChatID, channel.OwnerID))
		return
	}

	added, err := h.deps.Store.AddRecipient(ctx, channelChatID, recipientID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to add recipient", "error", err, "channel_id", channelChatID, "recipient_id", recipientID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if !added {
		reply(ctx, b, log, chatID, fmt.Sprintf("Recipient %d already receives channel %d.", recipientID, channelChatID))
		return
	}

	log.InfoContext(ctx, "Recipient added", "channel_id", channelChatID, "recipient_id", recipientID)
	reply(ctx, b, log, chatID, fmt.Sprintf("➕ Recipient %d now receives channel %d.", recipientID, channelChatID))
}
