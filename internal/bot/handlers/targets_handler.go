package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewTargetsHandler returns a handler for the /relay_targets command, which
// lists the recipients of a watched channel.
func NewTargetsHandler(deps HandlerDeps) bot.HandlerFunc {
	return targetsHandler{deps}.Handle
}

type targetsHandler struct {
	deps HandlerDeps
}

func (h targetsHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "targets")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Targets handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) != 1 {
		reply(ctx, b, log, chatID, "Usage: /relay_targets <channel_chat_id>")
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
	if channel == nil {
		reply(ctx, b, log, chatID, fmt.Sprintf("Channel %d is not watched.", channelChatID))
		return
	}

	recipients, err := h.deps.Store.ListRecipients(ctx, channelChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list recipients", "error", err, "channel_id", channelChatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	if len(recipients) == 0 {
		reply(ctx, b, log, chatID,
			fmt.Sprintf("Channel %d has no recipients. Add one with /relay_target_add %d <recipient_id>.", channelChatID, channelChatID))
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recipients of channel %d (%d):\n", channelChatID, len(recipients))
	for _, recipient := range recipients {
		fmt.Fprintf(&sb, "  %d\n", recipient.ChatID)
	}
	reply(ctx, b, log, chatID, sb.String())
}
