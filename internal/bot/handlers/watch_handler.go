package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chanrelay/chanrelay/internal/database"
)

// NewWatchHandler returns a handler for the /relay_watch command, which
// registers a source channel for this session.
func NewWatchHandler(deps HandlerDeps) bot.HandlerFunc {
	return watchHandler{deps}.Handle
}

type watchHandler struct {
	deps HandlerDeps
}

func (h watchHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "watch")

	if update.Message == nil || update.Message.From == nil {
		log.ErrorContext(ctx, "Watch handler called with nil Message or From", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID

	args := commandArgs(update.Message.Text)
	if len(args) < 1 {
		reply(ctx, b, log, chatID, "Usage: /relay_watch <channel_chat_id> [title]")
		return
	}

	channelChatID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || channelChatID == 0 {
		reply(ctx, b, log, chatID, fmt.Sprintf("Invalid channel chat id %q. Channel ids are numeric, usually negative.", args[0]))
		return
	}

	existing, err := h.deps.Store.GetChannelByChatID(ctx, channelChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to look up channel", "error", err, "channel_id", channelChatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}
	if existing != nil && existing.OwnerID != h.deps.Owner {
		reply(ctx, b, log, chatID,
			fmt.Sprintf("Channel %d is already watched by session %s.", channelChatID, existing.OwnerID))
		return
	}

	channel := &database.Channel{
		ChatID:  channelChatID,
		OwnerID: h.deps.Owner,
		Title:   strings.Join(args[1:], " "),
		Enabled: true,
	}
	if existing != nil && channel.Title == "" {
		channel.Title = existing.Title
	}

	if err := h.deps.Store.SaveChannel(ctx, channel); err != nil {
		log.ErrorContext(ctx, "Failed to save channel", "error", err, "channel_id", channelChatID)
		reply(ctx, b, log, chatID, h.deps.Config.Messages.GeneralError)
		return
	}

	log.InfoContext(ctx, "Channel registered for forwarding", "channel_id", channelChatID, "session", h.deps.Owner)
	reply(ctx, b, log, chatID,
		fmt.Sprintf("👁 Watching channel %d. Add recipients with /relay_target_add %d <recipient_id>.", channelChatID, channelChatID))
}
