package handlers

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/chanrelay/chanrelay/internal/forward"
)

// NewChannelPostHandler returns the default update handler. It routes posts
// from watched channels into the owning session's forwarding engine and
// ignores everything else.
func NewChannelPostHandler(deps HandlerDeps) bot.HandlerFunc {
	return channelPostHandler{deps}.Handle
}

type channelPostHandler struct {
	deps HandlerDeps
}

func (h channelPostHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	post := update.ChannelPost
	if post == nil {
		return
	}

	log := h.deps.Logger.With("handler", "channel_post", "chat_id", post.Chat.ID, "message_id", post.ID)

	eng, err := h.deps.Engines.ForChannel(ctx, h.deps.Store, post.Chat.ID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to resolve engine for channel", "error", err)
		return
	}
	if eng == nil {
		log.DebugContext(ctx, "Post from unwatched channel, ignoring")
		return
	}
	if eng.OwnerID() != h.deps.Owner {
		// Another session's bot relays this channel.
		log.DebugContext(ctx, "Channel owned by another session", "owner", eng.OwnerID())
		return
	}

	msg := forward.Message{
		ChannelID: post.Chat.ID,
		ID:        int64(post.ID),
	}
	if post.MediaGroupID != "" {
		groupedID, err := strconv.ParseInt(post.MediaGroupID, 10, 64)
		if err != nil {
			log.WarnContext(ctx, "Unparseable media group id, forwarding as standalone", "media_group_id", post.MediaGroupID)
		} else {
			msg.GroupedID = groupedID
		}
	}

	if err := eng.HandleChannelPost(ctx, msg); err != nil {
		log.ErrorContext(ctx, "Failed to process channel post", "error", err)
	}
}
