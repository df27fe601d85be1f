package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"

	"github.com/chanrelay/chanrelay/internal/forward"
)

// fallbackFloodWait is used when the platform reports a rate limit without a
// retry_after value.
const fallbackFloodWait = 30 * time.Second

// Sender performs the platform calls for one session's engine: forwarding
// units to recipient chats and deleting forwarded copies.
type Sender struct {
	bot    *bot.Bot
	logger *slog.Logger
}

// NewSender wraps a bot instance for use by a forwarding engine.
func NewSender(b *bot.Bot, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{bot: b, logger: logger.With("component", "telegram_sender")}
}

// Send forwards a unit to one recipient. Media groups go through the batch
// forward call so the album arrives grouped on the recipient side.
func (s *Sender) Send(ctx context.Context, recipientID int64, unit forward.Unit) (forward.SendResult, error) {
	if len(unit.Messages) == 0 {
		return forward.SendResult{}, forward.Fatal(errors.New("empty forwarding unit"))
	}

	sourceChatID := unit.Messages[0].ChannelID

	if len(unit.Messages) == 1 {
		msg, err := s.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
			ChatID:     recipientID,
			FromChatID: sourceChatID,
			MessageID:  int(unit.Messages[0].ID),
		})
		if err != nil {
			return forward.SendResult{}, translateSendError(err)
		}
		return forward.SendResult{ForwardedIDs: []int64{int64(msg.ID)}}, nil
	}

	messageIDs := make([]int, 0, len(unit.Messages))
	for _, msg := range unit.Messages {
		messageIDs = append(messageIDs, int(msg.ID))
	}

	forwarded, err := s.bot.ForwardMessages(ctx, &bot.ForwardMessagesParams{
		ChatID:     recipientID,
		FromChatID: sourceChatID,
		MessageIDs: messageIDs,
	})
	if err != nil {
		return forward.SendResult{}, translateSendError(err)
	}
	if len(forwarded) != len(unit.Messages) {
		return forward.SendResult{}, forward.Transient(
			fmt.Errorf("platform forwarded %d of %d group messages", len(forwarded), len(unit.Messages)))
	}

	result := forward.SendResult{ForwardedIDs: make([]int64, 0, len(forwarded))}
	for _, fwd := range forwarded {
		result.ForwardedIDs = append(result.ForwardedIDs, int64(fwd.ID))
	}
	return result, nil
}

// Delete removes forwarded copies from one recipient chat.
func (s *Sender) Delete(ctx context.Context, recipientID int64, forwardedIDs []int64) error {
	if len(forwardedIDs) == 0 {
		return nil
	}

	messageIDs := make([]int, 0, len(forwardedIDs))
	for _, id := range forwardedIDs {
		messageIDs = append(messageIDs, int(id))
	}

	ok, err := s.bot.DeleteMessages(ctx, &bot.DeleteMessagesParams{
		ChatID:     recipientID,
		MessageIDs: messageIDs,
	})
	if err != nil {
		return translateSendError(err)
	}
	if !ok {
		return forward.Transient(errors.New("platform refused message deletion"))
	}
	return nil
}

// translateSendError maps go-telegram/bot errors onto the failure kinds the
// delivery pipeline dispatches on.
func translateSendError(err error) error {
	if err == nil {
		return nil
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		wait := time.Duration(tooMany.RetryAfter) * time.Second
		if wait <= 0 {
			wait = fallbackFloodWait
		}
		return forward.RateLimited(wait, err)
	}

	switch {
	case errors.Is(err, bot.ErrorTooManyRequests):
		// Rate limited without a retry_after value.
		return forward.RateLimited(fallbackFloodWait, err)
	case errors.Is(err, bot.ErrorForbidden),
		errors.Is(err, bot.ErrorBadRequest),
		errors.Is(err, bot.ErrorNotFound):
		// The recipient chat rejects us; other recipients are unaffected.
		return forward.Unavailable(err)
	case errors.Is(err, bot.ErrorUnauthorized):
		// Invalid or revoked token, the whole session is unusable.
		return forward.Fatal(err)
	default:
		return forward.Transient(err)
	}
}
