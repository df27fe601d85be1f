// Package forward implements the delivery pipeline: buffering of media
// groups, fan-out of forwarding units to recipients under throttle control,
// and the deletion cascade for removed source messages.
package forward

import (
	"context"
	"time"
)

// Message identifies one message posted to a watched channel. GroupedID is
// the platform's media group identifier, zero for standalone messages.
type Message struct {
	ChannelID int64
	ID        int64
	GroupedID int64
}

// Unit is what gets delivered to a recipient in one platform call: either a
// single message or a complete media group.
type Unit struct {
	GroupedID int64
	Messages  []Message
}

// SingleUnit wraps one standalone message.
func SingleUnit(msg Message) Unit {
	return Unit{Messages: []Message{msg}}
}

// GroupUnit wraps the messages of one media group. Messages are expected in
// ascending message id order, as produced by the group buffer.
func GroupUnit(groupedID int64, messages []Message) Unit {
	return Unit{GroupedID: groupedID, Messages: messages}
}

// SendResult reports the platform message ids created by a successful send,
// parallel to Unit.Messages.
type SendResult struct {
	ForwardedIDs []int64
}

// SendFunc delivers a unit to one recipient. Implementations classify
// failures with the SendError helpers in this package.
type SendFunc func(ctx context.Context, recipientID int64, unit Unit) (SendResult, error)

// DeleteFunc removes previously forwarded messages from one recipient chat.
type DeleteFunc func(ctx context.Context, recipientID int64, forwardedIDs []int64) error

// Outcome is the per-recipient result of a delivery batch.
type Outcome struct {
	RecipientID int64
	Status      string
	Error       string
}

// BatchResult summarizes one fan-out of a unit to a recipient list.
// Sent + Failed + Skipped always equals Total. FloodWait is non-zero when
// the batch was halted by a platform rate limit.
type BatchResult struct {
	BatchID   string
	ChannelID int64
	Total     int
	Sent      int
	Failed    int
	Skipped   int
	FloodWait time.Duration
	Outcomes  []Outcome
}

// DeletionResult summarizes one deletion cascade. Total counts the records
// that were found live; Deleted and Failed partition them by outcome.
type DeletionResult struct {
	Total   int
	Deleted int
	Failed  int
}
