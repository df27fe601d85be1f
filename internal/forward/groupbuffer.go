package forward

import (
	"sort"
	"sync"
	"time"
)

// FlushFunc receives a completed media group, messages in ascending message
// id order. It runs on a timer goroutine.
type FlushFunc func(channelID, groupedID int64, messages []Message)

type groupKey struct {
	channelID int64
	groupedID int64
}

type pendingGroup struct {
	messages []Message
	timer    *time.Timer
	gen      int
}

// GroupBuffer collects the messages of a media group as they arrive one by
// one and flushes the complete group once no new member has arrived for a
// full debounce window. Groups from different channels, or with different
// group ids, are buffered independently.
type GroupBuffer struct {
	window time.Duration
	flush  FlushFunc

	mu      sync.Mutex
	pending map[groupKey]*pendingGroup
	stopped bool
}

// NewGroupBuffer creates a buffer that flushes a group after 'window' of
// silence. A non-positive window falls back to one second.
func NewGroupBuffer(window time.Duration, flush FlushFunc) *GroupBuffer {
	if window <= 0 {
		window = time.Second
	}
	return &GroupBuffer{
		window:  window,
		flush:   flush,
		pending: make(map[groupKey]*pendingGroup),
	}
}

// Add appends a message to its group's pending buffer and restarts the
// group's debounce timer, so the flush fires one window after the last
// arrival. Messages added after Stop are dropped.
func (b *GroupBuffer) Add(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}

	key := groupKey{channelID: msg.ChannelID, groupedID: msg.GroupedID}
	group := b.pending[key]
	if group == nil {
		group = &pendingGroup{}
		b.pending[key] = group
	}

	group.messages = append(group.messages, msg)
	group.gen++
	gen := group.gen

	// The generation guard makes a stale timer that already fired but lost
	// the race against this Add a no-op.
	if group.timer != nil {
		group.timer.Stop()
	}
	group.timer = time.AfterFunc(b.window, func() {
		b.fire(key, gen)
	})
}

func (b *GroupBuffer) fire(key groupKey, gen int) {
	b.mu.Lock()
	group := b.pending[key]
	if group == nil || group.gen != gen || b.stopped {
		b.mu.Unlock()
		return
	}
	delete(b.pending, key)
	messages := group.messages
	b.mu.Unlock()

	sort.Slice(messages, func(i, j int) bool {
		return messages[i].ID < messages[j].ID
	})

	b.flush(key.channelID, key.groupedID, messages)
}

// Pending reports how many groups are currently buffered.
func (b *GroupBuffer) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Stop cancels all pending timers and drops buffered groups without
// flushing them.
func (b *GroupBuffer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.stopped = true

	for _, group := range b.pending {
		if group.timer != nil {
			group.timer.Stop()
		}
	}
	b.pending = nil
}
