package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chanrelay/chanrelay/internal/database"
	"github.com/chanrelay/chanrelay/internal/engine"
	"github.com/chanrelay/chanrelay/internal/forward"
	"github.com/chanrelay/chanrelay/internal/session"
)

// fakeStore is an in-memory database.Store for engine tests.
type fakeStore struct {
	mu         sync.Mutex
	recipients map[int64][]database.Recipient
	channels   map[int64]*database.Channel
	records    []database.ForwardRecord
	sessions   map[string]database.Session
	saves      int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		recipients: make(map[int64][]database.Recipient),
		channels:   make(map[int64]*database.Channel),
		sessions:   make(map[string]database.Session),
	}
}

func (s *fakeStore) addRecipients(channelChatID int64, chatIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, chatID := range chatIDs {
		s.recipients[channelChatID] = append(s.recipients[channelChatID], database.Recipient{
			ChannelChatID: channelChatID,
			ChatID:        chatID,
			Enabled:       true,
		})
	}
}

func (s *fakeStore) recordsByStatus(status string) []database.ForwardRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []database.ForwardRecord
	for _, record := range s.records {
		if record.Status == status {
			out = append(out, record)
		}
	}
	return out
}

func (s *fakeStore) savedSession(ownerID string) (database.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ownerID]
	return sess, ok
}

// waitForRecords polls until 'want' records with the given status exist.
// Deliveries triggered by the group buffer run on a timer goroutine, so the
// records land shortly after the send itself.
func (s *fakeStore) waitForRecords(t *testing.T, status string, want int, timeout time.Duration) []database.ForwardRecord {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		records := s.recordsByStatus(status)
		if len(records) >= want {
			return records
		}
		if time.Now().After(deadline) {
			t.Fatalf("%d %s records after %v, want %d", len(records), status, timeout, want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *fakeStore) Ping(context.Context) error { return nil }

func (s *fakeStore) SaveForwardRecord(_ context.Context, record *database.ForwardRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *record
	stored.ID = int64(len(s.records) + 1)
	s.records = append(s.records, stored)
	return nil
}

func (s *fakeStore) FindActiveByChannelAndMessageIDs(_ context.Context, channelID int64, messageIDs []int64) ([]database.ForwardRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[int64]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}
	var found []database.ForwardRecord
	for _, record := range s.records {
		if record.SourceChannelID == channelID && wanted[record.SourceMessageID] && record.Status == database.RecordStatusSent {
			found = append(found, record)
		}
	}
	return found, nil
}

func (s *fakeStore) MarkRecordsDeleted(_ context.Context, recordIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int64]bool, len(recordIDs))
	for _, id := range recordIDs {
		ids[id] = true
	}
	for i := range s.records {
		if ids[s.records[i].ID] {
			s.records[i].Status = database.RecordStatusDeleted
		}
	}
	return nil
}

func (s *fakeStore) PruneDeletedRecords(context.Context, time.Time) (int64, error) { return 0, nil }

func (s *fakeStore) SaveSession(_ context.Context, sess *database.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.OwnerID] = *sess
	s.saves++
	return nil
}

func (s *fakeStore) GetSession(_ context.Context, ownerID string) (*database.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[ownerID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *fakeStore) FindSessionsReadyToResume(context.Context, time.Time) ([]database.Session, error) {
	return nil, nil
}

func (s *fakeStore) SaveChannel(_ context.Context, channel *database.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *channel
	s.channels[channel.ChatID] = &stored
	return nil
}

func (s *fakeStore) DeleteChannel(_ context.Context, chatID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.channels[chatID]; !ok {
		return false, nil
	}
	delete(s.channels, chatID)
	return true, nil
}

func (s *fakeStore) GetChannelByChatID(_ context.Context, chatID int64) (*database.Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	channel, ok := s.channels[chatID]
	if !ok {
		return nil, nil
	}
	copied := *channel
	return &copied, nil
}

func (s *fakeStore) ListChannelsByOwner(context.Context, string) ([]database.Channel, error) {
	return nil, nil
}

func (s *fakeStore) AddRecipient(context.Context, int64, int64) (bool, error)    { return true, nil }
func (s *fakeStore) RemoveRecipient(context.Context, int64, int64) (bool, error) { return true, nil }

func (s *fakeStore) ListRecipients(_ context.Context, channelChatID int64) ([]database.Recipient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]database.Recipient(nil), s.recipients[channelChatID]...), nil
}

func (s *fakeStore) RunSQLMaintenance(context.Context) error { return nil }

type sendCall struct {
	recipientID int64
	messageIDs  []int64
}

// fakeSender scripts per-recipient failures and records successful sends.
type fakeSender struct {
	mu           sync.Mutex
	calls        []sendCall
	failuresLeft map[int64]int
	errs         map[int64]error
	deleted      map[int64][]int64
	nextID       int64
	sent         chan sendCall
}

func newFakeSender() *fakeSender {
	return &fakeSender{
		failuresLeft: make(map[int64]int),
		errs:         make(map[int64]error),
		deleted:      make(map[int64][]int64),
		sent:         make(chan sendCall, 64),
	}
}

func (f *fakeSender) Send(_ context.Context, recipientID int64, unit forward.Unit) (forward.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	call := sendCall{recipientID: recipientID}
	for _, msg := range unit.Messages {
		call.messageIDs = append(call.messageIDs, msg.ID)
	}
	f.calls = append(f.calls, call)

	if f.failuresLeft[recipientID] > 0 {
		f.failuresLeft[recipientID]--
		return forward.SendResult{}, forward.Transient(errors.New("temporary outage"))
	}
	if err := f.errs[recipientID]; err != nil {
		return forward.SendResult{}, err
	}

	result := forward.SendResult{}
	for range unit.Messages {
		f.nextID++
		result.ForwardedIDs = append(result.ForwardedIDs, f.nextID)
	}

	select {
	case f.sent <- call:
	default:
	}
	return result, nil
}

func (f *fakeSender) Delete(_ context.Context, recipientID int64, forwardedIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted[recipientID] = append(f.deleted[recipientID], forwardedIDs...)
	return nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSender) waitForSend(t *testing.T, timeout time.Duration) sendCall {
	t.Helper()
	select {
	case call := <-f.sent:
		return call
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a send")
		return sendCall{}
	}
}

func newTestEngine(t *testing.T, store *fakeStore, sender *fakeSender, opts engine.Options) *engine.Engine {
	t.Helper()
	if opts.RateCapacity == 0 {
		opts.RateCapacity = 100
	}
	if opts.RateInterval == 0 {
		opts.RateInterval = time.Minute
	}
	if opts.GroupWindow == 0 {
		opts.GroupWindow = 50 * time.Millisecond
	}
	if opts.RetryAttempts == 0 {
		opts.RetryAttempts = 1
	}
	if opts.RetryBase == 0 {
		opts.RetryBase = time.Millisecond
	}
	if opts.RetryCeiling == 0 {
		opts.RetryCeiling = 2 * time.Millisecond
	}

	e := engine.New(context.Background(), session.NewState("main"), store, sender, opts, nil)
	t.Cleanup(e.Close)
	return e
}

func TestEngineForwardsSingleMessage(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRecipients(-100500, 10, 20)
	sender := newFakeSender()
	e := newTestEngine(t, store, sender, engine.Options{})

	err := e.HandleChannelPost(context.Background(), forward.Message{ChannelID: -100500, ID: 42})
	if err != nil {
		t.Fatalf("HandleChannelPost: %v", err)
	}

	if got := sender.callCount(); got != 2 {
		t.Fatalf("send calls = %d, want 2", got)
	}
	sent := store.recordsByStatus(database.RecordStatusSent)
	if len(sent) != 2 {
		t.Fatalf("sent records = %d, want 2", len(sent))
	}
	for _, record := range sent {
		if record.SourceMessageID != 42 {
			t.Errorf("record source message = %d, want 42", record.SourceMessageID)
		}
		if !record.ForwardedMessageID.Valid {
			t.Errorf("recipient %d record missing forwarded message id", record.RecipientID)
		}
	}
	if status := e.Status(); status.Session.Status != session.StatusActive {
		t.Errorf("session status = %q, want %q", status.Session.Status, session.StatusActive)
	}
}

func TestEngineBuffersMediaGroupUntilComplete(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRecipients(-100500, 10)
	sender := newFakeSender()
	e := newTestEngine(t, store, sender, engine.Options{GroupWindow: 60 * time.Millisecond})

	ctx := context.Background()
	for _, id := range []int64{3, 1, 2} {
		err := e.HandleChannelPost(ctx, forward.Message{ChannelID: -100500, ID: id, GroupedID: 777})
		if err != nil {
			t.Fatalf("HandleChannelPost(%d): %v", id, err)
		}
	}

	if got := sender.callCount(); got != 0 {
		t.Fatalf("send calls before the group window elapsed = %d, want 0", got)
	}

	call := sender.waitForSend(t, time.Second)
	if len(call.messageIDs) != 3 {
		t.Fatalf("group send carried %d messages, want 3", len(call.messageIDs))
	}
	for i, want := range []int64{1, 2, 3} {
		if call.messageIDs[i] != want {
			t.Errorf("messageIDs[%d] = %d, want %d", i, call.messageIDs[i], want)
		}
	}

	sent := store.waitForRecords(t, database.RecordStatusSent, 3, time.Second)
	for _, record := range sent {
		if !record.GroupedID.Valid || record.GroupedID.Int64 != 777 {
			t.Errorf("record %d grouped id = %+v, want 777", record.SourceMessageID, record.GroupedID)
		}
	}
}

func TestEngineDropsMessagesWhilePaused(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRecipients(-100500, 10)
	sender := newFakeSender()
	e := newTestEngine(t, store, sender, engine.Options{})

	e.Pause(context.Background(), "maintenance")

	err := e.HandleChannelPost(context.Background(), forward.Message{ChannelID: -100500, ID: 1})
	if err != nil {
		t.Fatalf("HandleChannelPost: %v", err)
	}
	if got := sender.callCount(); got != 0 {
		t.Fatalf("send calls while paused = %d, want 0", got)
	}
	if pending := store.recordsByStatus(database.RecordStatusPending); len(pending) != 0 {
		t.Fatalf("records written while paused = %d, want 0", len(pending))
	}
	if sent := store.recordsByStatus(database.RecordStatusSent); len(sent) != 0 {
		t.Fatalf("sent records while paused = %d, want 0", len(sent))
	}
}

func TestEngineRetriesTransientSendFailures(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRecipients(-100500, 10)
	sender := newFakeSender()
	sender.failuresLeft[10] = 2
	e := newTestEngine(t, store, sender, engine.Options{RetryAttempts: 3})

	err := e.HandleChannelPost(context.Background(), forward.Message{ChannelID: -100500, ID: 1})
	if err != nil {
		t.Fatalf("HandleChannelPost: %v", err)
	}

	if got := sender.callCount(); got != 3 {
		t.Fatalf("send calls = %d, want 3 (two transient failures, one success)", got)
	}
	if sent := store.recordsByStatus(database.RecordStatusSent); len(sent) != 1 {
		t.Fatalf("sent records = %d, want 1", len(sent))
	}
}

func TestEngineFloodWaitPausesSessionAndPersists(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRecipients(-100500, 10, 20)
	sender := newFakeSender()
	sender.errs[10] = forward.RateLimited(30*time.Second, errors.New("too many requests"))
	e := newTestEngine(t, store, sender, engine.Options{})

	err := e.HandleChannelPost(context.Background(), forward.Message{ChannelID: -100500, ID: 1})
	if err != nil {
		t.Fatalf("HandleChannelPost: %v", err)
	}

	status := e.Status()
	if status.Session.Status != session.StatusPaused {
		t.Fatalf("session status = %q, want %q", status.Session.Status, session.StatusPaused)
	}
	if !status.Session.AutoPaused {
		t.Error("session should be marked auto-paused after a flood wait")
	}

	saved, ok := store.savedSession("main")
	if !ok {
		t.Fatal("flood wait pause was not persisted")
	}
	if saved.Status != database.SessionStatusPaused {
		t.Errorf("persisted status = %q, want %q", saved.Status, database.SessionStatusPaused)
	}
	if !saved.FloodWaitUntil.Valid {
		t.Error("persisted session missing flood wait deadline")
	}
}

func TestEngineTryResumeResetsThrottleAndPersists(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sender := newFakeSender()
	e := newTestEngine(t, store, sender, engine.Options{RateCapacity: 5})

	e.Pause(context.Background(), "operator request")

	resumed, remaining := e.TryResume(context.Background())
	if !resumed {
		t.Fatalf("TryResume refused, remaining %v", remaining)
	}

	status := e.Status()
	if status.Session.Status != session.StatusActive {
		t.Fatalf("session status = %q, want %q", status.Session.Status, session.StatusActive)
	}
	if status.Available != status.Capacity {
		t.Errorf("available after resume = %d, want full capacity %d", status.Available, status.Capacity)
	}

	saved, ok := store.savedSession("main")
	if !ok {
		t.Fatal("resume was not persisted")
	}
	if saved.Status != database.SessionStatusActive {
		t.Errorf("persisted status = %q, want %q", saved.Status, database.SessionStatusActive)
	}
}

func TestEngineDeleteForwardedDelegatesToSender(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.addRecipients(-100500, 10)
	sender := newFakeSender()
	e := newTestEngine(t, store, sender, engine.Options{})

	ctx := context.Background()
	if err := e.HandleChannelPost(ctx, forward.Message{ChannelID: -100500, ID: 7}); err != nil {
		t.Fatalf("HandleChannelPost: %v", err)
	}

	result, err := e.DeleteForwarded(ctx, -100500, []int64{7})
	if err != nil {
		t.Fatalf("DeleteForwarded: %v", err)
	}
	if result.Deleted != 1 || result.Failed != 0 {
		t.Fatalf("deletion result = %+v, want 1 deleted, 0 failed", result)
	}

	sender.mu.Lock()
	deleted := len(sender.deleted[10])
	sender.mu.Unlock()
	if deleted != 1 {
		t.Errorf("platform deletions for recipient 10 = %d, want 1", deleted)
	}
}

func TestSessionRecordRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC().Truncate(time.Second)
	snap := session.Snapshot{
		OwnerID:        "main",
		Status:         session.StatusPaused,
		AutoPaused:     true,
		PauseReason:    "flood wait",
		FloodWaitUntil: now.Add(30 * time.Second),
		LastActive:     now,
	}

	got := engine.RecordToSnapshot(engine.SnapshotToRecord(snap))
	if got.OwnerID != snap.OwnerID || got.Status != snap.Status || got.AutoPaused != snap.AutoPaused {
		t.Errorf("round trip mutated identity fields: %+v", got)
	}
	if got.PauseReason != snap.PauseReason {
		t.Errorf("pause reason = %q, want %q", got.PauseReason, snap.PauseReason)
	}
	if !got.FloodWaitUntil.Equal(snap.FloodWaitUntil) {
		t.Errorf("flood wait deadline = %v, want %v", got.FloodWaitUntil, snap.FloodWaitUntil)
	}
}

func TestManagerRegistryAndChannelRouting(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	sender := newFakeSender()
	manager := engine.NewManager()

	first := engine.New(context.Background(), session.NewState("alpha"), store, sender, engine.Options{RateCapacity: 1, RateInterval: time.Minute, GroupWindow: time.Second, RetryAttempts: 1, RetryBase: time.Millisecond, RetryCeiling: time.Millisecond}, nil)
	t.Cleanup(first.Close)
	if err := manager.Add(first); err != nil {
		t.Fatalf("Add: %v", err)
	}

	duplicate := engine.New(context.Background(), session.NewState("alpha"), store, sender, engine.Options{RateCapacity: 1, RateInterval: time.Minute, GroupWindow: time.Second, RetryAttempts: 1, RetryBase: time.Millisecond, RetryCeiling: time.Millisecond}, nil)
	t.Cleanup(duplicate.Close)
	if err := manager.Add(duplicate); err == nil {
		t.Fatal("Add accepted a duplicate owner")
	}

	if _, ok := manager.Get("alpha"); !ok {
		t.Fatal("Get did not find registered engine")
	}
	if _, ok := manager.Get("beta"); ok {
		t.Fatal("Get found an unregistered owner")
	}

	ctx := context.Background()
	if err := store.SaveChannel(ctx, &database.Channel{ChatID: -200, OwnerID: "alpha", Enabled: true}); err != nil {
		t.Fatalf("SaveChannel: %v", err)
	}
	if err := store.SaveChannel(ctx, &database.Channel{ChatID: -300, OwnerID: "alpha", Enabled: false}); err != nil {
		t.Fatalf("SaveChannel: %v", err)
	}

	e, err := manager.ForChannel(ctx, store, -200)
	if err != nil {
		t.Fatalf("ForChannel: %v", err)
	}
	if e == nil || e.OwnerID() != "alpha" {
		t.Fatalf("ForChannel routed to %v, want engine alpha", e)
	}

	if e, err := manager.ForChannel(ctx, store, -300); err != nil || e != nil {
		t.Fatalf("ForChannel(disabled) = (%v, %v), want (nil, nil)", e, err)
	}
	if e, err := manager.ForChannel(ctx, store, -999); err != nil || e != nil {
		t.Fatalf("ForChannel(unknown) = (%v, %v), want (nil, nil)", e, err)
	}

	if all := manager.All(); len(all) != 1 {
		t.Fatalf("All() returned %d engines, want 1", len(all))
	}
}
