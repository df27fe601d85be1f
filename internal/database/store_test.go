package database_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/chanrelay/chanrelay/internal/database"
)

func newTestStore(t *testing.T) database.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.NewDB(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { database.CloseDB(db) })

	return database.NewStore(db, nil)
}

func TestForwardRecordLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	record := &database.ForwardRecord{
		SourceChannelID:    -100123,
		SourceMessageID:    42,
		RecipientID:        555,
		ForwardedMessageID: sql.NullInt64{Int64: 9001, Valid: true},
		Status:             database.RecordStatusSent,
	}
	if err := store.SaveForwardRecord(ctx, record); err != nil {
		t.Fatalf("SaveForwardRecord returned error: %v", err)
	}
	if record.ID == 0 {
		t.Error("expected record ID to be set after save")
	}

	active, err := store.FindActiveByChannelAndMessageIDs(ctx, -100123, []int64{42})
	if err != nil {
		t.Fatalf("FindActiveByChannelAndMessageIDs returned error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active record, got %d", len(active))
	}
	if active[0].ForwardedMessageID.Int64 != 9001 {
		t.Errorf("expected forwarded message id 9001, got %d", active[0].ForwardedMessageID.Int64)
	}

	if err := store.MarkRecordsDeleted(ctx, []int64{active[0].ID}); err != nil {
		t.Fatalf("MarkRecordsDeleted returned error: %v", err)
	}

	// The lookup excludes deleted records, so a second pass finds nothing.
	active, err = store.FindActiveByChannelAndMessageIDs(ctx, -100123, []int64{42})
	if err != nil {
		t.Fatalf("FindActiveByChannelAndMessageIDs returned error: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active records after deletion, got %d", len(active))
	}

	pruned, err := store.PruneDeletedRecords(ctx, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneDeletedRecords returned error: %v", err)
	}
	if pruned != 1 {
		t.Errorf("expected 1 pruned record, got %d", pruned)
	}
}

func TestSaveForwardRecordUpdatesLiveRow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	first := &database.ForwardRecord{
		SourceChannelID: -100200,
		SourceMessageID: 7,
		RecipientID:     101,
		Status:          database.RecordStatusFailed,
		ErrorMessage:    sql.NullString{String: "network unreachable", Valid: true},
	}
	if err := store.SaveForwardRecord(ctx, first); err != nil {
		t.Fatalf("first SaveForwardRecord returned error: %v", err)
	}

	second := &database.ForwardRecord{
		SourceChannelID:    -100200,
		SourceMessageID:    7,
		RecipientID:        101,
		ForwardedMessageID: sql.NullInt64{Int64: 77, Valid: true},
		Status:             database.RecordStatusSent,
	}
	if err := store.SaveForwardRecord(ctx, second); err != nil {
		t.Fatalf("second SaveForwardRecord returned error: %v", err)
	}

	active, err := store.FindActiveByChannelAndMessageIDs(ctx, -100200, []int64{7})
	if err != nil {
		t.Fatalf("FindActiveByChannelAndMessageIDs returned error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly 1 live record per key, got %d", len(active))
	}
	if active[0].Status != database.RecordStatusSent {
		t.Errorf("expected status %q, got %q", database.RecordStatusSent, active[0].Status)
	}
	if active[0].RetryCount != 1 {
		t.Errorf("expected retry count 1 after re-save, got %d", active[0].RetryCount)
	}
}

func TestSessionSaveAndResumeLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	missing, err := store.GetSession(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing session, got %+v", missing)
	}

	session := &database.Session{
		OwnerID: "alice",
		Status:  database.SessionStatusActive,
	}
	if err := store.SaveSession(ctx, session); err != nil {
		t.Fatalf("SaveSession returned error: %v", err)
	}

	got, err := store.GetSession(ctx, "alice")
	if err != nil {
		t.Fatalf("GetSession returned error: %v", err)
	}
	if got == nil {
		t.Fatal("expected session to be found after save")
	}
	if got.Status != database.SessionStatusActive {
		t.Errorf("expected status %q, got %q", database.SessionStatusActive, got.Status)
	}

	// Pause with an already elapsed flood wait deadline and verify the sweep
	// query picks it up.
	got.Status = database.SessionStatusPaused
	got.AutoPaused = true
	got.FloodWaitUntil = sql.NullTime{Time: time.Now().UTC().Add(-time.Minute), Valid: true}
	if err := store.SaveSession(ctx, got); err != nil {
		t.Fatalf("SaveSession returned error: %v", err)
	}

	ready, err := store.FindSessionsReadyToResume(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("FindSessionsReadyToResume returned error: %v", err)
	}
	if len(ready) != 1 || ready[0].OwnerID != "alice" {
		t.Fatalf("expected alice to be ready to resume, got %+v", ready)
	}

	// A deadline in the future keeps the session out of the sweep.
	got.FloodWaitUntil = sql.NullTime{Time: time.Now().UTC().Add(time.Hour), Valid: true}
	if err := store.SaveSession(ctx, got); err != nil {
		t.Fatalf("SaveSession returned error: %v", err)
	}

	ready, err = store.FindSessionsReadyToResume(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("FindSessionsReadyToResume returned error: %v", err)
	}
	if len(ready) != 0 {
		t.Fatalf("expected no sessions ready to resume, got %d", len(ready))
	}
}

func TestChannelAndRecipientManagement(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := newTestStore(t)

	channel := &database.Channel{
		ChatID:  -100999,
		OwnerID: "bob",
		Title:   "news",
		Enabled: true,
	}
	if err := store.SaveChannel(ctx, channel); err != nil {
		t.Fatalf("SaveChannel returned error: %v", err)
	}

	// Saving again with a new title updates in place.
	channel.Title = "breaking news"
	if err := store.SaveChannel(ctx, channel); err != nil {
		t.Fatalf("SaveChannel update returned error: %v", err)
	}

	got, err := store.GetChannelByChatID(ctx, -100999)
	if err != nil {
		t.Fatalf("GetChannelByChatID returned error: %v", err)
	}
	if got == nil || got.Title != "breaking news" {
		t.Fatalf("expected updated channel title, got %+v", got)
	}

	channels, err := store.ListChannelsByOwner(ctx, "bob")
	if err != nil {
		t.Fatalf("ListChannelsByOwner returned error: %v", err)
	}
	if len(channels) != 1 {
		t.Fatalf("expected 1 channel for bob, got %d", len(channels))
	}

	added, err := store.AddRecipient(ctx, -100999, 2001)
	if err != nil {
		t.Fatalf("AddRecipient returned error: %v", err)
	}
	if !added {
		t.Error("expected first AddRecipient to report a new row")
	}

	added, err = store.AddRecipient(ctx, -100999, 2001)
	if err != nil {
		t.Fatalf("duplicate AddRecipient returned error: %v", err)
	}
	if added {
		t.Error("expected duplicate AddRecipient to be a no-op")
	}

	if _, err := store.AddRecipient(ctx, -100999, 1001); err != nil {
		t.Fatalf("AddRecipient returned error: %v", err)
	}

	recipients, err := store.ListRecipients(ctx, -100999)
	if err != nil {
		t.Fatalf("ListRecipients returned error: %v", err)
	}
	if len(recipients) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(recipients))
	}
	if recipients[0].ChatID != 1001 || recipients[1].ChatID != 2001 {
		t.Errorf("expected recipients ordered by chat id, got %d then %d",
			recipients[0].ChatID, recipients[1].ChatID)
	}

	removed, err := store.RemoveRecipient(ctx, -100999, 2001)
	if err != nil {
		t.Fatalf("RemoveRecipient returned error: %v", err)
	}
	if !removed {
		t.Error("expected RemoveRecipient to report an existing row")
	}

	existed, err := store.DeleteChannel(ctx, -100999)
	if err != nil {
		t.Fatalf("DeleteChannel returned error: %v", err)
	}
	if !existed {
		t.Error("expected DeleteChannel to report an existing channel")
	}

	recipients, err = store.ListRecipients(ctx, -100999)
	if err != nil {
		t.Fatalf("ListRecipients returned error: %v", err)
	}
	if len(recipients) != 0 {
		t.Errorf("expected recipients to be removed with their channel, got %d", len(recipients))
	}
}
