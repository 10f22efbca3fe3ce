package sync

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/store"
	"github.com/matheus3301/workbook/internal/wire"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(nil); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testConversation(t *testing.T, db *store.DB) *store.Conversation {
	t.Helper()
	u, err := db.CreateUser("Ana", store.RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	c, err := db.GetOrCreateConversation(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func recv(t *testing.T, ch <-chan bus.Event) bus.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
		return bus.Event{}
	}
}

func TestEngineRecordUpload(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)

	ch, unsub := b.Subscribe(wire.ProgressTopic("u1"), 10)
	defer unsub()

	if err := e.RecordUpload("u1", 15, "/uploads/u1/15.jpg"); err != nil {
		t.Fatal(err)
	}

	up, err := db.GetUpload("u1", 15)
	if err != nil {
		t.Fatal(err)
	}
	if up == nil {
		t.Fatal("upload not stored")
	}

	evt := recv(t, ch)
	if evt.Name != wire.EventPhotoUploaded {
		t.Errorf("event = %q, want %q", evt.Name, wire.EventPhotoUploaded)
	}
	payload, ok := evt.Payload.(wire.PhotoUploaded)
	if !ok {
		t.Fatalf("payload type = %T", evt.Payload)
	}
	if payload.PageNumber != 15 || payload.ImageURL != "/uploads/u1/15.jpg" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestEngineIngestMessagePublishes(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	e := NewEngine(db, b, nil)
	conv := testConversation(t, db)

	chatCh, unsubChat := b.Subscribe(wire.ChatTopic(conv.ID), 10)
	defer unsubChat()
	inboxCh, unsubInbox := b.Subscribe(wire.AdminInboxTopic, 10)
	defer unsubInbox()

	msg, err := e.IngestMessage(conv.ID, wire.SenderUser, "  my photo is blurry  ")
	if err != nil {
		t.Fatal(err)
	}

	evt := recv(t, chatCh)
	if evt.Name != wire.EventMessageNew {
		t.Errorf("event = %q, want message:new", evt.Name)
	}
	pushed := evt.Payload.(wire.Message)
	if pushed.ID != msg.ID || pushed.Sender != wire.SenderUser {
		t.Errorf("pushed = %+v, want id %s from user", pushed, msg.ID)
	}

	evt = recv(t, inboxCh)
	upd := evt.Payload.(wire.ConversationUpdated)
	if upd.ConversationID != conv.ID || !upd.UnreadByAdmin || upd.LastMessage != "my photo is blurry" {
		t.Errorf("update = %+v", upd)
	}

	stored, err := db.GetConversation(conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.UnreadByAdmin {
		t.Error("learner message should mark conversation unread")
	}
}

func TestEngineAdminReplyClearsUnread(t *testing.T) {
	db := testDB(t)
	e := NewEngine(db, bus.New(), nil)
	conv := testConversation(t, db)

	if _, err := e.IngestMessage(conv.ID, wire.SenderUser, "help"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.IngestMessage(conv.ID, wire.SenderAdmin, "sure"); err != nil {
		t.Fatal(err)
	}

	stored, _ := db.GetConversation(conv.ID)
	if stored.UnreadByAdmin {
		t.Error("admin reply should clear unread flag")
	}
	msgs, err := db.ListMessages(conv.ID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[1].Sender != "admin" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestEngineUnknownConversation(t *testing.T) {
	e := NewEngine(testDB(t), bus.New(), nil)
	_, err := e.IngestMessage("nope", wire.SenderUser, "x")
	if !errors.Is(err, ErrUnknownConversation) {
		t.Errorf("err = %v, want ErrUnknownConversation", err)
	}
}

func TestTruncate(t *testing.T) {
	long := strings.Repeat("é", 150)
	if got := []rune(truncate(long, 100)); len(got) != 100 {
		t.Errorf("truncate kept %d runes, want 100", len(got))
	}
	if got := truncate(" short ", 100); got != "short" {
		t.Errorf("truncate = %q", got)
	}
}
