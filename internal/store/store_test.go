package store

import (
	"errors"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(nil); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func mustUser(t *testing.T, db *DB, name, role string) *User {
	t.Helper()
	u, err := db.CreateUser(name, role)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	// testDB already ran Migrate, so run it again to check idempotency.
	result, err := db.Migrate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.From != 1 || result.Version != 1 {
		t.Errorf("from %d to %d, want 1 to 1", result.From, result.Version)
	}
}

func TestMigrateFreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "fresh.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = db.Close() }()
	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}

	result, err := db.Migrate(nil)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Changed || result.From != 0 || result.Version != 1 {
		t.Errorf("result = %+v, want changed from 0 to 1", result)
	}
}

func TestMigrateRefusesDirtySchema(t *testing.T) {
	db := testDB(t)
	if _, err := db.Exec(`UPDATE schema_migrations SET dirty = 1`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(nil); !errors.Is(err, ErrDirtySchema) {
		t.Errorf("err = %v, want ErrDirtySchema", err)
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	db := testDB(t)
	if _, err := db.CreateUser("x", "owner"); err == nil {
		t.Error("expected error for unknown role")
	}
}

func TestTokens(t *testing.T) {
	db := testDB(t)
	u := mustUser(t, db, "Ana", RoleUser)

	token, err := db.IssueToken(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	got, err := db.UserByToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != u.ID || got.Role != RoleUser {
		t.Errorf("UserByToken = %+v, want %s", got, u.ID)
	}

	got, err = db.UserByToken("bogus")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown token, got %+v", got)
	}
}

func TestUploadsIdempotent(t *testing.T) {
	db := testDB(t)

	if err := db.RecordUpload("u1", 7, "/uploads/a.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordUpload("u1", 7, "/uploads/b.jpg"); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordUpload("u1", 20, "/uploads/c.jpg"); err != nil {
		t.Fatal(err)
	}

	up, err := db.GetUpload("u1", 7)
	if err != nil {
		t.Fatal(err)
	}
	if up == nil || up.ImageURL != "/uploads/b.jpg" {
		t.Errorf("GetUpload = %+v, want latest image", up)
	}

	missing, err := db.GetUpload("u1", 15)
	if err != nil {
		t.Fatal(err)
	}
	if missing != nil {
		t.Errorf("expected nil for page 15, got %+v", missing)
	}

	all, err := db.ListUploads("u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Page != 7 || all[1].Page != 20 {
		t.Errorf("ListUploads = %+v, want pages 7,20", all)
	}
}

func TestGetOrCreateConversation(t *testing.T) {
	db := testDB(t)
	u := mustUser(t, db, "Ana", RoleUser)

	c1, err := db.GetOrCreateConversation(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := db.GetOrCreateConversation(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if c1.ID != c2.ID {
		t.Errorf("second call created a new conversation: %s != %s", c1.ID, c2.ID)
	}
	if c1.UserName != "Ana" {
		t.Errorf("UserName = %q, want Ana", c1.UserName)
	}

	got, err := db.GetConversation("missing")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil for missing conversation")
	}
}

func TestTouchConversationKeepsNewestPreview(t *testing.T) {
	db := testDB(t)
	u := mustUser(t, db, "Ana", RoleUser)
	c, err := db.GetOrCreateConversation(u.ID)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.TouchConversation(c.ID, "newer", 2000, true); err != nil {
		t.Fatal(err)
	}
	if err := db.TouchConversation(c.ID, "older", 1000, true); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetConversation(c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.LastMessage != "newer" || got.LastMessageAt != 2000 {
		t.Errorf("got %q@%d, want newer@2000", got.LastMessage, got.LastMessageAt)
	}
	if !got.UnreadByAdmin {
		t.Error("expected unread")
	}

	if err := db.MarkConversationRead(c.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetConversation(c.ID)
	if got.UnreadByAdmin {
		t.Error("expected read after MarkConversationRead")
	}
}

func TestListConversationsOrder(t *testing.T) {
	db := testDB(t)
	a := mustUser(t, db, "A", RoleUser)
	b := mustUser(t, db, "B", RoleUser)
	ca, _ := db.GetOrCreateConversation(a.ID)
	cb, _ := db.GetOrCreateConversation(b.ID)
	_ = db.TouchConversation(ca.ID, "a", 1000, false)
	_ = db.TouchConversation(cb.ID, "b", 2000, true)

	convs, err := db.ListConversations(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(convs) != 2 || convs[0].ID != cb.ID {
		t.Fatalf("ListConversations = %+v, want %s first", convs, cb.ID)
	}
}

func TestInsertMessageIdempotentAndOrdered(t *testing.T) {
	db := testDB(t)
	u := mustUser(t, db, "Ana", RoleUser)
	c, _ := db.GetOrCreateConversation(u.ID)

	msgs := []*Message{
		{ID: "m1", ConversationID: c.ID, Sender: RoleUser, Text: "hi", CreatedAt: 1000},
		{ID: "m2", ConversationID: c.ID, Sender: RoleAdmin, Text: "hello", CreatedAt: 1000},
		{ID: "m3", ConversationID: c.ID, Sender: RoleUser, Text: "thanks", CreatedAt: 900},
	}
	for _, m := range msgs {
		ok, err := db.InsertMessage(m)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			t.Fatalf("InsertMessage(%s) reported duplicate", m.ID)
		}
	}

	ok, err := db.InsertMessage(&Message{ID: "m1", ConversationID: c.ID, Sender: RoleUser, Text: "again", CreatedAt: 5000})
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("duplicate insert reported inserted=true")
	}

	got, err := db.ListMessages(c.ID, 100)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"m3", "m1", "m2"}
	if len(got) != len(want) {
		t.Fatalf("got %d messages, want %d", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("message[%d] = %s, want %s", i, got[i].ID, id)
		}
	}
	if got[1].Text != "hi" {
		t.Errorf("duplicate insert overwrote text: %q", got[1].Text)
	}
}
