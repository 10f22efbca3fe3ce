package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/workbook/internal/bus"
	"github.com/matheus3301/workbook/internal/store"
	intsync "github.com/matheus3301/workbook/internal/sync"
	"github.com/matheus3301/workbook/internal/wire"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	db         *store.DB
	bus        *bus.Bus
	router     http.Handler
	uploadDir  string
	learner    *store.User
	admin      *store.User
	learnerTok string
	adminTok   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(nil); err != nil {
		t.Fatal(err)
	}

	f := &fixture{db: db, bus: bus.New(), uploadDir: t.TempDir()}
	engine := intsync.NewEngine(db, f.bus, nil)
	srv := NewServer(db, engine, Options{
		Checkpoints: []int{7, 15, 20},
		UploadDir:   f.uploadDir,
		PublicURL:   "http://files.test/",
	}, nil)
	f.router = srv.Router()

	f.learner, f.learnerTok = f.user(t, "Ana", store.RoleUser)
	f.admin, f.adminTok = f.user(t, "Bia", store.RoleAdmin)
	return f
}

func (f *fixture) user(t *testing.T, name, role string) (*store.User, string) {
	t.Helper()
	u, err := f.db.CreateUser(name, role)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := f.db.IssueToken(u.ID)
	if err != nil {
		t.Fatal(err)
	}
	return u, tok
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t)

	if rec := f.do(t, "GET", "/conversation", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}
	if rec := f.do(t, "GET", "/conversation", "bogus", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}
	if rec := f.do(t, "GET", "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz: status = %d, want 200", rec.Code)
	}
}

func TestMe(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/me", f.adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	me := decode[wire.Identity](t, rec)
	if me.ID != f.admin.ID || me.Name != "Bia" || me.Role != wire.SenderAdmin {
		t.Errorf("me = %+v", me)
	}
}

func TestCheckpointLifecycle(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, "GET", "/progress-checkpoints/7", f.learnerTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := decode[wire.CheckpointStatus](t, rec); got.Uploaded {
		t.Error("fresh checkpoint should not be uploaded")
	}

	if rec := f.do(t, "GET", "/progress-checkpoints/8", f.learnerTok, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown checkpoint: status = %d, want 404", rec.Code)
	}

	if err := f.db.RecordUpload(f.learner.ID, 7, "http://files.test/x.jpg"); err != nil {
		t.Fatal(err)
	}
	got := decode[wire.CheckpointStatus](t, f.do(t, "GET", "/progress-checkpoints/7", f.learnerTok, nil))
	if !got.Uploaded || got.ImageURL != "http://files.test/x.jpg" {
		t.Errorf("got %+v", got)
	}

	// Learners cannot peek at other learners.
	if rec := f.do(t, "GET", "/progress-checkpoints/7?owner=someone", f.learnerTok, nil); rec.Code != http.StatusForbidden {
		t.Errorf("foreign owner: status = %d, want 403", rec.Code)
	}
	// Admins must name the owner.
	if rec := f.do(t, "GET", "/progress-checkpoints/7", f.adminTok, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("admin without owner: status = %d, want 400", rec.Code)
	}
	got = decode[wire.CheckpointStatus](t, f.do(t, "GET", "/progress-checkpoints/7?owner="+f.learner.ID, f.adminTok, nil))
	if !got.Uploaded {
		t.Error("admin should see learner upload")
	}
}

func TestUploadPhotoPublishes(t *testing.T) {
	f := newFixture(t)
	events, unsub := f.bus.Subscribe(wire.ProgressTopic(f.learner.ID), 4)
	defer unsub()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("photo", "page.JPG")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte("fake image bytes"))
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/progress-checkpoints/15/photo", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.learnerTok)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	got := decode[wire.CheckpointStatus](t, rec)
	prefix := "http://files.test/uploads/" + f.learner.ID + "/15-"
	if !strings.HasPrefix(got.ImageURL, prefix) || !strings.HasSuffix(got.ImageURL, ".jpg") {
		t.Errorf("image url = %q", got.ImageURL)
	}
	name := strings.TrimPrefix(got.ImageURL, "http://files.test/uploads/")
	if _, err := os.Stat(filepath.Join(f.uploadDir, filepath.FromSlash(name))); err != nil {
		t.Errorf("uploaded file missing: %v", err)
	}

	select {
	case evt := <-events:
		p, ok := evt.Payload.(wire.PhotoUploaded)
		if evt.Name != wire.EventPhotoUploaded || !ok || p.PageNumber != 15 {
			t.Errorf("event = %+v", evt)
		}
	case <-time.After(time.Second):
		t.Fatal("no photo:uploaded event")
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	f := newFixture(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, _ := mw.CreateFormFile("photo", "notes.txt")
	_, _ = part.Write([]byte("hi"))
	_ = mw.Close()

	req := httptest.NewRequest("POST", "/progress-checkpoints/7/photo", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+f.learnerTok)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestAdminOwnerValidated(t *testing.T) {
	f := newFixture(t)

	upload := func(owner string) int {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		part, _ := mw.CreateFormFile("photo", "page.png")
		_, _ = part.Write([]byte("png"))
		_ = mw.Close()

		req := httptest.NewRequest("POST", "/progress-checkpoints/7/photo?owner="+owner, &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+f.adminTok)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)
		return rec.Code
	}

	tests := []struct {
		name  string
		owner string
		want  int
	}{
		{"parent dir", "..%2Fescaped", http.StatusBadRequest},
		{"dot dot", "..", http.StatusBadRequest},
		{"backslash", "a%5Cb", http.StatusBadRequest},
		{"unknown id", "no-such-user", http.StatusNotFound},
		{"admin id", f.admin.ID, http.StatusNotFound},
		{"learner", f.learner.ID, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := upload(tt.owner); got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(filepath.Dir(f.uploadDir), "escaped")); !os.IsNotExist(err) {
		t.Errorf("file written outside the upload dir: %v", err)
	}
	up, err := f.db.GetUpload("../escaped", 7)
	if err != nil || up != nil {
		t.Errorf("bogus upload recorded: %+v, %v", up, err)
	}
}

func TestConversationFlow(t *testing.T) {
	f := newFixture(t)

	conv := decode[wire.Conversation](t, f.do(t, "GET", "/conversation", f.learnerTok, nil))
	if conv.ID == "" || conv.UserID != f.learner.ID {
		t.Fatalf("conversation = %+v", conv)
	}
	again := decode[wire.Conversation](t, f.do(t, "GET", "/conversation", f.learnerTok, nil))
	if again.ID != conv.ID {
		t.Errorf("get-or-create returned %s then %s", conv.ID, again.ID)
	}

	rec := f.do(t, "POST", "/messages", f.learnerTok, wire.SendMessageRequest{ConversationID: conv.ID, Text: "  hello  "})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post: status = %d: %s", rec.Code, rec.Body)
	}
	msg := decode[wire.Message](t, rec)
	if msg.Text != "hello" || msg.Sender != wire.SenderUser {
		t.Errorf("message = %+v", msg)
	}

	inbox := decode[[]wire.Conversation](t, f.do(t, "GET", "/conversations", f.adminTok, nil))
	if len(inbox) != 1 || !inbox[0].UnreadByAdmin || inbox[0].LastMessage != "hello" {
		t.Errorf("inbox = %+v", inbox)
	}

	rec = f.do(t, "POST", "/messages", f.adminTok, wire.SendMessageRequest{ConversationID: conv.ID, Text: "hi Ana"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin post: status = %d", rec.Code)
	}
	if got := decode[wire.Message](t, rec); got.Sender != wire.SenderAdmin {
		t.Errorf("admin message sender = %s", got.Sender)
	}

	list := decode[wire.MessageList](t, f.do(t, "GET", "/messages?conversationId="+conv.ID, f.learnerTok, nil))
	if len(list.Messages) != 2 || list.Messages[0].Text != "hello" || list.Messages[1].Text != "hi Ana" {
		t.Errorf("messages = %+v", list.Messages)
	}
}

func TestMessageLengthCountsCharacters(t *testing.T) {
	f := newFixture(t)
	conv := decode[wire.Conversation](t, f.do(t, "GET", "/conversation", f.learnerTok, nil))

	tests := []struct {
		name string
		text string
		want int
	}{
		{"multibyte at limit", strings.Repeat("é", 4000), http.StatusCreated},
		{"multibyte over limit", strings.Repeat("é", 4001), http.StatusRequestEntityTooLarge},
		{"ascii over limit", strings.Repeat("a", 4001), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, "POST", "/messages", f.learnerTok, wire.SendMessageRequest{ConversationID: conv.ID, Text: tt.text})
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestConversationAccessControl(t *testing.T) {
	f := newFixture(t)
	conv := decode[wire.Conversation](t, f.do(t, "GET", "/conversation", f.learnerTok, nil))
	_, otherTok := f.user(t, "Caio", store.RoleUser)

	if rec := f.do(t, "GET", "/messages?conversationId="+conv.ID, otherTok, nil); rec.Code != http.StatusNotFound {
		t.Errorf("foreign read: status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, "POST", "/messages", otherTok, wire.SendMessageRequest{ConversationID: conv.ID, Text: "x"}); rec.Code != http.StatusNotFound {
		t.Errorf("foreign write: status = %d, want 404", rec.Code)
	}
	if rec := f.do(t, "GET", "/conversations", f.learnerTok, nil); rec.Code != http.StatusForbidden {
		t.Errorf("learner inbox: status = %d, want 403", rec.Code)
	}
	if rec := f.do(t, "GET", "/conversation", f.adminTok, nil); rec.Code != http.StatusForbidden {
		t.Errorf("admin learner-conversation: status = %d, want 403", rec.Code)
	}
	if rec := f.do(t, "POST", "/messages", f.learnerTok, wire.SendMessageRequest{ConversationID: conv.ID, Text: "   "}); rec.Code != http.StatusBadRequest {
		t.Errorf("blank text: status = %d, want 400", rec.Code)
	}
}

func TestMarkRead(t *testing.T) {
	f := newFixture(t)
	conv := decode[wire.Conversation](t, f.do(t, "GET", "/conversation", f.learnerTok, nil))
	f.do(t, "POST", "/messages", f.learnerTok, wire.SendMessageRequest{ConversationID: conv.ID, Text: "help"})

	if rec := f.do(t, "POST", "/conversations/"+conv.ID+"/read", f.adminTok, nil); rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	inbox := decode[[]wire.Conversation](t, f.do(t, "GET", "/conversations", f.adminTok, nil))
	if len(inbox) != 1 || inbox[0].UnreadByAdmin {
		t.Errorf("inbox after read = %+v", inbox)
	}
}
