package views

import (
	"strings"
	"testing"
	"time"

	"github.com/matheus3301/workbook/internal/status"
	"github.com/matheus3301/workbook/internal/tui/ui"
	"github.com/matheus3301/workbook/internal/wire"
)

func TestSanitizeForTerminal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"skin tone", "\U0001F44D\U0001F3FB", "\U0001F44D"},
		{"zwj sequence", "\U0001F468\u200D\U0001F469", "\U0001F468\U0001F469"},
		{"variation selector", "\u2764\uFE0F", "\u2764"},
		{"accents kept", "página", "página"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeForTerminal(tt.in); got != tt.want {
				t.Errorf("sanitizeForTerminal(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC)
	if got := formatTimestamp(time.Date(2026, 3, 10, 9, 5, 0, 0, time.UTC), now); got != "09:05" {
		t.Errorf("today = %q", got)
	}
	if got := formatTimestamp(time.Date(2026, 3, 9, 9, 5, 0, 0, time.UTC), now); got != "03/09" {
		t.Errorf("yesterday = %q", got)
	}
	if got := formatTimestamp(time.Time{}, now); got != "" {
		t.Errorf("zero = %q", got)
	}
}

func TestPreview(t *testing.T) {
	if got := preview("line one\nline   two", 40); got != "line one line two" {
		t.Errorf("preview = %q", got)
	}
	if got := preview("abcdefghij", 5); got != "abcd…" {
		t.Errorf("truncated preview = %q", got)
	}
}

type fakeProgress struct {
	pages  []int
	done   map[int]bool
	gating bool
}

func (f fakeProgress) Checkpoints() []int { return f.pages }
func (f fakeProgress) Has(p int) bool     { return f.done[p] }
func (f fakeProgress) Blocks(p int) bool  { return f.gating && !f.done[p] }
func (f fakeProgress) NextPending() (int, bool) {
	for _, p := range f.pages {
		if !f.done[p] {
			return p, true
		}
	}
	return 0, false
}

func TestRenderTimeline(t *testing.T) {
	r := fakeProgress{pages: []int{7, 15, 20}, done: map[int]bool{7: true}, gating: true}
	lines := strings.Split(strings.TrimSpace(renderTimeline(ui.DefaultTheme(), r)), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), lines)
	}
	if !strings.Contains(lines[0], "✓") || !strings.Contains(lines[0], "page 7") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "next") {
		t.Errorf("line 1 = %q, want next marker", lines[1])
	}
	if !strings.Contains(lines[2], "required") {
		t.Errorf("line 2 = %q, want required marker", lines[2])
	}
}

func TestProgressViewQR(t *testing.T) {
	var asked int
	pv := NewProgressView(ui.DefaultTheme(), func(page int) string {
		asked = page
		return "http://127.0.0.1:8740/progress-checkpoints/15/photo"
	})

	pv.Update(fakeProgress{pages: []int{7, 15}, done: map[int]bool{7: true}})
	if asked != 15 {
		t.Errorf("upload URL requested for page %d, want 15", asked)
	}
	text := pv.qr.GetText(true)
	if !strings.ContainsAny(text, "█▀▄") || !strings.Contains(text, "/progress-checkpoints/15/photo") {
		t.Errorf("qr pane = %q", text)
	}

	pv.Update(fakeProgress{pages: []int{7, 15}, done: map[int]bool{7: true, 15: true}})
	if !strings.Contains(pv.qr.GetText(true), "All checkpoints complete") {
		t.Errorf("qr pane after completion = %q", pv.qr.GetText(true))
	}
}

func TestRenderQRSquare(t *testing.T) {
	out := strings.Split(strings.TrimRight(renderQR("https://example.com/x"), "\n"), "\n")
	width := len([]rune(out[0]))
	for i, line := range out {
		if n := len([]rune(line)); n != width {
			t.Fatalf("line %d width %d, want %d", i, n, width)
		}
	}
	// Two bitmap rows per text line.
	if len(out) < width/2 || len(out) > width/2+1 {
		t.Errorf("%d lines for width %d", len(out), width)
	}
}

func TestFormatMessage(t *testing.T) {
	theme := ui.DefaultTheme()
	now := time.Now()
	m := wire.Message{ID: "temp-1", Text: "hi [there]", Sender: wire.SenderUser, CreatedAt: now, Status: wire.StatusSending}

	own := formatMessage(theme, m, wire.SenderUser, "Support", now)
	if !strings.Contains(own, "You") || !strings.Contains(own, "sending") {
		t.Errorf("own message = %q", own)
	}
	if !strings.Contains(own, "hi [there[]") {
		t.Errorf("text not escaped: %q", own)
	}

	m.Status = wire.StatusSent
	other := formatMessage(theme, m, wire.SenderAdmin, "Ana", now)
	if !strings.Contains(other, "Ana") || strings.Contains(other, "sending") {
		t.Errorf("counterpart message = %q", other)
	}
}

func TestInboxViewFilterAndSelection(t *testing.T) {
	iv := NewInboxView(ui.DefaultTheme())
	iv.Update([]wire.Conversation{
		{ID: "c1", UserName: "Ana", LastMessage: "page 7 done", UnreadByAdmin: true},
		{ID: "c2", UserName: "Bruno", LastMessage: "thanks"},
	})
	if got := iv.GetRowCount(); got != 3 {
		t.Fatalf("rows = %d, want header + 2", got)
	}
	if !strings.Contains(iv.GetTitle(), "1 unread") {
		t.Errorf("title = %q", iv.GetTitle())
	}

	iv.Select(2, 0)
	if c, ok := iv.Selected(); !ok || c.ID != "c2" {
		t.Errorf("Selected() = %+v, %v; want c2", c, ok)
	}

	// Selection follows the conversation when the order changes.
	iv.Update([]wire.Conversation{
		{ID: "c2", UserName: "Bruno", LastMessage: "one more"},
		{ID: "c1", UserName: "Ana", LastMessage: "page 7 done"},
	})
	if c, _ := iv.Selected(); c.ID != "c2" {
		t.Errorf("after reorder Selected() = %q, want c2", c.ID)
	}

	iv.SetFilter("PAGE")
	if got := iv.GetRowCount(); got != 2 {
		t.Errorf("filtered rows = %d, want header + 1", got)
	}
	iv.Select(1, 0)
	if c, _ := iv.Selected(); c.ID != "c1" {
		t.Errorf("filtered Selected() = %q, want c1", c.ID)
	}
}

func TestStatusBar(t *testing.T) {
	theme := ui.DefaultTheme()
	sb := NewStatusBar(theme, "main")
	sb.SetIdentity("Ana", "user")
	sb.SetChannel(status.Connected)
	text := sb.GetText(true)
	for _, want := range []string{"main", "Ana (user)", "live"} {
		if !strings.Contains(text, want) {
			t.Errorf("status bar %q missing %q", text, want)
		}
	}

	sb.SetChannel(status.Disabled)
	sb.SetFlash(&ui.FlashMessage{Text: "upload failed", Level: ui.FlashErr})
	text = sb.GetText(true)
	if !strings.Contains(text, "polling") || !strings.Contains(text, "upload failed") {
		t.Errorf("status bar = %q", text)
	}
}
