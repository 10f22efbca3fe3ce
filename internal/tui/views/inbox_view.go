package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/workbook/internal/tui/ui"
	"github.com/matheus3301/workbook/internal/wire"
	"github.com/rivo/tview"
)

// InboxView lists support conversations for admins.
type InboxView struct {
	*tview.Table
	theme   *ui.Theme
	convs   []wire.Conversation
	visible []wire.Conversation
	filter  string
	now     func() time.Time
}

// NewInboxView creates a new inbox table.
func NewInboxView(theme *ui.Theme) *InboxView {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Inbox ")
	table.SetTitleColor(theme.TitleColor)

	return &InboxView{Table: table, theme: theme, now: time.Now}
}

// Name implements ui.Component.
func (iv *InboxView) Name() string { return "inbox" }

// Start implements ui.Component.
func (iv *InboxView) Start() {}

// Stop implements ui.Component.
func (iv *InboxView) Stop() {}

// Hints implements ui.Component.
func (iv *InboxView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "j/k", Description: "Move"},
	}
}

// Update replaces the listed conversations, keeping the selected one selected
// when it is still visible.
func (iv *InboxView) Update(convs []wire.Conversation) {
	selected, _ := iv.Selected()
	iv.convs = convs
	iv.render()
	for i, c := range iv.visible {
		if c.ID == selected.ID {
			iv.Select(i+1, 0)
			return
		}
	}
}

// SetFilter shows only conversations whose learner name or last message
// contains filter. An empty filter shows everything.
func (iv *InboxView) SetFilter(filter string) {
	iv.filter = filter
	iv.render()
}

// Selected returns the conversation under the cursor.
func (iv *InboxView) Selected() (wire.Conversation, bool) {
	row, _ := iv.GetSelection()
	idx := row - 1
	if idx < 0 || idx >= len(iv.visible) {
		return wire.Conversation{}, false
	}
	return iv.visible[idx], true
}

func (iv *InboxView) render() {
	iv.Clear()

	for col, h := range []struct {
		text string
		exp  int
	}{
		{"  ", 0},
		{" LEARNER", 1},
		{" LAST MESSAGE", 3},
		{" TIME", 0},
	} {
		iv.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(iv.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	iv.visible = iv.visible[:0]
	unread := 0
	now := iv.now()
	for _, c := range iv.convs {
		name := c.UserName
		if name == "" {
			name = c.UserID
		}
		if iv.filter != "" && !containsFold(name, iv.filter) && !containsFold(c.LastMessage, iv.filter) {
			continue
		}
		iv.visible = append(iv.visible, c)
		row := len(iv.visible)

		marker, color := "  ", iv.theme.FgColor
		if c.UnreadByAdmin {
			marker, color = " ●", iv.theme.UnreadColor
			unread++
		}
		iv.SetCell(row, 0, tview.NewTableCell(marker).SetTextColor(iv.theme.UnreadColor))
		iv.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetExpansion(1).SetTextColor(color))
		iv.SetCell(row, 2, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(preview(c.LastMessage, 60)))).SetExpansion(3).SetTextColor(iv.theme.FgColor))
		iv.SetCell(row, 3, tview.NewTableCell(formatTimestamp(c.LastMessageAt, now)).SetTextColor(iv.theme.FgColor).SetAlign(tview.AlignRight))
	}

	title := fmt.Sprintf(" Inbox (%d", len(iv.visible))
	if unread > 0 {
		title += fmt.Sprintf(", %d unread", unread)
	}
	title += ")"
	if iv.filter != "" {
		title += " filter: " + tview.Escape(iv.filter)
	}
	iv.SetTitle(title + " ")
}
