package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/workbook/internal/tui/ui"
	"github.com/matheus3301/workbook/internal/wire"
	"github.com/rivo/tview"
)

// ThreadView displays one support conversation and a composer.
type ThreadView struct {
	*tview.Flex
	theme       *ui.Theme
	messages    *tview.TextView
	composer    *tview.InputField
	counterpart string
	onSend      func(text string)
	now         func() time.Time
}

// NewThreadView creates a new thread view.
func NewThreadView(theme *ui.Theme) *ThreadView {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" Support ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Message (i to focus, Enter to send) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	tv := &ThreadView{
		Flex:        flex,
		theme:       theme,
		messages:    messages,
		composer:    composer,
		counterpart: "Support",
		now:         time.Now,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || tv.onSend == nil {
			return
		}
		text := strings.TrimSpace(composer.GetText())
		if text == "" {
			return
		}
		composer.SetText("")
		tv.onSend(text)
	})

	return tv
}

// Name implements ui.Component.
func (tv *ThreadView) Name() string { return "thread" }

// Start implements ui.Component.
func (tv *ThreadView) Start() {}

// Stop implements ui.Component.
func (tv *ThreadView) Stop() {}

// Hints implements ui.Component.
func (tv *ThreadView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "i", Description: "Compose"}}
}

// SetCounterpart sets the label shown on messages from the other side.
func (tv *ThreadView) SetCounterpart(name string) {
	tv.counterpart = name
	tv.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(name)))
}

// SetOnSend sets the callback for a submitted, non-blank message.
func (tv *ThreadView) SetOnSend(fn func(text string)) {
	tv.onSend = fn
}

// Update renders msgs, oldest first, from the viewpoint of viewer.
func (tv *ThreadView) Update(msgs []wire.Message, viewer wire.Sender) {
	now := tv.now()
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString(formatMessage(tv.theme, m, viewer, tv.counterpart, now))
	}
	if len(msgs) == 0 {
		b.WriteString("[::d]No messages yet.[-:-:-]")
	}
	tv.messages.SetText(b.String())
	tv.messages.ScrollToEnd()
}

// Messages returns the message pane (for focus management).
func (tv *ThreadView) Messages() *tview.TextView {
	return tv.messages
}

// Composer returns the composer input field (for focus management).
func (tv *ThreadView) Composer() *tview.InputField {
	return tv.composer
}

func formatMessage(theme *ui.Theme, m wire.Message, viewer wire.Sender, counterpart string, now time.Time) string {
	name, color := counterpart, theme.OtherMessageColor
	if m.Sender == viewer {
		name, color = "You", theme.OwnMessageColor
	}
	meta := formatTimestamp(m.CreatedAt, now)
	if m.Status == wire.StatusSending {
		meta += " · sending"
	}
	return fmt.Sprintf("[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
		ui.ColorName(color), tview.Escape(sanitizeForTerminal(name)), strings.TrimSpace(meta),
		tview.Escape(sanitizeForTerminal(m.Text)))
}
