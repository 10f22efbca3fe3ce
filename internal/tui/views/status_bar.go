package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/workbook/internal/status"
	"github.com/matheus3301/workbook/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar shows the profile, who is signed in, the live channel state and
// the current flash message.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	who     string
	channel status.State
	flash   *ui.FlashMessage
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme, profile string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.StatusBarBg)

	sb := &StatusBar{TextView: tv, theme: theme, profile: profile, channel: status.Idle, now: time.Now}
	sb.render()
	return sb
}

// SetIdentity shows who the session belongs to.
func (sb *StatusBar) SetIdentity(name, role string) {
	sb.who = fmt.Sprintf("%s (%s)", name, role)
	sb.render()
}

// SetChannel updates the live updates indicator.
func (sb *StatusBar) SetChannel(s status.State) {
	sb.channel = s
	sb.render()
}

// SetFlash sets the flash message; nil clears it.
func (sb *StatusBar) SetFlash(msg *ui.FlashMessage) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	line := fmt.Sprintf(" [::b]%s[-:-:-]", tview.Escape(sb.profile))
	if sb.who != "" {
		line += " | " + tview.Escape(sb.who)
	}
	line += " | " + sb.channelMarkup() + " | " + sb.now().Format("15:04")
	if f := ui.FlashMarkup(sb.theme, sb.flash); f != "" {
		line += " | " + f
	}
	sb.SetText(line)
}

func (sb *StatusBar) channelMarkup() string {
	switch sb.channel {
	case status.Connected:
		return "[green]● live[-]"
	case status.Connecting:
		return "[yellow]◌ connecting[-]"
	case status.Disabled:
		return "[::d]○ polling[-:-:-]"
	default:
		return "[red]○ offline[-]"
	}
}
