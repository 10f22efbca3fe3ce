package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/workbook/internal/tui/ui"
	"github.com/rivo/tview"
)

// HelpView lists key bindings and prompt commands.
type HelpView struct {
	*tview.TextView
}

// HelpSection is one titled group of key/description pairs.
type HelpSection struct {
	Title   string
	Entries []ui.MenuHint
}

// NewHelpView creates a help view rendering sections.
func NewHelpView(theme *ui.Theme, sections []HelpSection) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	kc := ui.ColorName(theme.MenuKeyColor)
	var b strings.Builder
	for _, s := range sections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.Title)
		for _, e := range s.Entries {
			fmt.Fprintf(&b, "  [%s]%-18s[-] %s\n", kc, tview.Escape(e.Key), e.Description)
		}
	}
	tv.SetText(b.String())

	return &HelpView{TextView: tv}
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "help" }

// Start implements ui.Component.
func (hv *HelpView) Start() {}

// Stop implements ui.Component.
func (hv *HelpView) Stop() {}

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint { return nil }
