package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// HintBar shows the active page's key hints on a single line.
type HintBar struct {
	*tview.TextView
	theme *Theme
}

// NewHintBar creates a new hint bar.
func NewHintBar(theme *Theme) *HintBar {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 0)

	return &HintBar{TextView: tv, theme: theme}
}

// Update renders hints left to right.
func (h *HintBar) Update(hints []MenuHint) {
	h.SetText(HintMarkup(h.theme, hints))
}

// HintMarkup formats hints as "<key> description" pairs.
func HintMarkup(theme *Theme, hints []MenuHint) string {
	keyColor := ColorName(theme.MenuKeyColor)
	parts := make([]string, 0, len(hints))
	for _, hint := range hints {
		parts = append(parts, fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", keyColor, tview.Escape(hint.Key), hint.Description))
	}
	return strings.Join(parts, "  ")
}
