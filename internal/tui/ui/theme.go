package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	MutedColor       tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color

	TableHeaderFg tcell.Color
	TableCursorFg tcell.Color
	TableCursorBg tcell.Color
	UnreadColor   tcell.Color

	DoneColor    tcell.Color
	PendingColor tcell.Color
	LockedColor  tcell.Color

	OwnMessageColor   tcell.Color
	OtherMessageColor tcell.Color

	MenuKeyColor      tcell.Color
	PromptBorderColor tcell.Color

	FlashInfoColor tcell.Color
	FlashWarnColor tcell.Color
	FlashErrColor  tcell.Color

	StatusBarBg tcell.Color
}

// DefaultTheme returns the dark theme used by workbook.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorCadetBlue,
		MutedColor:        tcell.ColorGray,
		BorderColor:       tcell.ColorDodgerBlue,
		BorderFocusColor:  tcell.ColorLightSkyBlue,
		TitleColor:        tcell.ColorFuchsia,
		TableHeaderFg:     tcell.ColorWhite,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAqua,
		UnreadColor:       tcell.ColorOrange,
		DoneColor:         tcell.ColorLimeGreen,
		PendingColor:      tcell.ColorNavajoWhite,
		LockedColor:       tcell.ColorOrangeRed,
		OwnMessageColor:   tcell.ColorAqua,
		OtherMessageColor: tcell.ColorPapayaWhip,
		MenuKeyColor:      tcell.ColorDodgerBlue,
		PromptBorderColor: tcell.ColorDodgerBlue,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		StatusBarBg:       tcell.ColorDarkSlateGray,
	}
}

// ColorName returns a tview color tag value for c.
func ColorName(c tcell.Color) string {
	for name, val := range tcell.ColorNames {
		if val == c {
			return name
		}
	}
	return fmt.Sprintf("#%06x", c.Hex())
}
