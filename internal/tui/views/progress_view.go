package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/workbook/internal/tui/ui"
	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// ProgressReader is the read side of the progress store.
type ProgressReader interface {
	Checkpoints() []int
	Has(page int) bool
	Blocks(page int) bool
	NextPending() (int, bool)
}

// ProgressView shows the checkpoint timeline and a QR code linking to the
// upload endpoint of the next pending checkpoint.
type ProgressView struct {
	*tview.Flex
	theme     *ui.Theme
	timeline  *tview.TextView
	qr        *tview.TextView
	uploadURL func(page int) string
}

// NewProgressView creates the progress view. uploadURL maps a page to the URL
// encoded in the QR code.
func NewProgressView(theme *ui.Theme, uploadURL func(page int) string) *ProgressView {
	timeline := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	timeline.SetBorder(true)
	timeline.SetBorderColor(theme.BorderColor)
	timeline.SetBackgroundColor(theme.BgColor)
	timeline.SetTextColor(theme.FgColor)
	timeline.SetTitle(" Progress ")
	timeline.SetTitleColor(theme.TitleColor)

	qr := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	qr.SetBorder(true)
	qr.SetBorderColor(theme.BorderColor)
	qr.SetBackgroundColor(theme.BgColor)
	qr.SetTextColor(theme.FgColor)
	qr.SetTitle(" Upload ")
	qr.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(timeline, 0, 1, false).
		AddItem(qr, 0, 2, false)

	return &ProgressView{
		Flex:      flex,
		theme:     theme,
		timeline:  timeline,
		qr:        qr,
		uploadURL: uploadURL,
	}
}

// Update re-renders from the current store contents.
func (pv *ProgressView) Update(r ProgressReader) {
	done := 0
	pages := r.Checkpoints()
	for _, p := range pages {
		if r.Has(p) {
			done++
		}
	}
	pv.timeline.SetTitle(fmt.Sprintf(" Progress %d/%d ", done, len(pages)))
	pv.timeline.SetText(renderTimeline(pv.theme, r))

	next, ok := r.NextPending()
	if !ok {
		pv.qr.SetText(fmt.Sprintf("\n\n[%s::b]All checkpoints complete[-:-:-]", ui.ColorName(pv.theme.DoneColor)))
		return
	}
	url := pv.uploadURL(next)
	pv.qr.SetText(fmt.Sprintf("\n  Scan to upload the photo for page %d:\n\n%s\n[::d]%s[-:-:-]",
		next, renderQR(url), tview.Escape(url)))
}

func renderTimeline(theme *ui.Theme, r ProgressReader) string {
	next, hasNext := r.NextPending()
	var b strings.Builder
	for _, p := range r.Checkpoints() {
		switch {
		case r.Has(p):
			fmt.Fprintf(&b, " [%s]✓[-] page %-4d [::d]photo received[-:-:-]\n", ui.ColorName(theme.DoneColor), p)
		case hasNext && p == next:
			fmt.Fprintf(&b, " [%s::b]●[-:-:-] page %-4d next\n", ui.ColorName(theme.PendingColor), p)
		case r.Blocks(p):
			fmt.Fprintf(&b, " [%s]○[-] page %-4d [::d]required[-:-:-]\n", ui.ColorName(theme.LockedColor), p)
		default:
			fmt.Fprintf(&b, " [%s]○[-] page %d\n", ui.ColorName(theme.MutedColor), p)
		}
	}
	return b.String()
}

// renderQR draws content as a QR code, two modules per character cell using
// Unicode half blocks.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}
	bitmap := qr.Bitmap()

	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
