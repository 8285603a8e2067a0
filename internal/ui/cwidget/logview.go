package cwidget

import (
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const defaultMaxLines = 2000

// LogView is a read-only scrolling text area that keeps the most recent
// lines.
type LogView struct {
	widget.BaseWidget

	text   *widget.Label
	scroll *container.Scroll
	lines  []string

	MaxLines int
}

func NewLogView() *LogView {
	v := &LogView{MaxLines: defaultMaxLines}

	v.text = widget.NewLabel("")
	v.text.Wrapping = fyne.TextWrapWord
	v.text.TextStyle = fyne.TextStyle{Monospace: true}
	v.scroll = container.NewVScroll(v.text)

	v.ExtendBaseWidget(v)

	return v
}

// Append adds text, which may hold several lines, and scrolls to the end.
// Must be called on the UI goroutine.
func (v *LogView) Append(text string) {
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		v.lines = append(v.lines, line)
	}

	if v.MaxLines > 0 && len(v.lines) > v.MaxLines {
		v.lines = v.lines[len(v.lines)-v.MaxLines:]
	}

	v.text.SetText(strings.Join(v.lines, "\n"))
	v.scroll.ScrollToBottom()
}

func (v *LogView) Lines() []string {
	return v.lines
}

func (v *LogView) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(v.scroll)
}
