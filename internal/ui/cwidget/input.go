package cwidget

import (
	"fmt"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// Input is a labelled entry that parses its text into T and shows parse
// errors under the entry while typing.
type Input[T any] struct {
	widget.BaseWidget

	labelWidget *widget.Label
	entryWidget *widget.Entry
	errorWidget *widget.Label

	LabelText   string
	Placeholder string

	DefaultValue T

	Validator func(string) (T, error)
}

func newInput[T any](label, placeholder string, defaultValue T, format func(T) string) *Input[T] {
	input := &Input[T]{
		LabelText:    label,
		Placeholder:  placeholder,
		DefaultValue: defaultValue,
	}

	input.labelWidget = widget.NewLabel(label)
	input.labelWidget.TextStyle = fyne.TextStyle{Bold: true}

	input.entryWidget = widget.NewEntry()
	input.entryWidget.SetPlaceHolder(placeholder)
	input.entryWidget.SetText(format(defaultValue))

	input.errorWidget = widget.NewLabel("")
	input.errorWidget.Hidden = true
	input.errorWidget.TextStyle = fyne.TextStyle{Italic: true}
	input.errorWidget.Importance = widget.DangerImportance

	input.entryWidget.OnChanged = func(s string) {
		_, err := input.Validator(s)
		input.SetError(err)
	}

	input.ExtendBaseWidget(input)

	return input
}

func NewIntInput(label, placeholder string, defaultValue int) *Input[int] {
	input := newInput(label, placeholder, defaultValue, strconv.Itoa)

	input.Validator = func(s string) (int, error) {
		res, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return input.DefaultValue, fmt.Errorf("%q is not an integer", s)
		}
		return res, nil
	}

	return input
}

// NewFloatInput accepts numbers in [min, max].
func NewFloatInput(label, placeholder string, defaultValue, min, max float64) *Input[float64] {
	format := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
	input := newInput(label, placeholder, defaultValue, format)

	input.Validator = func(s string) (float64, error) {
		res, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return input.DefaultValue, fmt.Errorf("%q is not a number", s)
		}
		if !(res >= min && res <= max) {
			return input.DefaultValue, fmt.Errorf("must be between %g and %g", min, max)
		}
		return res, nil
	}

	return input
}

func (item *Input[T]) CreateRenderer() fyne.WidgetRenderer {
	c := container.NewVBox(
		item.labelWidget,
		item.entryWidget,
		item.errorWidget,
	)

	return widget.NewSimpleRenderer(c)
}

func (item *Input[T]) SetError(err error) {
	item.errorWidget.Hidden = err == nil
	if err != nil {
		item.errorWidget.SetText(err.Error())
	}
	item.errorWidget.Refresh()
}

func (item *Input[T]) SetText(text string) {
	item.entryWidget.SetText(text)
}

func (item *Input[T]) Text() string {
	return item.entryWidget.Text
}

// Value parses the current text and shows the parse error, if any.
func (item *Input[T]) Value() (T, error) {
	v, err := item.Validator(item.entryWidget.Text)
	item.SetError(err)
	return v, err
}
