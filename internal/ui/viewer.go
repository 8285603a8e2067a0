package ui

import (
	"fmt"
	"image"

	"yolodesk/internal/models"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

// ResultViewer opens a window per analysed image.
type ResultViewer struct {
	app fyne.App
}

func NewResultViewer(a fyne.App) *ResultViewer {
	return &ResultViewer{app: a}
}

// Show is safe to call from any goroutine.
func (v *ResultViewer) Show(title string, img image.Image, detections []models.DetectionResult) {
	summary := summarize(detections)

	fyne.Do(func() {
		w := v.app.NewWindow("Analysis: " + title)

		c := canvas.NewImageFromImage(img)
		c.FillMode = canvas.ImageFillContain
		c.SetMinSize(fyne.NewSize(640, 480))

		w.SetContent(container.NewBorder(nil, widget.NewLabel(summary), nil, nil, c))
		w.Resize(fyne.NewSize(800, 640))
		w.Show()
	})
}

func summarize(detections []models.DetectionResult) string {
	if len(detections) == 0 {
		return "No objects detected"
	}

	counts := map[string]int{}
	var order []string
	for _, d := range detections {
		if counts[d.Label] == 0 {
			order = append(order, d.Label)
		}
		counts[d.Label]++
	}

	s := fmt.Sprintf("%d objects:", len(detections))
	for _, label := range order {
		s += fmt.Sprintf(" %d %s", counts[label], label)
	}

	return s
}
