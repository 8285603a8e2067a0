package detector

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"yolodesk/internal/models"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor   = color.RGBA{0, 255, 0, 255}
	labelColor = color.RGBA{0, 0, 0, 255}
)

// Annotate returns a copy of img with every detection drawn as a box and a
// "label confidence" caption.
func Annotate(img image.Image, detections []models.DetectionResult) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)

	w, h := bounds.Dx(), bounds.Dy()

	for _, d := range detections {
		b, ok := d.Pixels(w, h)
		if !ok {
			continue
		}

		drawRect(out, b.Y1, b.X1, b.Y2, b.X2, boxColor)
		drawLabel(out, b.X1, b.Y1, fmt.Sprintf("%s %.2f", d.Label, d.Confidence))
	}

	return out
}

func drawLabel(img *image.RGBA, x, y int, text string) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil() + 4
	height := face.Height + 2

	top := y - height
	if top < 0 {
		top = y
	}

	bg := image.Rect(x, top, x+width, top+height).Intersect(img.Bounds())
	draw.Draw(img, bg, image.NewUniform(boxColor), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(x+2, top+face.Ascent+1),
	}
	d.DrawString(text)
}

func drawRect(img *image.RGBA, y1, x1, y2, x2 int, col color.Color) {
	thickness := 3
	bounds := img.Bounds()

	setPixel := func(x, y int) {
		if x >= bounds.Min.X && x < bounds.Max.X && y >= bounds.Min.Y && y < bounds.Max.Y {
			img.Set(x, y, col)
		}
	}

	for t := 0; t < thickness; t++ {
		for x := x1; x <= x2; x++ {
			setPixel(x, y1+t)
			setPixel(x, y2-t)
		}
		for y := y1; y <= y2; y++ {
			setPixel(x1+t, y)
			setPixel(x2-t, y)
		}
	}
}
