// Package imaging decodes images picked for analysis and scales them for
// display.
package imaging

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Load decodes the image at path. The format is sniffed from the content.
func Load(path string) (image.Image, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "open image")
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, "", errors.Wrapf(err, "decode image %s", path)
	}

	return img, format, nil
}

// Preview scales img down to fit in maxW x maxH keeping the aspect ratio.
// Smaller images are returned as is.
func Preview(img image.Image, maxW, maxH int) image.Image {
	if maxW <= 0 || maxH <= 0 {
		return img
	}

	return resize.Thumbnail(uint(maxW), uint(maxH), img, resize.Lanczos3)
}
