package evidence

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// thumbnailJPEGQuality balances preview quality against upload size on
// constrained site connections.
const thumbnailJPEGQuality = 85

// Thumbnailer generates preview images from photo evidence.
type Thumbnailer interface {
	// Thumbnail creates a JPEG preview fitting within maxWidth x maxHeight
	// while preserving aspect ratio.
	Thumbnail(data io.Reader, maxWidth, maxHeight int) ([]byte, error)
}

// imagingThumbnailer implements Thumbnailer using the imaging library.
type imagingThumbnailer struct{}

// NewThumbnailer creates the default thumbnail generator.
func NewThumbnailer() Thumbnailer {
	return &imagingThumbnailer{}
}

// Thumbnail creates a JPEG preview of the image.
func (p *imagingThumbnailer) Thumbnail(data io.Reader, maxWidth, maxHeight int) ([]byte, error) {
	img, _, err := image.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	fitted := imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(thumbnailJPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
