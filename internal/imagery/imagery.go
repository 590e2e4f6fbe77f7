// Package imagery prepares captured photos for upload.
package imagery

import (
	"bytes"
	"fmt"

	"github.com/bwise1/safestreet/internal/model"
	"github.com/disintegration/imaging"
)

const jpegQuality = 85

type Normalizer struct {
	MaxDimension int
}

func NewNormalizer(maxDimension int) *Normalizer {
	return &Normalizer{MaxDimension: maxDimension}
}

// Normalize decodes raw, applies EXIF orientation, downscales it to fit
// within MaxDimension on both sides and re-encodes it as JPEG.
func (n *Normalizer) Normalize(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, model.Validationf("image is empty")
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, model.Validationf("image could not be decoded: %v", err)
	}

	if n.MaxDimension > 0 {
		bounds := img.Bounds()
		if bounds.Dx() > n.MaxDimension || bounds.Dy() > n.MaxDimension {
			img = imaging.Fit(img, n.MaxDimension, n.MaxDimension, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return buf.Bytes(), nil
}
