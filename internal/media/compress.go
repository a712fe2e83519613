package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	xdraw "golang.org/x/image/draw"
)

const (
	qualityMax  = 100
	qualityMin  = 10
	qualityStep = 10
	// re-encode quality after a geometric downscale
	qualityResized = 80
)

// Compress encodes img as JPEG within a target size budget.
//
// Strategy: walk the quality ladder from 100 down to 10 in steps of 10
// while the encoded size exceeds the target. If the floor still overshoots,
// downscale the pixel dimensions by the square root of the remaining size
// ratio and re-encode once at a fixed quality. Deterministic for a given
// input and target; the result may still exceed the budget, callers must
// handle an oversized best effort.
func Compress(img image.Image, targetKB int) ([]byte, error) {
	if targetKB <= 0 {
		return nil, fmt.Errorf("%w: target must be positive", ErrCompressionFailed)
	}
	target := targetKB * 1024

	var encoded []byte
	for q := qualityMax; q >= qualityMin; q -= qualityStep {
		var err error
		encoded, err = encodeJPEG(img, q)
		if err != nil {
			return nil, err
		}
		if len(encoded) <= target {
			return encoded, nil
		}
	}

	// Quality floor reached and still over budget: shrink dimensions by
	// sqrt(target/actual) so the area scales linearly with the ratio.
	ratio := math.Sqrt(float64(target) / float64(len(encoded)))
	bounds := img.Bounds()
	w := int(float64(bounds.Dx()) * ratio)
	h := int(float64(bounds.Dy()) * ratio)
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(resized, resized.Bounds(), img, bounds, xdraw.Over, nil)

	return encodeJPEG(resized, qualityResized)
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompressionFailed, err)
	}
	return buf.Bytes(), nil
}
