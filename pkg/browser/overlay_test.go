package browser

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeStraightAlphaCopiesPixels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 128})

	out := decodeStraightAlpha(img, 2, 2)
	r, g, b, a, ok := out.PixelAt(0, 0)
	assert.True(t, ok)
	assert.Equal(t, byte(255), r)
	assert.Equal(t, byte(0), g)
	assert.Equal(t, byte(0), b)
	assert.Equal(t, byte(128), a)
}

func TestDecodeStraightAlphaLetterboxesSmallerCapture(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})

	out := decodeStraightAlpha(img, 4, 4)
	_, _, _, a, ok := out.PixelAt(3, 3)
	assert.True(t, ok)
	assert.Equal(t, byte(0), a, "outside the captured rect must be transparent, not sampled")
}
