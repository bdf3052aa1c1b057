package compositor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndimixer/mixer/pkg/compositor"
	"github.com/ndimixer/mixer/pkg/frame"
)

func solidLayer(w, h int, r, g, b, a byte) frame.Frame {
	f := frame.NewFrame(w, h, frame.FormatRGBA8Straight)
	for i := 0; i < len(f.Pix); i += 4 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = r, g, b, a
	}
	return f
}

func TestCPUBackendClearIsOpaqueBlack(t *testing.T) {
	cpu := compositor.NewCPUBackend()
	canvas, err := cpu.NewCanvas(4, 4)
	require.NoError(t, err)
	cpu.Clear(canvas)

	out := frame.NewFrame(4, 4, frame.FormatBGRA8)
	require.NoError(t, cpu.Snapshot(canvas, out))
	for i := 0; i < len(out.Pix); i += 4 {
		assert.Equal(t, []byte{0, 0, 0, 255}, out.Pix[i:i+4])
	}
}

// S2: black canvas + solid-red overlay (255,0,0,128) at opacity 1.0 must
// produce (128,0,0,255) within ±1/255, read back in the overlay's own
// R,G,B,A sense. The canvas itself is BGRA8, so the red channel lands at
// byte index 2, not index 0 (index 0 is blue).
func TestCPUBackendScenarioS2(t *testing.T) {
	cpu := compositor.NewCPUBackend()
	canvas, err := cpu.NewCanvas(2, 2)
	require.NoError(t, err)
	cpu.Clear(canvas)

	layer := solidLayer(2, 2, 255, 0, 0, 128)
	require.NoError(t, cpu.Blend(canvas, layer, 1.0))

	out := frame.NewFrame(2, 2, frame.FormatBGRA8)
	require.NoError(t, cpu.Snapshot(canvas, out))
	for i := 0; i < len(out.Pix); i += 4 {
		assert.Equal(t, byte(0), out.Pix[i+0], "blue")
		assert.Equal(t, byte(0), out.Pix[i+1], "green")
		assert.InDelta(t, 128, int(out.Pix[i+2]), 1, "red")
		assert.Equal(t, byte(255), out.Pix[i+3], "alpha")
	}
}

func TestSourceOverIdentities(t *testing.T) {
	canvas := compositor.RGBA{R: 0.3, G: 0.5, B: 0.7, A: 1}
	transparent := compositor.RGBA{A: 0}
	opaqueLayer := compositor.RGBA{R: 0.9, G: 0.1, B: 0.2, A: 1}

	assert.Equal(t, canvas, compositor.BlendPixel(canvas, transparent, 1))
	assert.Equal(t, canvas, compositor.BlendPixel(canvas, opaqueLayer, 0))

	got := compositor.BlendPixel(canvas, opaqueLayer, 1)
	assert.Equal(t, compositor.RGBA{R: opaqueLayer.R, G: opaqueLayer.G, B: opaqueLayer.B, A: 1}, got)
}

func TestCPUBackendMatchesReferenceWithinOneLSB(t *testing.T) {
	cpu := compositor.NewCPUBackend()
	canvas, err := cpu.NewCanvas(1, 1)
	require.NoError(t, err)
	cpu.Clear(canvas)

	layer := solidLayer(1, 1, 200, 50, 10, 180)
	require.NoError(t, cpu.Blend(canvas, layer, 0.6))
	out := frame.NewFrame(1, 1, frame.FormatBGRA8)
	require.NoError(t, cpu.Snapshot(canvas, out))

	ref := compositor.BlendPixel(
		compositor.RGBA{R: 0, G: 0, B: 0, A: 1},
		compositor.RGBA{R: 200.0 / 255, G: 50.0 / 255, B: 10.0 / 255, A: 180.0 / 255},
		0.6,
	)

	// out is BGRA8: index 0 is blue, index 2 is red.
	assert.InDelta(t, ref.B*255, float64(out.Pix[0]), 1)
	assert.InDelta(t, ref.G*255, float64(out.Pix[1]), 1)
	assert.InDelta(t, ref.R*255, float64(out.Pix[2]), 1)
	assert.InDelta(t, ref.A*255, float64(out.Pix[3]), 1)
}

func TestCPUBackendLetterboxesSmallerLayer(t *testing.T) {
	cpu := compositor.NewCPUBackend()
	canvas, err := cpu.NewCanvas(4, 4)
	require.NoError(t, err)
	cpu.Clear(canvas)

	layer := solidLayer(2, 2, 0, 255, 0, 255)
	require.NoError(t, cpu.Blend(canvas, layer, 1.0))

	out := frame.NewFrame(4, 4, frame.FormatBGRA8)
	require.NoError(t, cpu.Snapshot(canvas, out))

	// Inside the layer's bounds: green.
	r, gg, b, a, ok := out.PixelAt(1, 1)
	require.True(t, ok)
	assert.Equal(t, byte(0), r)
	assert.Equal(t, byte(255), gg)
	assert.Equal(t, byte(0), b)
	assert.Equal(t, byte(255), a)

	// Outside: still opaque black (untouched).
	r, gg, b, a, ok = out.PixelAt(3, 3)
	require.True(t, ok)
	assert.Equal(t, byte(0), r)
	assert.Equal(t, byte(0), gg)
	assert.Equal(t, byte(0), b)
	assert.Equal(t, byte(255), a)
}
