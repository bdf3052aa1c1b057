package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ndimixer/mixer/pkg/frame"
)

// S3: substring "Cam" must select "Host (Cam)" deterministically.
func TestFirstSubstringMatchSelectsByDiscoveryOrder(t *testing.T) {
	names := []string{"Studio A", "Host (Cam)", "Host (Cam) 2"}
	name, ok := firstSubstringMatch(names, "Cam")
	assert.True(t, ok)
	assert.Equal(t, "Host (Cam)", name)
}

func TestFirstSubstringMatchNoneFound(t *testing.T) {
	_, ok := firstSubstringMatch([]string{"Studio A"}, "Cam")
	assert.False(t, ok)
}

func TestFirstSubstringMatchEmptySubstringMatchesFirst(t *testing.T) {
	names := []string{"Studio A", "Host (Cam)"}
	name, ok := firstSubstringMatch(names, "")
	assert.True(t, ok)
	assert.Equal(t, "Studio A", name)
}

func TestResizeNoopWhenDimensionsMatch(t *testing.T) {
	f := frame.NewFrame(4, 4, frame.FormatBGRA8)
	f.Pix[0] = 7
	out := Resize(f, 4, 4)
	assert.Equal(t, byte(7), out.Pix[0])
}

func TestResizeDownscalesPreservesCorners(t *testing.T) {
	src := frame.NewFrame(4, 4, frame.FormatBGRA8)
	// Tag the top-left pixel distinctly so nearest-neighbour sampling of
	// the shrunk output's (0,0) must read it.
	src.SetPixelAt(0, 0, 9, 9, 9, 9)

	out := Resize(src, 2, 2)
	a, b, c, d, ok := out.PixelAt(0, 0)
	assert := assert.New(t)
	assert.True(ok)
	assert.Equal(byte(9), a)
	assert.Equal(byte(9), b)
	assert.Equal(byte(9), c)
	assert.Equal(byte(9), d)
}
