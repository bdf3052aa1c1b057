package filter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndimixer/mixer/pkg/filter"
	"github.com/ndimixer/mixer/pkg/frame"
)

func TestBuiltinsAreNamedAndBounded(t *testing.T) {
	descs := filter.Builtins()
	require.Len(t, descs, 5)
	seen := map[string]bool{}
	for _, d := range descs {
		assert.False(t, seen[d.Name], "duplicate descriptor name %q", d.Name)
		seen[d.Name] = true
		assert.LessOrEqual(t, d.ParamCount, filter.MaxParams)
		assert.NotEmpty(t, d.WGSLBody)
	}
}

func TestBindingValidateRejectsTooManyParams(t *testing.T) {
	b := filter.Binding{Descriptor: "color_adjust", Stage: filter.StageChannel, Params: make([]float32, filter.MaxParams+1)}
	assert.Error(t, b.Validate())

	ok := filter.Binding{Descriptor: "color_adjust", Stage: filter.StageChannel, Params: make([]float32, filter.MaxParams)}
	assert.NoError(t, ok.Validate())
}

// S5: in CPU mode, the chain never applies a filter and never blocks; the
// input frame passes through unchanged.
func TestChainCPUModeIsNoop(t *testing.T) {
	c, err := filter.NewChain(filter.Builtins(), false)
	require.NoError(t, err)

	in := frame.NewFrame(2, 2, frame.FormatRGBA8Straight)
	for i := range in.Pix {
		in.Pix[i] = byte(i + 1)
	}

	out, err := c.Apply([]filter.Binding{{Descriptor: "color_adjust", Stage: filter.StageChannel, Params: []float32{0, 1, 1}}}, in, 0)
	require.NoError(t, err)
	assert.Equal(t, in.Pix, out.Pix)
	assert.False(t, c.Enabled("color_adjust"))
}

func TestChainApplyWithNoBindingsReturnsInputUnchanged(t *testing.T) {
	c, err := filter.NewChain(nil, false)
	require.NoError(t, err)

	in := frame.NewFrame(1, 1, frame.FormatRGBA8Straight)
	in.Pix[0] = 42
	out, err := c.Apply(nil, in, 0)
	require.NoError(t, err)
	assert.Equal(t, in.Pix, out.Pix)
}

// A binding referencing an unknown descriptor name is silently skipped,
// never an error. Config loading does not check filter names, so a typo
// reaches the chain as an unknown name.
func TestChainSkipsUnknownDescriptor(t *testing.T) {
	c, err := filter.NewChain(filter.Builtins(), false)
	require.NoError(t, err)

	in := frame.NewFrame(1, 1, frame.FormatRGBA8Straight)
	out, err := c.Apply([]filter.Binding{{Descriptor: "does_not_exist", Stage: filter.StageChannel}}, in, 0)
	require.NoError(t, err)
	assert.Equal(t, in.Pix, out.Pix)
}
