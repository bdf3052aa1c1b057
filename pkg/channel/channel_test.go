package channel_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ndimixer/mixer/pkg/channel"
	"github.com/ndimixer/mixer/pkg/compositor"
	"github.com/ndimixer/mixer/pkg/filter"
	"github.com/ndimixer/mixer/pkg/frame"
)

func newTestChannel(t *testing.T, layers []channel.LayerSpec, frameRate int) *channel.Channel {
	t.Helper()
	backend := compositor.NewCPUBackend()
	chain, err := filter.NewChain(nil, false)
	require.NoError(t, err)

	c, err := channel.New(channel.Config{
		Name: "test", OutputName: "test-out",
		Width: 4, Height: 4, FrameRate: frameRate,
		Layers: layers,
	}, backend, chain)
	require.NoError(t, err)
	return c
}

// S1: no layers, no input — every emitted frame must be opaque black, and
// cadence must advance frames_output over a short run.
func TestChannelEmitsOpaqueBlackWithNoLayers(t *testing.T) {
	c := newTestChannel(t, nil, 100)
	c.Start()
	time.Sleep(150 * time.Millisecond)
	c.Stop()

	assert.GreaterOrEqual(t, c.Counters.FramesOutput.Load(), uint64(10))

	out, ok := c.SendMailbox.TryTake()
	require.True(t, ok)
	for i := 0; i < len(out.Pix); i += 4 {
		assert.Equal(t, []byte{0, 0, 0, 255}, out.Pix[i:i+4])
	}
}

// Z-order determinism: two layers at the same z-index composite in
// declared order, so the second-declared layer (full opaque) wins.
func TestChannelZOrderTiesBrokenByDeclarationOrder(t *testing.T) {
	mbA := &frame.Mailbox{}
	mbB := &frame.Mailbox{}

	red := frame.NewFrame(4, 4, frame.FormatRGBA8Straight)
	for i := 0; i < len(red.Pix); i += 4 {
		red.Pix[i], red.Pix[i+1], red.Pix[i+2], red.Pix[i+3] = 255, 0, 0, 255
	}
	green := frame.NewFrame(4, 4, frame.FormatRGBA8Straight)
	for i := 0; i < len(green.Pix); i += 4 {
		green.Pix[i], green.Pix[i+1], green.Pix[i+2], green.Pix[i+3] = 0, 255, 0, 255
	}
	mbA.Publish(red)
	mbB.Publish(green)

	layers := []channel.LayerSpec{
		{Name: "a", Kind: channel.KindNetworkVideo, ZIndex: 0, Opacity: 1, Mailbox: mbA},
		{Name: "b", Kind: channel.KindBrowserOverlay, ZIndex: 0, Opacity: 1, Mailbox: mbB},
	}
	c := newTestChannel(t, layers, 100)
	c.Start()
	time.Sleep(50 * time.Millisecond)
	c.Stop()

	out, ok := c.SendMailbox.TryTake()
	require.True(t, ok)
	assert.Equal(t, byte(0), out.Pix[0])
	assert.Equal(t, byte(255), out.Pix[1])
}

// Shutdown must complete promptly; a channel's Stop blocks until the
// render loop exits its current period.
func TestChannelStopReturnsWithinGrace(t *testing.T) {
	c := newTestChannel(t, nil, 30)
	c.Start()
	time.Sleep(20 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		c.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not stop within the 2s grace period")
	}
}
