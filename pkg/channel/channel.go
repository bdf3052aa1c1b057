package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ndimixer/mixer/pkg/compositor"
	"github.com/ndimixer/mixer/pkg/filter"
	"github.com/ndimixer/mixer/pkg/frame"
)

// Config is a channel's static configuration: output dimensions, frame
// rate, its ordered layer specs, and channel-stage filter bindings (spec
// §3 "Channel State").
type Config struct {
	Name       string
	OutputName string
	Width      int
	Height     int
	FrameRate  int
	Layers     []LayerSpec
	Filters    []filter.Binding // channel-stage, applied to the composited canvas
}

// Counters are the atomic, lock-free observability surface a channel
// exposes to the status endpoint (spec §5 "Shared resource policy": the
// counters are atomic integers; no lock).
type Counters struct {
	FramesOutput      atomic.Uint64
	DeadlineMissCount atomic.Uint64
}

// Channel owns one render loop, its compositor canvas, filter chain, and
// bounded send mailbox. frames_received per input lives on the Ingest
// that feeds this channel's network-video layer, not here.
type Channel struct {
	cfg     Config
	backend compositor.Backend
	chain   *filter.Chain
	layers  []LayerSpec

	canvas compositor.Canvas
	pool   *frame.Pool

	SendMailbox *frame.Mailbox
	Counters    Counters

	period time.Duration
	stop   chan struct{}
	done   chan struct{}

	sendStop chan struct{}
	sendDone chan struct{}

	blackOnce  sync.Once
	blackFrame frame.Frame
}

// blackFallback returns the channel's pool-backed black frame, used when a
// layer has never published and no prior frame exists to hold over. Built
// once from the pool rather than allocated fresh every period a source is
// disconnected.
func (c *Channel) blackFallback() frame.Frame {
	c.blackOnce.Do(func() {
		b := c.pool.Acquire()
		fillOpaqueBlack(b)
		c.blackFrame = b
	})
	return c.blackFrame
}

// releaseBlackFallback returns the pool-acquired black frame, if one was
// ever built, back to the pool. Called once from the render loop's shutdown
// path so every buffer the channel acquired ends up back in the pool.
func (c *Channel) releaseBlackFallback() {
	if c.blackFrame.Pix != nil {
		c.pool.Release(c.blackFrame)
		c.blackFrame = frame.Frame{}
	}
}

func fillOpaqueBlack(f frame.Frame) {
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Stride : y*f.Stride+f.Width*4]
		for x := 0; x < len(row); x += 4 {
			row[x], row[x+1], row[x+2], row[x+3] = 0, 0, 0, 255
		}
	}
}

// New builds a channel ready to Start. canvas allocation and pool sizing
// happen here so Start's hot loop never allocates on the happy path.
func New(cfg Config, backend compositor.Backend, chain *filter.Chain) (*Channel, error) {
	canvas, err := backend.NewCanvas(cfg.Width, cfg.Height)
	if err != nil {
		return nil, err
	}

	frameRate := cfg.FrameRate
	if frameRate <= 0 {
		frameRate = 30
	}

	c := &Channel{
		cfg:         cfg,
		backend:     backend,
		chain:       chain,
		layers:      sortLayers(cfg.Layers),
		canvas:      canvas,
		pool:        frame.NewPool(cfg.Width, cfg.Height, frame.FormatBGRA8, frame.DefaultPoolSize),
		SendMailbox: &frame.Mailbox{},
		period:      time.Second / time.Duration(frameRate),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	return c, nil
}

// Layers returns the channel's layers in composite (ascending z) order,
// for status reporting.
func (c *Channel) Layers() []LayerSpec { return c.layers }

// Config returns the channel's static configuration, for status reporting.
func (c *Channel) Config() Config { return c.cfg }

// Chain returns the channel's filter chain, for status reporting of which
// bindings compiled successfully.
func (c *Channel) Chain() *filter.Chain { return c.chain }
