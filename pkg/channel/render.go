package channel

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ndimixer/mixer/pkg/frame"
)

// framesAlias reports whether a and b share the same backing array, i.e.
// whether a filter stage returned its input unchanged rather than handing
// back a freshly allocated frame.
func framesAlias(a, b frame.Frame) bool {
	return len(a.Pix) > 0 && len(b.Pix) > 0 && &a.Pix[0] == &b.Pix[0]
}

// spinSlack is how far ahead of the deadline the render loop switches from
// a coarse time.Sleep to a busy-spin, trading a little CPU for the
// sub-millisecond accuracy a plain sleep can't guarantee (spec's "hard
// deadline every output period").
const spinSlack = 2 * time.Millisecond

// Start runs the render loop until Stop on a new goroutine that locks
// itself to its OS thread for the channel's lifetime. Per spec §5, the render
// loop is a dedicated OS thread, not a cooperative goroutine, so its
// timing isn't at the mercy of the Go scheduler's other work.
func (c *Channel) Start() {
	go c.run()
}

// Stop signals the render loop to finish its current period and exit.
// Callers apply their own grace-period timeout around this call per the
// supervisor's 2s-per-stage cancellation policy (spec §5).
func (c *Channel) Stop() {
	close(c.stop)
	<-c.done
}

func (c *Channel) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.done)
	defer c.canvas.Release()
	defer c.backend.Close()
	defer c.releaseBlackFallback()

	logger := log.With().Str("component", "render").Str("channel", c.cfg.Name).Logger()
	startedAt := time.Now()
	deadline := startedAt.Add(c.period)

	for {
		select {
		case <-c.stop:
			return
		default:
		}

		periodStart := time.Now()
		c.renderOne(logger, periodStart.Sub(startedAt).Seconds())

		if time.Now().After(deadline) {
			c.Counters.DeadlineMissCount.Add(1)
		} else {
			c.hybridSleepUntil(deadline)
		}
		deadline = deadline.Add(c.period)
	}
}

// renderOne executes one full period: sample mailboxes, composite in
// z-order, apply the channel filter stage, snapshot, and try-send.
func (c *Channel) renderOne(logger zerolog.Logger, timeSeconds float64) {
	c.backend.Clear(c.canvas)

	for i := range c.layers {
		layer := &c.layers[i]
		f, ok := layer.Mailbox.TryTake()
		switch {
		case ok:
			layer.last = f
			layer.haveLast = true
		case layer.haveLast:
			f = layer.last
		default:
			f = c.blackFallback()
		}

		if len(layer.Bindings) > 0 {
			filtered, err := c.chain.Apply(layer.Bindings, f, timeSeconds)
			if err != nil {
				logger.Warn().Str("layer", layer.Name).Err(err).Msg("layer filter stage failed, using unfiltered frame")
			} else {
				f = filtered
			}
		}

		if err := c.backend.Blend(c.canvas, f, layer.Opacity); err != nil {
			logger.Warn().Str("layer", layer.Name).Err(err).Msg("blend failed, layer skipped this period")
		}
	}

	// out is pool-acquired, not heap-allocated, so a steady-state period
	// does zero allocation through Snapshot (spec's "no heap allocation per
	// frame" invariant). It is released back to the pool once the send
	// thread has consumed it (see flushOnce), or immediately here if this
	// period never reaches the send mailbox.
	out := c.pool.Acquire()
	if err := c.backend.Snapshot(c.canvas, out); err != nil {
		c.pool.Release(out)
		logger.Error().Err(err).Msg("canvas snapshot failed, dropping period")
		return
	}

	if len(c.cfg.Filters) > 0 {
		filtered, err := c.chain.Apply(c.cfg.Filters, out, timeSeconds)
		if err != nil {
			logger.Warn().Err(err).Msg("channel filter stage failed, using unfiltered composite")
		} else {
			if !framesAlias(filtered, out) {
				c.pool.Release(out)
			}
			out = filtered
		}
	}

	if prev, ok := c.SendMailbox.TryTake(); ok {
		// The send thread hadn't drained the previous period's frame yet;
		// it is dropped and its buffer returned to the pool. This is the
		// sole admission-control policy (spec §5).
		c.pool.Release(prev)
		c.Counters.DeadlineMissCount.Add(1)
	}
	c.SendMailbox.Publish(out)
	c.Counters.FramesOutput.Add(1)
}

// hybridSleepUntil coarse-sleeps to within spinSlack of deadline, then
// busy-spins for sub-millisecond accuracy the scheduler's own wakeup
// granularity can't promise.
func (c *Channel) hybridSleepUntil(deadline time.Time) {
	now := time.Now()
	coarse := deadline.Add(-spinSlack)
	if coarse.After(now) {
		time.Sleep(coarse.Sub(now))
	}
	for time.Now().Before(deadline) {
		runtime.Gosched()
	}
}
