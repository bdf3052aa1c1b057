package channel

import (
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ndimixer/mixer/pkg/videoio"
)

// sendPollInterval is how often the send thread checks the bounded
// mailbox when it's empty; short enough to not add visible latency ahead
// of a 30fps (~33ms) period.
const sendPollInterval = time.Millisecond

// StartSend runs the output send thread on its own OS thread: it drains
// SendMailbox (non-blocking, latest-wins) and pushes each frame to sender.
// Per spec §5 this is a dedicated real-time thread, independent of the
// render loop's thread.
func (c *Channel) StartSend(sender videoio.Sender) {
	c.sendStop = make(chan struct{})
	c.sendDone = make(chan struct{})
	go c.runSend(sender)
}

// StopSend signals the send thread to flush its mailbox and exit. Part of
// the ordered shutdown: stop ingest, let render finish, flush send, return
// pool buffers, release GPU resources (spec §5 "Cancellation").
func (c *Channel) StopSend() {
	if c.sendStop == nil {
		return
	}
	close(c.sendStop)
	<-c.sendDone
}

func (c *Channel) runSend(sender videoio.Sender) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(c.sendDone)

	logger := log.With().Str("component", "send").Str("channel", c.cfg.Name).Logger()
	ticker := time.NewTicker(sendPollInterval)
	defer ticker.Stop()

	for {
		c.flushOnce(sender, logger)
		select {
		case <-c.sendStop:
			c.flushOnce(sender, logger) // final drain before exit
			return
		case <-ticker.C:
		}
	}
}

func (c *Channel) flushOnce(sender videoio.Sender, logger zerolog.Logger) {
	f, ok := c.SendMailbox.TryTake()
	if !ok {
		return
	}
	if err := sender.Send(f); err != nil {
		logger.Warn().Err(err).Msg("send failed, frame dropped")
	}
	// f was pool-acquired by the render loop (see renderOne); return it now
	// that the send thread is done with it, closing the
	// acquire/render/send/release cycle the pool's doc comment describes.
	c.pool.Release(f)
}
