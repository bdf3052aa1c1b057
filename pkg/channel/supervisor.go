package channel

import (
	"time"

	"github.com/rs/zerolog/log"
)

// shutdownGrace is the per-stage grace period before a stuck thread is
// abandoned with a logged warning rather than blocking shutdown forever
// (spec §5 "Cancellation").
const shutdownGrace = 2 * time.Second

// Stoppable is anything the supervisor can start/stop as one shutdown
// stage: ingest sources, overlay capture tasks, and the channel itself
// all implement this with their own Start/Stop pair.
type Stoppable interface {
	Stop()
}

// Supervisor fans shutdown out across every running component of a
// mixer instance — channels, their ingest sources, and their overlay
// capture tasks — applying the ordered cancellation sequence from spec
// §5: stop ingest, let render finish its period, flush send, return pool
// buffers, release GPU resources. Each stage gets its own grace period.
type Supervisor struct {
	stages []namedStage
}

type namedStage struct {
	name string
	stop func()
}

// Add registers a named shutdown stage, run in the order added.
func (s *Supervisor) Add(name string, stop func()) {
	s.stages = append(s.stages, namedStage{name: name, stop: stop})
}

// Shutdown runs every registered stage's Stop, each bounded by
// shutdownGrace; a stage that doesn't finish in time is abandoned with a
// logged warning instead of blocking the others.
func (s *Supervisor) Shutdown() {
	for _, stage := range s.stages {
		done := make(chan struct{})
		go func(stop func()) {
			stop()
			close(done)
		}(stage.stop)

		select {
		case <-done:
		case <-time.After(shutdownGrace):
			log.Warn().Str("stage", stage.name).Msg("shutdown grace period exceeded, abandoning thread")
		}
	}
}
