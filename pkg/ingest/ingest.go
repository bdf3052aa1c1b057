// Package ingest receives frames from a named upstream network-video
// source, resizes them to a channel's output dimensions on a dedicated OS
// thread, and publishes the most recent frame to a single-slot mailbox.
package ingest

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ndimixer/mixer/pkg/frame"
)

// reconnectLogInterval throttles the "no source found" log line so a
// missing upstream doesn't flood the log at the discovery poll rate.
const reconnectLogInterval = 5 * time.Second

// Source is the network-video receive surface this package depends on.
// The real implementation wraps the discovery and frame-receive calls of
// the network-video library; tests substitute a fake.
type Source interface {
	// Discover returns the names of currently advertised upstream streams,
	// in a stable, deterministic order.
	Discover() ([]string, error)
	// Connect opens a receiver bound to the named stream.
	Connect(name string) (Receiver, error)
}

// Receiver yields frames from one connected upstream stream.
type Receiver interface {
	// Recv blocks until the next frame is available or the receiver is
	// closed, in which case it returns ErrClosed.
	Recv() (frame.Frame, error)
	Close() error
}

// ErrClosed is returned by Recv after Close.
var ErrClosed = errors.New("ingest: receiver closed")

// ErrNoMatch indicates no discovered source name contains the configured
// substring. The channel keeps running with black input while this
// condition persists.
var ErrNoMatch = errors.New("ingest: no source matches configured substring")

// Ingest owns one dedicated OS thread that locates an upstream source by
// substring match, receives frames, resizes them to the output dimensions,
// and publishes to Mailbox. Source names are matched by substring against
// the discovery list; the first match wins, deterministic by discovery
// order (spec §4.1).
type Ingest struct {
	source      Source
	substring   string
	outW, outH  int
	Mailbox     *frame.Mailbox
	connected   atomic.Bool
	framesRecv  atomic.Uint64
	stop        chan struct{}
	done        chan struct{}
}

// New builds an Ingest bound to substring, pre-resizing every received
// frame to outW x outH.
func New(source Source, substring string, outW, outH int) *Ingest {
	return &Ingest{
		source:    source,
		substring: substring,
		outW:      outW,
		outH:      outH,
		Mailbox:   &frame.Mailbox{},
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Connected reports whether a matching upstream source is currently open.
func (in *Ingest) Connected() bool { return in.connected.Load() }

// FramesReceived returns the running count of frames received from the
// upstream source, counted after each resized frame is published to
// Mailbox.
func (in *Ingest) FramesReceived() uint64 { return in.framesRecv.Load() }

// Start runs the ingest loop on a new goroutine that locks itself to its
// OS thread for the loop's lifetime, matching the dedicated-thread concurrency model the render
// and send paths also use for their real-time work (spec §5).
func (in *Ingest) Start() {
	go in.run()
}

// Stop signals the ingest loop to exit and waits up to the caller's
// patience; callers apply their own grace-period timeout per spec §5
// cancellation semantics.
func (in *Ingest) Stop() {
	close(in.stop)
	<-in.done
}

func (in *Ingest) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(in.done)

	logger := log.With().Str("component", "ingest").Str("match", in.substring).Logger()
	var lastWarn time.Time

	for {
		select {
		case <-in.stop:
			return
		default:
		}

		recv, err := in.connect()
		if err != nil {
			in.connected.Store(false)
			if time.Since(lastWarn) >= reconnectLogInterval {
				logger.Warn().Err(err).Msg("no matching upstream source; running with black input")
				lastWarn = time.Now()
			}
			if !sleepOrStop(in.stop, reconnectLogInterval) {
				return
			}
			continue
		}

		in.connected.Store(true)
		logger.Info().Msg("ingest connected")
		in.pump(recv, logger)
		in.connected.Store(false)
		_ = recv.Close()
	}
}

func (in *Ingest) connect() (Receiver, error) {
	names, err := in.source.Discover()
	if err != nil {
		return nil, fmt.Errorf("discover sources: %w", err)
	}
	name, ok := firstSubstringMatch(names, in.substring)
	if !ok {
		return nil, ErrNoMatch
	}
	return in.source.Connect(name)
}

// firstSubstringMatch returns the first name in names (in discovery order)
// containing substr. Deterministic first-match-wins ordering per spec §4.1.
func firstSubstringMatch(names []string, substr string) (string, bool) {
	for _, n := range names {
		if containsSubstring(n, substr) {
			return n, true
		}
	}
	return "", false
}

func containsSubstring(s, substr string) bool {
	if substr == "" {
		return true
	}
	if len(substr) > len(s) {
		return false
	}
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}

func (in *Ingest) pump(recv Receiver, logger zerolog.Logger) {
	for {
		select {
		case <-in.stop:
			return
		default:
		}

		f, err := recv.Recv()
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				logger.Warn().Err(err).Msg("ingest receive error, reconnecting")
			}
			return
		}

		resized := Resize(f, in.outW, in.outH)
		in.Mailbox.Publish(resized)
		in.framesRecv.Add(1)
	}
}

func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}
