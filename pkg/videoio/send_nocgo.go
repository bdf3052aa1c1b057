//go:build !cgo

package videoio

import (
	"errors"

	"github.com/ndimixer/mixer/pkg/frame"
)

// ErrCGORequired is returned when the network-video send path is invoked
// without CGO support (GStreamer bindings require cgo).
var ErrCGORequired = errors.New("videoio: network-video send requires CGO")

// Sender pushes composited frames out under a named network-video stream.
type Sender interface {
	Send(f frame.Frame) error
	Close() error
}

// InitGStreamer is a no-op when CGO is disabled.
func InitGStreamer() {}

// GstSender is a stub that always reports ErrCGORequired when CGO is
// disabled, matching the cgo build's type for callers that type-switch.
type GstSender struct{}

// NewGstSender returns ErrCGORequired when CGO is disabled.
func NewGstSender(outputName string, width, height, frameRate int) (*GstSender, error) {
	return nil, ErrCGORequired
}

func (s *GstSender) Send(f frame.Frame) error { return ErrCGORequired }
func (s *GstSender) Close() error             { return nil }
