//go:build cgo

// Package videoio wraps the network-video send interface (§6: out of
// scope, external collaborator) behind a Sender this module's channel
// send thread drives. The cgo build uses GStreamer's appsrc to inject raw
// composited frames into a network-video output pipeline; the nocgo build
// below stubs the same surface with ErrCGORequired.
package videoio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/ndimixer/mixer/pkg/frame"
)

var gstInitOnce sync.Once

// InitGStreamer initializes the GStreamer library. Safe to call repeatedly.
func InitGStreamer() {
	gstInitOnce.Do(func() { gst.Init(nil) })
}

// Sender pushes composited frames out under a named network-video stream.
type Sender interface {
	Send(f frame.Frame) error
	Close() error
}

// GstSender drives an appsrc → videoconvert → <network-video sink> pipeline.
// The sink element name is left to the pipeline string so the network-video
// library's actual GStreamer plugin can be swapped without touching this
// package (spec §6 names the codec/network layer as an external collaborator).
type GstSender struct {
	pipeline *gst.Pipeline
	appsrc   *app.Source
	running  atomic.Bool
	width    int
	height   int
}

// NewGstSender builds and starts a sender pipeline named outputName,
// publishing BGRA8 frames of the given dimensions at frameRate fps.
func NewGstSender(outputName string, width, height, frameRate int) (*GstSender, error) {
	InitGStreamer()

	pipelineStr := fmt.Sprintf(
		"appsrc name=mixersrc format=time is-live=true do-timestamp=true caps=%s ! videoconvert ! ndisink ndi-name=%s",
		capsString(width, height, frameRate), outputName,
	)
	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, fmt.Errorf("videoio: parse send pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName("mixersrc")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("videoio: find appsrc: %w", err)
	}
	src := app.SrcFromElement(elem)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("videoio: start send pipeline: %w", err)
	}

	s := &GstSender{pipeline: pipeline, appsrc: src, width: width, height: height}
	s.running.Store(true)
	return s, nil
}

// Send pushes one BGRA8 frame. Frames of the wrong dimensions are rejected
// rather than silently mis-interpreted by the downstream caps.
func (s *GstSender) Send(f frame.Frame) error {
	if !s.running.Load() {
		return fmt.Errorf("videoio: sender closed")
	}
	if f.Width != s.width || f.Height != s.height {
		return fmt.Errorf("videoio: frame %dx%d does not match sender caps %dx%d", f.Width, f.Height, s.width, s.height)
	}
	buffer := gst.NewBufferFromBytes(f.Pix)
	if ret := s.appsrc.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("videoio: push buffer: flow return %v", ret)
	}
	return nil
}

// Close ends the stream and tears down the pipeline.
func (s *GstSender) Close() error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.appsrc.EndStream()
	return s.pipeline.SetState(gst.StateNull)
}

func capsString(width, height, frameRate int) string {
	return fmt.Sprintf("video/x-raw,format=BGRA,width=%d,height=%d,framerate=%d/1", width, height, frameRate)
}
