//go:build cgo

package videoio

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-gst/go-gst/gst"
	"github.com/go-gst/go-gst/gst/app"

	"github.com/ndimixer/mixer/pkg/frame"
	"github.com/ndimixer/mixer/pkg/ingest"
)

// GstSource implements ingest.Source against a GStreamer ndisrc element's
// device-provider discovery, giving ingest.Ingest a substring-matchable
// list of names and a way to connect to one.
type GstSource struct {
	width, height int
}

// NewGstSource builds a discovery/connect surface for ingest frames of the
// given dimensions (the receive pipeline scales to this size, so frames
// reach ingest.Resize already at the output dimensions).
func NewGstSource(width, height int) *GstSource {
	InitGStreamer()
	return &GstSource{width: width, height: height}
}

// Discover enumerates currently advertised network-video sources via the
// device monitor. Order is the monitor's enumeration order, which is
// stable for the lifetime of a discovery call per spec §4.1.
func (s *GstSource) Discover() ([]string, error) {
	monitor := gst.NewDeviceMonitor()
	defer monitor.Stop()

	filterID := monitor.AddFilter("Video/Source", nil)
	defer monitor.RemoveFilter(filterID)

	if !monitor.Start() {
		return nil, fmt.Errorf("videoio: device monitor failed to start")
	}

	var names []string
	for _, dev := range monitor.GetDevices() {
		names = append(names, dev.GetDisplayName())
	}
	return names, nil
}

// Connect opens an ingest pipeline named `<source> ! appsink name=videosink`
// and wraps it as an ingest.Receiver.
func (s *GstSource) Connect(name string) (ingest.Receiver, error) {
	pipelineStr := fmt.Sprintf("ndisrc ndi-name=%q ! videoconvert ! videoscale ! video/x-raw,format=BGRA,width=%d,height=%d ! appsink name=videosink", name, s.width, s.height)
	pipeline, err := gst.NewPipelineFromString(pipelineStr)
	if err != nil {
		return nil, fmt.Errorf("videoio: parse receive pipeline: %w", err)
	}

	elem, err := pipeline.GetElementByName("videosink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("videoio: find appsink: %w", err)
	}
	sink := app.SinkFromElement(elem)
	sink.SetProperty("emit-signals", false)
	sink.SetProperty("max-buffers", uint(2))
	sink.SetProperty("drop", true)
	sink.SetProperty("sync", false)

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("videoio: start receive pipeline: %w", err)
	}

	r := &gstReceiver{pipeline: pipeline, appsink: sink, width: s.width, height: s.height}
	r.running.Store(true)
	return r, nil
}

type gstReceiver struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink
	running  atomic.Bool
	width    int
	height   int
	mu       sync.Mutex
}

// Recv pulls the next sample, blocking on the appsink's internal queue.
// PullSample returns nil once the sink is set to NULL by Close.
func (r *gstReceiver) Recv() (frame.Frame, error) {
	sample := r.appsink.PullSample()
	if sample == nil {
		return frame.Frame{}, ingest.ErrClosed
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return frame.Frame{}, fmt.Errorf("videoio: empty sample buffer")
	}
	mapInfo := buffer.Map(gst.MapRead)
	if mapInfo == nil {
		return frame.Frame{}, fmt.Errorf("videoio: failed to map buffer")
	}
	defer buffer.Unmap()

	out := frame.NewFrame(r.width, r.height, frame.FormatBGRA8)
	copy(out.Pix, mapInfo.Bytes())
	return out, nil
}

func (r *gstReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running.CompareAndSwap(true, false) {
		return nil
	}
	return r.pipeline.SetState(gst.StateNull)
}
