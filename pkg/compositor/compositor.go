// Package compositor implements the "source over" alpha-compositing law
// shared by the GPU and CPU backends. reference.go is the single source of
// truth for the blend math; cpu.go and gpu.go are performance
// specializations that must agree with it within 1 LSB per channel.
package compositor

import "github.com/ndimixer/mixer/pkg/frame"

// Canvas is an opaque, backend-owned compositing surface. The CPU backend's
// Canvas is a plain in-memory frame.Frame; the GPU backend's Canvas wraps a
// ping-pong pair of GPU textures, never exposing pixel bytes until Snapshot
// is called. One Canvas lives for the whole lifetime of a channel, created
// at channel start and released at channel stop.
type Canvas interface {
	Release()
}

// Backend is the uniform contract both compositor implementations satisfy.
type Backend interface {
	// Name identifies the backend for status reporting ("gpu" or "cpu").
	Name() string
	// NewCanvas allocates a canvas at the given output dimensions.
	NewCanvas(width, height int) (Canvas, error)
	// Clear fills the canvas with opaque black (0,0,0,1).
	Clear(c Canvas)
	// Blend composites layer onto the canvas at the given opacity using
	// Porter-Duff "source over".
	Blend(c Canvas, layer frame.Frame, opacity float64) error
	// Snapshot reads the canvas's current pixels into dst.Pix in place.
	// dst is caller-owned (pool-acquired in steady state, per spec's "no
	// heap allocation per frame" invariant) and must already be sized and
	// formatted to match the canvas; Snapshot never allocates a new Frame.
	// Called once per render period, after all layers have been blended and
	// before channel-stage filters run on the result, never per layer.
	Snapshot(c Canvas, dst frame.Frame) error
	// Close releases backend-owned resources. Neither backend holds any of
	// its own: the GPU device and its pipelines are shared process-wide and
	// are not released by Close.
	Close()
}

// ErrBackendUnavailable is returned by NewGPUBackend when the GPU backend cannot be
// initialized; callers should fall back to the CPU backend.
type ErrBackendUnavailable struct {
	Reason string
}

func (e *ErrBackendUnavailable) Error() string {
	return "compositor: GPU backend unavailable: " + e.Reason
}
