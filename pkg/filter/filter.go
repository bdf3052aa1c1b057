// Package filter implements the compute-shader post-processing chain:
// compiled filter descriptors bound to a stage (input, overlay, channel),
// applied in declared order. Filters run only when the GPU backend is
// active; in CPU mode the chain is a documented no-op (spec §4.5).
package filter

import "fmt"

// Stage identifies where in the pipeline a binding is applied.
type Stage string

const (
	// StageInput runs on the ingest frame before compositing.
	StageInput Stage = "input"
	// StageOverlay runs on a browser-overlay frame before compositing.
	StageOverlay Stage = "overlay"
	// StageChannel runs on the composited canvas before send.
	StageChannel Stage = "channel"
)

// MaxParams is the number of floats a descriptor's uniform block carries,
// packed into four vec4<f32> in declared order.
const MaxParams = 16

// Descriptor is a compiled filter: a stable name, its complete WGSL shader
// source (common uniform/texture header included; the chain compiles it
// as-is), and how many of the up to 16 parameter slots it consumes. A descriptor is
// immutable after startup compilation.
type Descriptor struct {
	Name       string
	WGSLBody   string
	ParamCount int
}

// Binding references a descriptor plus concrete parameter values, bound to
// one pipeline stage.
type Binding struct {
	Descriptor string
	Stage      Stage
	Params     []float32
}

// Validate checks that Params doesn't exceed the uniform block's capacity.
// Per-descriptor param-count mismatches are not rejected here: a binding
// supplying fewer params than the descriptor expects just leaves the
// remaining uniform slots at zero, matching the TOML config's optional
// `params` array.
func (b Binding) Validate() error {
	if len(b.Params) > MaxParams {
		return fmt.Errorf("filter: binding %q supplies %d params, max %d", b.Descriptor, len(b.Params), MaxParams)
	}
	return nil
}
