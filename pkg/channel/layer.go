// Package channel implements the per-channel render loop: sampling each
// layer's mailbox, compositing in z-order, running the post filter chain,
// and handing the result to a send mailbox every output period (spec §4.1
// "Channel Render Loop" plus §5 concurrency and §7 shutdown semantics).
package channel

import (
	"sort"

	"github.com/ndimixer/mixer/pkg/filter"
	"github.com/ndimixer/mixer/pkg/frame"
)

// Kind identifies what a layer draws from.
type Kind int

const (
	KindNetworkVideo Kind = iota
	KindBrowserOverlay
)

func (k Kind) String() string {
	if k == KindNetworkVideo {
		return "network-video"
	}
	return "browser-overlay"
}

// LayerSpec is one contributing source within a channel: a z-index (ties
// broken by declaration order), an opacity, and a binding to a mailbox a
// frame source publishes into. Within a channel, z-indices need not be
// unique but order is total (spec §3 "Layer Spec").
type LayerSpec struct {
	Name     string // overlay URL or "ndi_input", for status reporting
	Kind     Kind
	ZIndex   int
	Opacity  float64
	Mailbox  *frame.Mailbox
	Bindings []filter.Binding // input/overlay-stage filters for this layer

	declOrder int
	last      frame.Frame // last-observed frame for continuity when the mailbox is empty
	haveLast  bool
}

// stage maps a layer's kind to its pre-composite filter stage.
func (l *LayerSpec) stage() filter.Stage {
	if l.Kind == KindNetworkVideo {
		return filter.StageInput
	}
	return filter.StageOverlay
}

// sortLayers returns layers ordered ascending by z-index, ties broken by
// declaration order — the total order invariant from spec §3.
func sortLayers(layers []LayerSpec) []LayerSpec {
	out := make([]LayerSpec, len(layers))
	copy(out, layers)
	for i := range out {
		out[i].declOrder = i
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ZIndex != out[j].ZIndex {
			return out[i].ZIndex < out[j].ZIndex
		}
		return out[i].declOrder < out[j].declOrder
	})
	return out
}
